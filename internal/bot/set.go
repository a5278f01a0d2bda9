package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	fuzzysearch "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/songlink/linkreader/internal/domain"
)

// Setting keys accepted by the set command
const (
	settingMusicChannel   = "music_channel"
	settingLoggingChannel = "logging_channel"
	settingPrefix         = "prefix"
)

var settingKeys = []string{settingMusicChannel, settingLoggingChannel, settingPrefix}

// maxChannelTypos bounds the edit distance of a channel name suggestion
const maxChannelTypos = 3

var errSettingsNotSaved = errors.New("guild settings were not saved")

func (b *Bot) set(_ context.Context, req *request) error {
	if len(req.args) != 2 {
		b.reply(req.logger, req.msg, "Invalid number of arguments given")
		return nil
	}
	key, value := strings.ToLower(req.args[0]), req.args[1]

	switch key {
	case settingMusicChannel, settingLoggingChannel:
		return b.setChannel(req, key, value)
	case settingPrefix:
		return b.setPrefix(req, value)
	default:
		text := "Unable to understand set command"
		if s := suggestSetting(key); s != "" {
			text += fmt.Sprintf(" (did you mean %s?)", s)
		}
		b.reply(req.logger, req.msg, text)
		return nil
	}
}

func (b *Bot) setChannel(req *request, key, value string) error {
	channels, err := b.chat.TextChannels(req.msg.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	// Accept a #channel mention, an id or a name
	ref := strings.TrimSuffix(strings.TrimPrefix(value, "<#"), ">")
	ch, ok := findChannel(channels, ref)
	if !ok {
		text := "Invalid channel"
		if s := suggestChannel(ref, channels); s != "" {
			text += fmt.Sprintf(" (did you mean #%s?)", s)
		}
		b.reply(req.logger, req.msg, text)
		return nil
	}

	_, ok = b.updateGuild(req.logger, req.guild.GuildID, func(g *domain.GuildSettings) bool {
		if key == settingMusicChannel {
			g.MusicChannel = ch.ID
		} else {
			g.LoggingChannel = ch.ID
		}
		return true
	})
	if !ok {
		return errSettingsNotSaved
	}

	req.logger.Info("channel set", "setting", key, "channel", ch.Name, "channelID", ch.ID)
	b.reply(req.logger, req.msg, fmt.Sprintf("Channel %s set as %s", ch.Name, key))
	return nil
}

func (b *Bot) setPrefix(req *request, prefix string) error {
	if !slices.Contains(b.opts.ValidPrefixes, prefix) {
		b.reply(req.logger, req.msg, "Invalid prefix, see help for list of valid prefixes")
		return nil
	}

	_, ok := b.updateGuild(req.logger, req.guild.GuildID, func(g *domain.GuildSettings) bool {
		g.Prefix = prefix
		return true
	})
	if !ok {
		return errSettingsNotSaved
	}

	b.reply(req.logger, req.msg, "Prefix set to "+prefix)
	return nil
}

// findChannel matches by id, then by name
func findChannel(channels []Channel, ref string) (Channel, bool) {
	for _, c := range channels {
		if c.ID == ref {
			return c, true
		}
	}
	for _, c := range channels {
		if c.Name == ref {
			return c, true
		}
	}
	for _, c := range channels {
		if strings.EqualFold(c.Name, ref) {
			return c, true
		}
	}
	return Channel{}, false
}

// suggestChannel returns the channel name closest to ref, or "" if none is close
func suggestChannel(ref string, channels []Channel) string {
	if ref == "" || len(channels) == 0 {
		return ""
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name
	}

	// Abbreviations such as "gen" for "general"
	if ranks := fuzzysearch.RankFindNormalizedFold(ref, names); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	// Typos
	best, bestDist := "", maxChannelTypos+1
	for _, name := range names {
		if d := fuzzysearch.LevenshteinDistance(strings.ToLower(ref), strings.ToLower(name)); d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}

// suggestSetting returns the setting key that best matches key, or ""
func suggestSetting(key string) string {
	if key == "" {
		return ""
	}
	matches := fuzzy.Find(key, settingKeys)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
