package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/songlink/linkreader/internal/config"
)

type commandContext struct {
	configFlag string
}

// load reads the config file, environment and any flags set on fs
func (c *commandContext) load(fs *pflag.FlagSet) (*config.Config, *viper.Viper, error) {
	v := config.New()
	if fs != nil {
		if err := config.BindFlags(v, fs); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.LoadConfig(v, c.configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, v, nil
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFlag)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "linkreader",
		Short:         "Collects Spotify track links posted in Discord into a playlist per server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.configFlag, "config", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newAuthCommand(ctx))
	rootCmd.AddCommand(newGuildsCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkreader %s\n", Version)
		},
	}
}
