package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrServerOffline indicates the remote music service is unreachable
	ErrServerOffline = errors.New("music service is unreachable")

	// ErrAuthFailed indicates the access token was rejected
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrRateLimited indicates the remote service kept throttling requests
	ErrRateLimited = errors.New("rate limited by music service")

	// ErrPlaylistNotFound indicates the requested playlist does not exist
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrAllDuplicates indicates none of the given tracks were new to the playlist
	ErrAllDuplicates = errors.New("did not add song(s) to playlist, all duplicates")

	// ErrNoRefreshToken indicates no account has been authorized yet
	ErrNoRefreshToken = errors.New("no refresh token, run the auth command first")

	// ErrGuildNotFound indicates the guild has no stored settings
	ErrGuildNotFound = errors.New("guild not found")
)
