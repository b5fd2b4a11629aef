package redis

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Manager
var (
	// ErrCacheDisabled is returned by every command while Config.Enabled is false
	ErrCacheDisabled = errors.New("natural-id redis cache is disabled")

	// ErrClientNotInitialized is returned when the manager has no client
	ErrClientNotInitialized = errors.New("natural-id redis client not initialized")

	// ErrKeyNotFound marks a missing key; callers treat it as a cache miss
	ErrKeyNotFound = errors.New("natural-id cache key not found")

	// ErrConnectionFailed is returned when Ping cannot reach the server
	ErrConnectionFailed = errors.New("natural-id redis connection failed")
)

// CommandError is a failed Redis command
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("redis %s error: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsCacheDisabled checks if an error is ErrCacheDisabled
func IsCacheDisabled(err error) bool {
	return errors.Is(err, ErrCacheDisabled)
}

// IsKeyNotFound checks if an error is ErrKeyNotFound
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsConnectionFailed checks if an error is ErrConnectionFailed
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsCommandError reports whether err came from a failed Redis command
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
