package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrBotChallenge indicates the response body carried a bot-challenge
// marker. It is never retried: retrying cannot clear a challenge wall.
type ErrBotChallenge struct {
	URL string
}

func (e ErrBotChallenge) Error() string {
	return fmt.Sprintf("bot challenge detected: %s", e.URL)
}

// ErrRetrievalExhausted indicates the retry budget ran out on 5xx/429 or
// transport failures.
type ErrRetrievalExhausted struct {
	URL      string
	Attempts int
	Err      error
}

func (e ErrRetrievalExhausted) Error() string {
	return fmt.Sprintf("retrieval exhausted after %d attempts for %s: %v", e.Attempts, e.URL, e.Err)
}

func (e ErrRetrievalExhausted) Unwrap() error {
	return e.Err
}

// IsBotChallenge reports whether err wraps a bot-challenge detection.
func IsBotChallenge(err error) bool {
	var bot ErrBotChallenge
	return errors.As(err, &bot)
}

// IsExhausted reports whether err wraps an exhausted retry budget.
func IsExhausted(err error) bool {
	var exhausted ErrRetrievalExhausted
	return errors.As(err, &exhausted)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var bot ErrBotChallenge
	if errors.As(err, &bot) {
		return "bot_challenge"
	}
	var exhausted ErrRetrievalExhausted
	if errors.As(err, &exhausted) {
		return "exhausted"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	return "other"
}
