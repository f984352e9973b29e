// Package notify delivers change announcements to Discord and X and routes
// operator diagnostics to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// Notifier sends one text message to one destination.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// SendError is returned when a destination rejects or never receives a message.
type SendError struct {
	Target     string
	StatusCode int
	Body       string
	Err        error
}

func (e *SendError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("send to %s: %v", e.Target, e.Err)
	case e.Body != "":
		return fmt.Sprintf("send to %s: HTTP %d: %s", e.Target, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("send to %s: HTTP %d", e.Target, e.StatusCode)
	}
}

func (e *SendError) Unwrap() error { return e.Err }

func post(ctx context.Context, client *resty.Client, target, endpoint string, body any) error {
	res, err := client.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return &SendError{Target: target, Err: err}
	}
	if res.IsError() {
		return &SendError{
			Target:     target,
			StatusCode: res.StatusCode(),
			Body:       truncate(strings.TrimSpace(res.String()), 200),
		}
	}
	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
