package gemini

import (
	"context"

	"github.com/edgard/chanwatch/internal/resilience"
)

// WithBreaker routes every call of next through b. Once b opens, calls fail
// with resilience.ErrOpen until it lets a probe through.
func WithBreaker(next Client, b *resilience.Breaker) Client {
	return &breakerClient{next: next, breaker: b}
}

type breakerClient struct {
	next    Client
	breaker *resilience.Breaker
}

func (c *breakerClient) Complete(ctx context.Context, system, user string) (string, error) {
	var out string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.Complete(ctx, system, user)
		return err
	})
	return out, err
}

func (c *breakerClient) AnalyzeMessages(ctx context.Context, prompt string, lines []string) (string, error) {
	var out string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.AnalyzeMessages(ctx, prompt, lines)
		return err
	})
	return out, err
}

func (c *breakerClient) MergeConclusions(ctx context.Context, prompt, analysis, existing string) (string, error) {
	var out string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.MergeConclusions(ctx, prompt, analysis, existing)
		return err
	})
	return out, err
}
