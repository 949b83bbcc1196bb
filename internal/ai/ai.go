// Package ai defines the language model contract used for re-ranking,
// summaries and candidate questions.
package ai

import (
	"context"
	"errors"
)

// ErrReasonerUnavailable marks failures to reach the language model at all,
// as opposed to a bad reply.
var ErrReasonerUnavailable = errors.New("reasoner unavailable")

// Reasoner completes a prompt with free text.
type Reasoner interface {
	Complete(ctx context.Context, prompt string, opts ...Option) (string, error)
	Model() string
}

type Options struct {
	Temperature *float32
	System      string
}

type Option func(*Options)

func WithTemperature(t float32) Option {
	return func(o *Options) { o.Temperature = &t }
}

// WithSystem sets a system instruction sent alongside the prompt.
func WithSystem(system string) Option {
	return func(o *Options) { o.System = system }
}

func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
