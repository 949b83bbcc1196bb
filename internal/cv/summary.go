package cv

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/utils"
)

const (
	summaryInputLimit         = 2000
	DefaultSummaryTemperature = 0.3
)

// Summarizer asks the reasoner for a short description of a CV.
type Summarizer struct {
	reasoner    ai.Reasoner
	temperature float32
}

func NewSummarizer(reasoner ai.Reasoner, temperature float32) *Summarizer {
	return &Summarizer{reasoner: reasoner, temperature: temperature}
}

func (s *Summarizer) Summarize(ctx context.Context, record *Record) (string, error) {
	prompt := "Summarize the following candidate CV:\n\n" + utils.Head(record.CleanedText, summaryInputLimit)

	summary, err := s.reasoner.Complete(ctx, prompt, ai.WithTemperature(s.temperature))
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", record.Filename, err)
	}
	return strings.TrimSpace(summary), nil
}
