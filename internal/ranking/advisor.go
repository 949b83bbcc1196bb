package ranking

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/utils"
	"go.uber.org/zap"
)

//go:embed advisor.md
var advisorTemplate string

const (
	AdvisorCandidates         = 10
	DefaultAdvisorTemperature = 0.3

	advisorTextLimit = 500
)

// Turn is one exchange of a candidate conversation.
type Turn struct {
	Question string
	Answer   string
}

// Advisor answers free-form questions about the ranked candidates.
type Advisor struct {
	reasoner       ai.Reasoner
	jobDescription string
	temperature    float32
	logger         *zap.Logger
}

func NewAdvisor(reasoner ai.Reasoner, jobDescription string, temperature float32, log *zap.Logger) *Advisor {
	return &Advisor{
		reasoner:       reasoner,
		jobDescription: jobDescription,
		temperature:    temperature,
		logger:         logger.WithStage(log, "advisor"),
	}
}

// Ask sends question with the ranked candidates as system context. history
// holds earlier turns of the same conversation, oldest first.
func (a *Advisor) Ask(ctx context.Context, question string, candidates []Candidate, history ...Turn) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}
	if a.reasoner == nil {
		return "", fmt.Errorf("%w: no reasoner configured", ai.ErrReasonerUnavailable)
	}

	system := BuildContext(a.jobDescription, candidates)

	var prompt strings.Builder
	for _, t := range history {
		fmt.Fprintf(&prompt, "User: %s\nAssistant: %s\n\n", t.Question, t.Answer)
	}
	if len(history) > 0 {
		prompt.WriteString("User: ")
	}
	prompt.WriteString(question)

	a.logger.Debug("asking about candidates",
		zap.Int("candidates", min(len(candidates), AdvisorCandidates)),
		zap.Int("history", len(history)),
	)

	answer, err := a.reasoner.Complete(ctx, prompt.String(), ai.WithSystem(system), ai.WithTemperature(a.temperature))
	if err != nil {
		return "", fmt.Errorf("asking about candidates: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// BuildContext renders the job description and the first AdvisorCandidates
// candidates as a system instruction.
func BuildContext(jobDescription string, candidates []Candidate) string {
	var b strings.Builder
	for _, c := range candidates[:min(AdvisorCandidates, len(candidates))] {
		fmt.Fprintf(&b, "Candidate %d (Rank #%d): %s\n", c.Rank, c.Rank, c.Filename)
		fmt.Fprintf(&b, "Similarity Score: %.2f\n", c.Similarity)
		fmt.Fprintf(&b, "Contact: Email: %s, Phone: %s\n", orNA(c.Email), orNA(c.Phone))
		fmt.Fprintf(&b, "Summary: %s\n\n", candidateSummary(c))
	}

	jd := strings.TrimSpace(jobDescription)
	if jd == "" {
		jd = "Job requirements not available"
	}

	r := strings.NewReplacer(
		"{{JOB_DESCRIPTION}}", utils.Head(jd, DefaultJobDescriptionLimit),
		"{{CANDIDATES}}", b.String(),
	)
	return r.Replace(advisorTemplate)
}

func candidateSummary(c Candidate) string {
	if c.Record == nil {
		return notAvailable
	}
	text := c.Record.Summary
	if strings.TrimSpace(text) == "" {
		text = c.Record.CleanedText
	}
	return utils.Truncate(text, advisorTextLimit)
}
