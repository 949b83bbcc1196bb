package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/cv"
	"go.uber.org/zap"
)

func rankedCandidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			Record:     &cv.Record{Filename: fmt.Sprintf("cv-%d.pdf", i+1), CleanedText: "cleaned text", Summary: fmt.Sprintf("summary %d", i+1)},
			Filename:   fmt.Sprintf("cv-%d.pdf", i+1),
			Similarity: 0.5,
			Rank:       i + 1,
		}
	}
	return out
}

func TestBuildContext(t *testing.T) {
	t.Parallel()

	candidates := rankedCandidates(12)
	candidates[1].Email = "b@example.com"
	candidates[2].Record = &cv.Record{CleanedText: strings.Repeat("z", 600)}

	got := BuildContext("Go developer wanted", candidates)

	for _, want := range []string{
		"JOB REQUIREMENTS:\nGo developer wanted\n",
		"Candidate 1 (Rank #1): cv-1.pdf\nSimilarity Score: 0.50\nContact: Email: N/A, Phone: N/A\nSummary: summary 1\n",
		"Contact: Email: b@example.com, Phone: N/A",
		"Summary: " + strings.Repeat("z", 500) + "...\n",
		"Candidate 10 (Rank #10)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("context is missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Candidate 11 ") {
		t.Fatal("context must hold at most ten candidates")
	}
}

func TestAdvisorAsk(t *testing.T) {
	t.Parallel()

	reasoner := &fakeReasoner{reply: "  Candidate 1 fits best.\n"}
	advisor := NewAdvisor(reasoner, "job", DefaultAdvisorTemperature, zap.NewNop())

	answer, err := advisor.Ask(context.Background(), "Who is best?", rankedCandidates(2), Turn{Question: "Hi", Answer: "Hello"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if answer != "Candidate 1 fits best." {
		t.Fatalf("unexpected answer %q", answer)
	}

	if got := reasoner.prompts[0]; got != "User: Hi\nAssistant: Hello\n\nUser: Who is best?" {
		t.Fatalf("unexpected prompt %q", got)
	}
	opts := reasoner.opts[0]
	if !strings.Contains(opts.System, "cv-2.pdf") {
		t.Fatalf("system context is missing candidates: %q", opts.System)
	}
	if opts.Temperature == nil || *opts.Temperature != float32(DefaultAdvisorTemperature) {
		t.Fatalf("unexpected temperature %v", opts.Temperature)
	}
}

func TestAdvisorAskErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewAdvisor(&fakeReasoner{}, "job", 0.3, nil).Ask(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for an empty question")
	}

	if _, err := NewAdvisor(nil, "job", 0.3, nil).Ask(context.Background(), "q", nil); !errors.Is(err, ai.ErrReasonerUnavailable) {
		t.Fatalf("expected ErrReasonerUnavailable, got %v", err)
	}

	failing := &fakeReasoner{err: fmt.Errorf("%w: 429", ai.ErrReasonerUnavailable)}
	if _, err := NewAdvisor(failing, "job", 0.3, nil).Ask(context.Background(), "q", nil); !errors.Is(err, ai.ErrReasonerUnavailable) {
		t.Fatalf("expected wrapped reasoner error, got %v", err)
	}
}
