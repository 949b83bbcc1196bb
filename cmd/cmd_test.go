package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spigell/cv-ranker/internal/config"
	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/ranking"

	"gopkg.in/yaml.v3"
)

func sampleResult() *ranking.Result {
	return &ranking.Result{
		Candidates: []ranking.Candidate{
			{Record: &cv.Record{RawText: "secret"}, Filename: "b.pdf", Email: "b@example.com", Similarity: 0.75, Rank: 1},
			{Filename: "a.pdf", Similarity: 0.5, Rank: 2},
			{Filename: "c.pdf", Similarity: 0.25, Rank: 3},
		},
		Fallback:       true,
		FallbackReason: "reasoner unavailable",
	}
}

func TestPrintRankingTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := printRanking(&buf, sampleResult(), formatTable); err != nil {
		t.Fatalf("printRanking returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"RANK", "b.pdf", "b@example.com", "0.750", "ordered by vector similarity only: reasoner unavailable"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table is missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRankingEncoded(t *testing.T) {
	t.Parallel()

	var jsonBuf bytes.Buffer
	if err := printRanking(&jsonBuf, sampleResult(), formatJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if strings.Contains(jsonBuf.String(), "secret") {
		t.Fatal("record content must not be encoded")
	}

	var decoded struct {
		Candidates []struct {
			Filename string `json:"filename"`
			Rank     int    `json:"rank"`
		} `json:"candidates"`
		Fallback bool `json:"fallback"`
	}
	if err := json.Unmarshal(jsonBuf.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding json output: %v", err)
	}
	if len(decoded.Candidates) != 3 || decoded.Candidates[0].Filename != "b.pdf" || !decoded.Fallback {
		t.Fatalf("unexpected json output: %+v", decoded)
	}

	var yamlBuf bytes.Buffer
	if err := printRanking(&yamlBuf, sampleResult(), formatYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML); err != nil {
		t.Fatalf("decoding yaml output: %v", err)
	}
	if _, ok := fromYAML["candidates"]; !ok {
		t.Fatalf("yaml output has no candidates: %s", yamlBuf.String())
	}

	if err := printRanking(&bytes.Buffer{}, sampleResult(), "xml"); err == nil {
		t.Fatal("expected error for an unknown format")
	}
}

func TestWithoutCandidateRenumbers(t *testing.T) {
	t.Parallel()

	original := sampleResult()
	got := withoutCandidate(original, "b.pdf")

	if len(got.Candidates) != 2 || got.Candidates[0].Filename != "a.pdf" || got.Candidates[0].Rank != 1 || got.Candidates[1].Rank != 2 {
		t.Fatalf("unexpected candidates: %+v", got.Candidates)
	}
	if len(original.Candidates) != 3 || original.Candidates[1].Rank != 2 {
		t.Fatal("original result must stay untouched")
	}
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		AI:        config.AIConfig{APIKey: "ai-key"},
		Embedding: config.EmbeddingConfig{APIKey: "embed-key"},
	}

	out := redacted(cfg)
	if out.AI.APIKey != "<redacted>" || out.Embedding.APIKey != "<redacted>" {
		t.Fatalf("keys are not redacted: %+v", out)
	}
	if cfg.AI.APIKey != "ai-key" {
		t.Fatal("source config must stay untouched")
	}
}
