package cv

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

type textAnalyzer interface {
	Analyze([]byte) analysis.TokenStream
}

// Cleaner normalizes CV text for embedding with the English analyzer:
// tokens are lowercased and stemmed, stop words and punctuation dropped.
type Cleaner struct {
	analyzer textAnalyzer
}

func NewCleaner() (*Cleaner, error) {
	analyzer, err := registry.NewCache().AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("load %s analyzer: %w", en.AnalyzerName, err)
	}
	return &Cleaner{analyzer: analyzer}, nil
}

func (c *Cleaner) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	tokens := c.analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token.Term) == 0 {
			continue
		}
		terms = append(terms, string(token.Term))
	}
	return strings.Join(terms, " ")
}
