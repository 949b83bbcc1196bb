package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultStaticDimensions = 256

	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// StaticEmbedder hashes tokens and character trigrams into a vector. It needs
// no network or model files, which makes it useful offline and in tests.
type StaticEmbedder struct {
	dims int
}

var _ Embedder = (*StaticEmbedder)(nil)

func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, e.dims)

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return vector, nil
	}

	for _, token := range tokenPattern.FindAllString(text, -1) {
		vector[e.index(token)] += tokenWeight
	}

	for _, gram := range trigrams(text) {
		vector[e.index(gram)] += ngramWeight
	}

	return normalize(vector), nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) ModelName() string { return "static" }

func (e *StaticEmbedder) index(s string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(e.dims))
}

func trigrams(text string) []string {
	runes := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes = append(runes, r)
		}
	}
	if len(runes) < ngramSize {
		return nil
	}

	grams := make([]string, 0, len(runes)-ngramSize+1)
	for i := 0; i+ngramSize <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+ngramSize]))
	}
	return grams
}
