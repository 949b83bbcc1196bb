// Package ranking orders stored CVs against a job description: vector recall
// first, then a language model re-rank of the closest candidates.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/embed"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/store"
	"github.com/spigell/cv-ranker/internal/utils"
	"go.uber.org/zap"
)

var ErrInvalidJobDescription = errors.New("invalid job description")

const (
	DefaultInitialCandidates   = 150
	DefaultFinalRanking        = 20
	DefaultProfileCandidates   = 20
	DefaultJobDescriptionLimit = 2000
	DefaultTimeout             = 60 * time.Second

	defaultMaxLogLength = 200
)

type searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]store.Match, error)
}

type textCleaner interface {
	Clean(text string) string
}

type Options struct {
	InitialCandidates   int
	FinalRanking        int
	ProfileCandidates   int
	JobDescriptionLimit int
	Temperature         float32
	Timeout             time.Duration
	MaxLogLength        int
}

func (o Options) withDefaults() Options {
	if o.InitialCandidates <= 0 {
		o.InitialCandidates = DefaultInitialCandidates
	}
	if o.FinalRanking <= 0 {
		o.FinalRanking = DefaultFinalRanking
	}
	if o.ProfileCandidates <= 0 {
		o.ProfileCandidates = DefaultProfileCandidates
	}
	if o.JobDescriptionLimit <= 0 {
		o.JobDescriptionLimit = DefaultJobDescriptionLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxLogLength <= 0 {
		o.MaxLogLength = defaultMaxLogLength
	}
	return o
}

// Candidate is a ranked CV. Rank is 1-based and is the only ordering signal
// of the final list; Similarity comes from vector recall.
type Candidate struct {
	Record     *cv.Record `json:"-" yaml:"-"`
	Filename   string     `json:"filename" yaml:"filename"`
	Email      string     `json:"email,omitempty" yaml:"email,omitempty"`
	Phone      string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	Similarity float64    `json:"similarity" yaml:"similarity"`
	Distance   float32    `json:"distance" yaml:"distance"`
	Rank       int        `json:"rank" yaml:"rank"`
}

// Result is the outcome of one ranking run. Pool holds the recall stage in
// similarity order; Candidates is the final list.
type Result struct {
	Candidates     []Candidate `json:"candidates" yaml:"candidates"`
	Pool           []Candidate `json:"-" yaml:"-"`
	Fallback       bool        `json:"fallback" yaml:"fallback"`
	FallbackReason string      `json:"fallback_reason,omitempty" yaml:"fallback_reason,omitempty"`
	Raw            string      `json:"-" yaml:"-"`
}

type Engine struct {
	store    searcher
	embedder embed.Embedder
	reasoner ai.Reasoner
	cleaner  textCleaner
	opts     Options
	logger   *zap.Logger
}

// NewEngine builds a ranking engine. reasoner may be nil, in which case every
// run returns the recall order.
func NewEngine(st searcher, embedder embed.Embedder, reasoner ai.Reasoner, cleaner textCleaner, opts Options, log *zap.Logger) *Engine {
	return &Engine{
		store:    st,
		embedder: embedder,
		reasoner: reasoner,
		cleaner:  cleaner,
		opts:     opts.withDefaults(),
		logger:   logger.WithStage(log, "ranking"),
	}
}

// RankFile ranks stored CVs against the job description document at path.
func (e *Engine) RankFile(ctx context.Context, path string) (*Result, error) {
	raw, err := cv.ExtractText(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJobDescription, err)
	}
	return e.Rank(ctx, raw)
}

// Rank ranks stored CVs against the job description text. An empty store
// yields an empty result.
func (e *Engine) Rank(ctx context.Context, jobDescription string) (*Result, error) {
	cleaned := e.cleaner.Clean(jobDescription)
	if strings.TrimSpace(cleaned) == "" {
		return nil, ErrInvalidJobDescription
	}

	pool, err := e.recall(ctx, cleaned)
	if err != nil {
		return nil, err
	}

	result := &Result{Pool: pool, Candidates: []Candidate{}}
	if len(pool) == 0 {
		e.logger.Info("no candidates to rank")
		return result, nil
	}

	top := pool[:min(e.opts.ProfileCandidates, len(pool))]

	order, raw, err := e.rerank(ctx, jobDescription, top)
	result.Raw = raw
	switch {
	case err != nil:
		result.Fallback = true
		result.FallbackReason = err.Error()
	case len(order) == 0:
		result.Fallback = true
		result.FallbackReason = "reply contained no valid candidate numbers"
	}

	if result.Fallback {
		e.logger.Warn("using recall order", zap.String("reason", result.FallbackReason))
		order = make([]int, min(e.opts.FinalRanking, len(top)))
		for i := range order {
			order[i] = i
		}
	}

	result.Candidates = make([]Candidate, 0, len(order))
	for i, idx := range order {
		c := top[idx]
		c.Rank = i + 1
		result.Candidates = append(result.Candidates, c)
	}

	e.logger.Info("ranking finished",
		zap.Int("recalled", len(pool)),
		zap.Int("profiled", len(top)),
		zap.Int("ranked", len(result.Candidates)),
		zap.Bool("fallback", result.Fallback),
	)
	return result, nil
}

func (e *Engine) recall(ctx context.Context, cleaned string) ([]Candidate, error) {
	vector, err := e.embedder.Embed(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("embedding job description: %w", err)
	}

	matches, err := e.store.Search(ctx, vector, e.opts.InitialCandidates)
	if err != nil {
		return nil, fmt.Errorf("searching candidates: %w", err)
	}

	pool := make([]Candidate, 0, len(matches))
	for i, m := range matches {
		pool = append(pool, newCandidate(m.Record, m.Distance, i+1))
	}
	return pool, nil
}

func (e *Engine) rerank(ctx context.Context, jobDescription string, top []Candidate) ([]int, string, error) {
	if e.reasoner == nil {
		return nil, "", errors.New("no reasoner configured")
	}

	profiles := make([]string, len(top))
	for i, c := range top {
		profiles[i] = buildProfile(i+1, c.Record)
	}
	prompt := buildPrompt(utils.Head(jobDescription, e.opts.JobDescriptionLimit), profiles, e.opts.FinalRanking)

	log := e.logger.With(logger.ModelFields("", e.reasoner.Model())...)
	log.Debug("ranking request",
		zap.Int("candidates", len(top)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.opts.MaxLogLength)),
	)

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	reply, err := e.reasoner.Complete(ctx, prompt, ai.WithTemperature(e.opts.Temperature))
	if err != nil {
		return nil, "", err
	}

	log.Debug("ranking response",
		zap.Int("response_length", utf8.RuneCountInString(reply)),
		zap.String("response_preview", utils.TruncateForLog(reply, e.opts.MaxLogLength)),
	)

	return ParseRanking(reply, len(top), e.opts.FinalRanking), reply, nil
}

func newCandidate(rec *cv.Record, distance float32, rank int) Candidate {
	c := Candidate{
		Record:     rec,
		Filename:   rec.Filename,
		Similarity: 1 / (1 + float64(distance)),
		Distance:   distance,
		Rank:       rank,
	}
	if rec.Contact != nil {
		c.Email = rec.Contact.EmailOrEmpty()
		c.Phone = rec.Contact.PhoneOrEmpty()
	}
	return c
}
