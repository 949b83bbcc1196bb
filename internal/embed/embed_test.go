package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spigell/cv-ranker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type countingEmbedder struct {
	calls atomic.Int32
	inner Embedder
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int   { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string { return c.inner.ModelName() }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedderIsDeterministic(t *testing.T) {
	t.Parallel()

	e := NewStaticEmbedder(64)
	a, err := e.Embed(context.Background(), "Senior Go engineer with Kubernetes experience")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Senior Go engineer with Kubernetes experience")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	t.Parallel()

	e := NewStaticEmbedder(0)
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, DefaultStaticDimensions)
	assert.Zero(t, norm(v))
}

func TestStaticEmbedderSimilarTextsAreCloser(t *testing.T) {
	t.Parallel()

	e := NewStaticEmbedder(256)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "python machine learning engineer")
	near, _ := e.Embed(ctx, "machine learning engineer using python and pytorch")
	far, _ := e.Embed(ctx, "pastry chef with french bakery background")

	assert.Less(t, squaredDistance(query, near), squaredDistance(query, far))
}

func squaredDistance(a, b []float32) float64 {
	var d float64
	for i := range a {
		diff := float64(a[i] - b[i])
		d += diff * diff
	}
	return d
}

func TestCachedEmbedderReusesVectors(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{inner: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "job description")
	require.NoError(t, err)
	first[0] = 42 // callers must not corrupt the cache

	second, err := cached.Embed(ctx, "job description")
	require.NoError(t, err)

	assert.EqualValues(t, 1, inner.calls.Load())
	assert.NotEqual(t, float32(42), second[0])
	assert.Equal(t, 1, cached.Len())
	assert.Equal(t, "static", cached.ModelName())
	assert.Equal(t, 32, cached.Dimensions())
}

type fakeContentEmbedder struct {
	resp   *genai.EmbedContentResponse
	err    error
	model  string
	config *genai.EmbedContentConfig
}

func (f *fakeContentEmbedder) EmbedContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.config = cfg
	return f.resp, f.err
}

func TestGeminiEmbedder(t *testing.T) {
	t.Parallel()

	fake := &fakeContentEmbedder{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2, 0.3}}},
	}}
	e := newGeminiEmbedder(fake, "", 3)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, DefaultGeminiModel, fake.model)
	require.NotNil(t, fake.config.OutputDimensionality)
	assert.EqualValues(t, 3, *fake.config.OutputDimensionality)
}

func TestGeminiEmbedderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fake    *fakeContentEmbedder
		wantErr error
	}{
		{
			name:    "empty response",
			fake:    &fakeContentEmbedder{resp: &genai.EmbedContentResponse{}},
			wantErr: ErrEmptyEmbedding,
		},
		{
			name: "wrong size",
			fake: &fakeContentEmbedder{resp: &genai.EmbedContentResponse{
				Embeddings: []*genai.ContentEmbedding{{Values: []float32{1}}},
			}},
			wantErr: ErrDimensionsMismatch,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newGeminiEmbedder(tt.fake, "m", 2).Embed(context.Background(), "x")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := newGeminiEmbedder(&fakeContentEmbedder{err: errors.New("boom")}, "m", 2).Embed(context.Background(), "x")
	require.Error(t, err)
}

func TestOpenAIEmbedderResponseShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body any
	}{
		{name: "openai", body: map[string]any{"data": []map[string]any{{"embedding": []float32{1, 2}}}}},
		{name: "ollama", body: map[string]any{"embeddings": [][]float32{{1, 2}}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/embeddings", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

				var req embeddingRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "nomic", req.Model)
				assert.Equal(t, "text", req.Input)

				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "nomic", Dimensions: 2})
			require.NoError(t, err)

			v, err := e.Embed(context.Background(), "text")
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 2}, v)
		})
	}
}

func TestOpenAIEmbedderHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIEmbedderRequiresDimensions(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
}

func TestNewStaticFromConfig(t *testing.T) {
	t.Parallel()

	e, err := New(context.Background(), config.EmbeddingConfig{Provider: "static", Dimensions: 16}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimensions())
	assert.IsType(t, &CachedEmbedder{}, e)

	_, err = New(context.Background(), config.EmbeddingConfig{Provider: "word2vec"}, nil, nil)
	require.Error(t, err)
}
