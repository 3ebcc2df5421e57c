package translate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/lingobridge/lingobridge/internal/provider"
)

// fakeCache is a map-backed Cache safe for the orchestrator's concurrent
// lookups and detached writes.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(sourceLang, targetLang, text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[sourceLang+":"+targetLang+":"+text]
	return v, ok
}

func (c *fakeCache) Set(sourceLang, targetLang, text, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sourceLang+":"+targetLang+":"+text] = translation
	c.sets++
}

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// fakeGateway answers batch calls by prefixing "t:" and streams the same
// answer as JSON array fragments. Either path can be overridden per test.
type fakeGateway struct {
	mu        sync.Mutex
	calls     [][]string
	err       error
	translate func(texts []string) []string
	// fragmentSize splits the streamed array text; 0 streams it whole.
	fragmentSize int
}

func (g *fakeGateway) answer(texts []string) []string {
	if g.translate != nil {
		return g.translate(texts)
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "t:" + t
	}
	return out
}

func (g *fakeGateway) record(texts []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, texts)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) Translate(_ context.Context, _ provider.Kind, req provider.Request) ([]string, error) {
	g.record(req.Texts)
	if g.err != nil {
		return nil, g.err
	}
	return g.answer(req.Texts), nil
}

func (g *fakeGateway) TranslateStream(_ context.Context, _ provider.Kind, req provider.Request, onFragment func(string)) error {
	g.record(req.Texts)
	if g.err != nil {
		return g.err
	}
	raw, _ := json.Marshal(g.answer(req.Texts))
	text := string(raw)
	size := g.fragmentSize
	if size <= 0 {
		size = len(text)
	}
	for start := 0; start < len(text); start += size {
		end := min(start+size, len(text))
		onFragment(text[start:end])
	}
	return nil
}

func testRequest(texts ...string) Request {
	return Request{
		Texts:      texts,
		SourceLang: "en",
		TargetLang: "es",
		Provider:   provider.KindOpenAI,
		APIKey:     "key",
		Model:      "gpt-4o-mini",
	}
}

func TestTranslateMergesCacheAndProvider(t *testing.T) {
	cache := newFakeCache()
	cache.Set("en", "es", "Hello", "Hola")
	cache.Set("en", "es", "Bye", "Adios")
	gw := &fakeGateway{}
	svc := NewService(gw, cache)

	got, err := svc.Translate(context.Background(), testRequest("Hello", "World", "Bye", "Again"))
	if err != nil {
		t.Fatalf("Translate() error: %v", err)
	}

	want := []string{"Hola", "t:World", "Adios", "t:Again"}
	for i, text := range want {
		if got[i] != text {
			t.Fatalf("result[%d] = %q, want %q", i, got[i], text)
		}
	}
	if gw.callCount() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gw.callCount())
	}
	if sent := gw.calls[0]; len(sent) != 2 || sent[0] != "World" || sent[1] != "Again" {
		t.Fatalf("gateway received %v, want only the misses", sent)
	}

	// New pairs were cached before Translate returned.
	if v, ok := cache.Get("en", "es", "World"); !ok || v != "t:World" {
		t.Fatalf("World not cached, got %q/%v", v, ok)
	}
	if v, ok := cache.Get("en", "es", "Again"); !ok || v != "t:Again" {
		t.Fatalf("Again not cached, got %q/%v", v, ok)
	}
}

func TestTranslateAllCachedSkipsProvider(t *testing.T) {
	cache := newFakeCache()
	cache.Set("en", "es", "Hello", "Hola")
	gw := &fakeGateway{}
	svc := NewService(gw, cache)

	got, err := svc.Translate(context.Background(), testRequest("Hello"))
	if err != nil {
		t.Fatalf("Translate() error: %v", err)
	}
	if got[0] != "Hola" {
		t.Fatalf("result = %q, want Hola", got[0])
	}
	if gw.callCount() != 0 {
		t.Fatal("provider was called despite full cache coverage")
	}
}

func TestTranslateProviderErrorPropagatesUnchanged(t *testing.T) {
	cache := newFakeCache()
	upstream := &provider.Error{Code: provider.CodeRateLimited, Message: "slow down"}
	gw := &fakeGateway{err: upstream}
	svc := NewService(gw, cache)

	before := cache.setCount()
	_, err := svc.Translate(context.Background(), testRequest("Hello"))
	pe, ok := provider.AsError(err)
	if !ok || pe.Code != provider.CodeRateLimited || pe.Message != "slow down" {
		t.Fatalf("error = %v, want the upstream RATE_LIMITED unchanged", err)
	}
	if cache.setCount() != before {
		t.Fatal("cache was written on a failed translation")
	}
}

func TestTranslateMismatchCachesNothing(t *testing.T) {
	cache := newFakeCache()
	gw := &fakeGateway{translate: func(texts []string) []string {
		return texts[:len(texts)-1]
	}}
	svc := NewService(gw, cache)

	_, err := svc.Translate(context.Background(), testRequest("a", "b", "c"))
	pe, ok := provider.AsError(err)
	if !ok || pe.Code != provider.CodeResponseMismatch {
		t.Fatalf("error = %v, want %s", err, provider.CodeResponseMismatch)
	}
	if cache.setCount() != 0 {
		t.Fatal("cache was written despite mismatched response")
	}
}

func TestTranslateValidation(t *testing.T) {
	svc := NewService(&fakeGateway{}, newFakeCache())

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty texts", func(r *Request) { r.Texts = nil }},
		{"missing source", func(r *Request) { r.SourceLang = " " }},
		{"missing target", func(r *Request) { r.TargetLang = "" }},
		{"unknown provider", func(r *Request) { r.Provider = "babelfish" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest("Hello")
			tt.mutate(&req)
			_, err := svc.Translate(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
		})
	}

	req := testRequest("Hello")
	req.APIKey = "  "
	_, err := svc.Translate(context.Background(), req)
	pe, ok := provider.AsError(err)
	if !ok || pe.Code != provider.CodeMissingAPIKey {
		t.Fatalf("error = %v, want %s", err, provider.CodeMissingAPIKey)
	}
}

func TestSystemInstructionNamesLanguagePair(t *testing.T) {
	got := systemInstruction("en", "fr")
	for _, needle := range []string{"from en to fr", "JSON array", "same order"} {
		if !strings.Contains(got, needle) {
			t.Fatalf("instruction missing %q:\n%s", needle, got)
		}
	}
}
