// Package translate orchestrates batch translations: it fans cache lookups
// out over the requested segments, sends the misses through the provider
// gateway in one call, writes the new translations back to the cache, and
// reassembles the results in the original request order. Two modes exist: a
// synchronous call that returns the merged list, and a streaming call that
// delivers each resolved segment over a channel as soon as it is known.
package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lingobridge/lingobridge/internal/api/middleware"
	"github.com/lingobridge/lingobridge/internal/provider"
)

// Cache is the translation cache surface the orchestrator needs. Lookups
// report presence only; writes never fail the caller.
type Cache interface {
	Get(sourceLang, targetLang, text string) (string, bool)
	Set(sourceLang, targetLang, text, translation string)
}

// Gateway is the provider gateway surface. *provider.Registry implements it.
type Gateway interface {
	Translate(ctx context.Context, kind provider.Kind, req provider.Request) ([]string, error)
	TranslateStream(ctx context.Context, kind provider.Kind, req provider.Request, onFragment func(text string)) error
}

// Request is one batch translation request. Texts ordering is significant and
// is preserved in the result.
type Request struct {
	// Texts are the segments to translate, in display order.
	Texts []string
	// SourceLang and TargetLang are the language pair, e.g. "en" -> "es".
	SourceLang string
	TargetLang string
	// Provider selects the vendor.
	Provider provider.Kind
	// APIKey is the caller-supplied credential for the vendor.
	APIKey string
	// Model is the vendor model identifier.
	Model string
	// BaseURL optionally overrides the vendor endpoint.
	BaseURL string
}

// ValidationError marks a malformed request, as opposed to a provider
// failure. The API layer maps it to a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Service wires the cache and the provider gateway together.
type Service struct {
	gateway Gateway
	cache   Cache
}

// NewService builds the orchestrator.
func NewService(gateway Gateway, cache Cache) *Service {
	return &Service{gateway: gateway, cache: cache}
}

// systemInstruction builds the translation instruction for a language pair.
// The vendor receives the input segments as a JSON array and must answer with
// a JSON array of the same length and order.
func systemInstruction(sourceLang, targetLang string) string {
	return fmt.Sprintf(`You are a professional translator. Translate each string in the user's JSON array from %s to %s.

REQUIREMENTS:
- Return ONLY a JSON array of translated strings, one for each input entry, in the same order.
- The output array must have exactly as many elements as the input array.
- Preserve leading/trailing whitespace, punctuation and inline markup exactly as-is.
- Keep brand names and proper nouns unchanged.
- Do not add explanations or markdown code blocks.`, sourceLang, targetLang)
}

func validate(req Request) error {
	if len(req.Texts) == 0 {
		return &ValidationError{Message: "texts must not be empty"}
	}
	if strings.TrimSpace(req.SourceLang) == "" || strings.TrimSpace(req.TargetLang) == "" {
		return &ValidationError{Message: "source and target languages are required"}
	}
	if !req.Provider.Valid() {
		return &ValidationError{Message: fmt.Sprintf("unknown provider %q", req.Provider)}
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return &provider.Error{
			Code:    provider.CodeMissingAPIKey,
			Message: fmt.Sprintf("no API key configured for provider %s", req.Provider),
		}
	}
	return nil
}

// lookupCached fans one cache lookup per segment out concurrently and waits
// for all of them. It returns the per-index translations for hits and the
// original indices of the misses, ascending.
func (s *Service) lookupCached(ctx context.Context, req Request) ([]string, []bool, []int) {
	n := len(req.Texts)
	results := make([]string, n)
	hit := make([]bool, n)

	g, _ := errgroup.WithContext(ctx)
	for i, text := range req.Texts {
		i, text := i, text
		g.Go(func() error {
			if translation, ok := s.cache.Get(req.SourceLang, req.TargetLang, text); ok {
				results[i] = translation
				hit[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	missIndices := make([]int, 0, n)
	for i := range req.Texts {
		if !hit[i] {
			missIndices = append(missIndices, i)
		}
	}
	return results, hit, missIndices
}

func (s *Service) providerRequest(req Request, texts []string) provider.Request {
	return provider.Request{
		APIKey:  req.APIKey,
		Model:   req.Model,
		System:  systemInstruction(req.SourceLang, req.TargetLang),
		Texts:   texts,
		BaseURL: req.BaseURL,
	}
}

// Translate resolves every segment, from the cache where possible and through
// one gateway call for the rest, and returns the merged list in request
// order. Any provider failure fails the whole call; nothing from the failed
// call is cached.
func (s *Service) Translate(ctx context.Context, req Request) ([]string, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	results, _, missIndices := s.lookupCached(ctx, req)
	middleware.RecordSegments("cache", len(req.Texts)-len(missIndices))

	if len(missIndices) == 0 {
		log.Debugf("translate: all %d segments served from cache (%s->%s)", len(req.Texts), req.SourceLang, req.TargetLang)
		middleware.RecordTranslation(string(req.Provider), "sync", "success")
		return results, nil
	}

	missTexts := make([]string, len(missIndices))
	for i, idx := range missIndices {
		missTexts[i] = req.Texts[idx]
	}
	log.Debugf("translate: %d/%d segments missed cache, calling %s", len(missTexts), len(req.Texts), req.Provider)

	translated, err := s.gateway.Translate(ctx, req.Provider, s.providerRequest(req, missTexts))
	if err != nil {
		s.recordFailure(req.Provider, "sync", err)
		return nil, err
	}
	// The gateway verifies per chunk; this guards the concatenated total.
	if len(translated) != len(missTexts) {
		err = &provider.Error{
			Code:    provider.CodeResponseMismatch,
			Message: fmt.Sprintf("requested %d translations, provider returned %d", len(missTexts), len(translated)),
		}
		s.recordFailure(req.Provider, "sync", err)
		return nil, err
	}

	var wg sync.WaitGroup
	for i, idx := range missIndices {
		results[idx] = translated[i]
		wg.Add(1)
		go func(text, translation string) {
			defer wg.Done()
			s.cache.Set(req.SourceLang, req.TargetLang, text, translation)
		}(req.Texts[idx], translated[i])
	}
	wg.Wait()

	middleware.RecordSegments("provider", len(missTexts))
	middleware.RecordTranslation(string(req.Provider), "sync", "success")
	return results, nil
}

func (s *Service) recordFailure(kind provider.Kind, mode string, err error) {
	middleware.RecordTranslation(string(kind), mode, "error")
	if pe, ok := provider.AsError(err); ok {
		middleware.RecordTranslationError(pe.Code, string(kind))
	}
}
