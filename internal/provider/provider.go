// Package provider normalizes the translation APIs of the supported AI
// vendors behind a single interface: one batch call and one streaming call
// per vendor, canonical error codes, and transparent chunking for vendors
// that cap the number of segments per request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Kind identifies a translation provider.
type Kind string

const (
	KindOpenAI   Kind = "openai"
	KindGemini   Kind = "gemini"
	KindClaude   Kind = "claude"
	KindDeepSeek Kind = "deepseek"
)

// Valid reports whether k names a built-in provider.
func (k Kind) Valid() bool {
	switch k {
	case KindOpenAI, KindGemini, KindClaude, KindDeepSeek:
		return true
	}
	return false
}

// ErrUnknownProvider is returned when a request names a provider that is not
// registered.
var ErrUnknownProvider = errors.New("unknown translation provider")

// Request carries one translation call. Texts holds the segments for this
// call; the registry slices it when a vendor caps segments per request.
type Request struct {
	// APIKey is the caller-supplied credential for the vendor.
	APIKey string
	// Model is the vendor model identifier.
	Model string
	// System is the system instruction describing the translation task.
	System string
	// Texts are the input segments.
	Texts []string
	// BaseURL optionally overrides the vendor's default endpoint.
	BaseURL string
}

// Translator is one vendor's translation surface.
type Translator interface {
	// Kind returns the provider identifier.
	Kind() Kind
	// MaxItemsPerCall returns the vendor's per-call segment cap, 0 for none.
	MaxItemsPerCall() int
	// Translate performs one batch call and returns the translated segments
	// in input order.
	Translate(ctx context.Context, req Request) ([]string, error)
	// TranslateStream performs one streaming call, invoking onFragment for
	// every raw text fragment in arrival order.
	TranslateStream(ctx context.Context, req Request, onFragment func(text string)) error
}

// Registry holds the registered translators and fronts them with credential
// checks and chunking.
type Registry struct {
	mu          sync.RWMutex
	translators map[Kind]Translator
}

// NewRegistry builds a registry with the four built-in translators sharing
// one HTTP client. A nil client gets the package default.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = NewHTTPClient()
	}
	r := &Registry{translators: make(map[Kind]Translator)}
	r.Register(NewOpenAI(client))
	r.Register(NewDeepSeek(client))
	r.Register(NewGemini(client))
	r.Register(NewClaude(client))
	return r
}

// Register adds or replaces a translator.
func (r *Registry) Register(t Translator) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[t.Kind()] = t
}

// Lookup returns the translator registered for kind.
func (r *Registry) Lookup(kind Kind) (Translator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.translators[kind]
	return t, ok
}

// Kinds returns the registered provider identifiers.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.translators))
	for k := range r.translators {
		kinds = append(kinds, k)
	}
	return kinds
}

// Translate runs a batch translation through the named provider. When the
// vendor caps segments per call, the request is split into consecutive
// chunks issued sequentially; each chunk is length-verified by the vendor
// implementation, and a failed chunk aborts the whole call with no partial
// result.
func (r *Registry) Translate(ctx context.Context, kind Kind, req Request) ([]string, error) {
	t, err := r.resolve(kind, req)
	if err != nil {
		return nil, err
	}

	limit := t.MaxItemsPerCall()
	if limit <= 0 || len(req.Texts) <= limit {
		return t.Translate(ctx, req)
	}

	out := make([]string, 0, len(req.Texts))
	for start := 0; start < len(req.Texts); start += limit {
		end := min(start+limit, len(req.Texts))
		chunkReq := req
		chunkReq.Texts = req.Texts[start:end]
		log.Debugf("provider %s: translating chunk %d-%d of %d", kind, start, end-1, len(req.Texts))
		part, errChunk := t.Translate(ctx, chunkReq)
		if errChunk != nil {
			return nil, errChunk
		}
		out = append(out, part...)
	}
	return out, nil
}

// TranslateStream runs a streaming translation through the named provider.
// Chunked vendors stream each chunk in turn through the same onFragment;
// the fragments of consecutive chunks form back-to-back JSON arrays, which
// the downstream parser stitches into one element sequence.
func (r *Registry) TranslateStream(ctx context.Context, kind Kind, req Request, onFragment func(text string)) error {
	t, err := r.resolve(kind, req)
	if err != nil {
		return err
	}

	limit := t.MaxItemsPerCall()
	if limit <= 0 || len(req.Texts) <= limit {
		return t.TranslateStream(ctx, req, onFragment)
	}

	for start := 0; start < len(req.Texts); start += limit {
		end := min(start+limit, len(req.Texts))
		chunkReq := req
		chunkReq.Texts = req.Texts[start:end]
		log.Debugf("provider %s: streaming chunk %d-%d of %d", kind, start, end-1, len(req.Texts))
		if errChunk := t.TranslateStream(ctx, chunkReq, onFragment); errChunk != nil {
			return errChunk
		}
	}
	return nil
}

func (r *Registry) resolve(kind Kind, req Request) (Translator, error) {
	t, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, &Error{
			Code:    CodeMissingAPIKey,
			Message: fmt.Sprintf("no API key configured for provider %s", kind),
		}
	}
	return t, nil
}
