package provider

import (
	"context"
	"net/http"
)

const (
	deepseekDefaultBaseURL = "https://api.deepseek.com"

	// deepseekMaxItems is the hard per-call segment cap; larger requests are
	// chunked by the registry.
	deepseekMaxItems = 20
)

// DeepSeek translates through the DeepSeek chat completions API, which is
// OpenAI-compatible on the wire.
type DeepSeek struct {
	client *http.Client
}

// NewDeepSeek returns a DeepSeek translator using the given HTTP client.
func NewDeepSeek(client *http.Client) *DeepSeek {
	return &DeepSeek{client: client}
}

func (d *DeepSeek) Kind() Kind { return KindDeepSeek }

func (d *DeepSeek) MaxItemsPerCall() int { return deepseekMaxItems }

func (d *DeepSeek) Translate(ctx context.Context, req Request) ([]string, error) {
	return chatCompletionsTranslate(ctx, d.client, d.Kind(), baseURLOr(req, deepseekDefaultBaseURL), req)
}

func (d *DeepSeek) TranslateStream(ctx context.Context, req Request, onFragment func(text string)) error {
	return chatCompletionsStream(ctx, d.client, d.Kind(), baseURLOr(req, deepseekDefaultBaseURL), req, onFragment)
}
