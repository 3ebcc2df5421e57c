package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// Gemini translates through the Gemini generateContent API. Its stream
// frames carry whole content parts per event rather than incremental deltas.
type Gemini struct {
	client *http.Client
}

// NewGemini returns a Gemini translator using the given HTTP client.
func NewGemini(client *http.Client) *Gemini {
	return &Gemini{client: client}
}

func (g *Gemini) Kind() Kind { return KindGemini }

func (g *Gemini) MaxItemsPerCall() int { return 0 }

func geminiBody(req Request) []byte {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "systemInstruction.parts.0.text", req.System)
	body, _ = sjson.SetBytes(body, "contents.0.role", "user")
	body, _ = sjson.SetBytes(body, "contents.0.parts.0.text", serializeTexts(req.Texts))
	return body
}

func (g *Gemini) post(ctx context.Context, req Request, action string, stream bool) (*http.Response, error) {
	base := baseURLOr(req, geminiDefaultBaseURL)
	url := fmt.Sprintf("%s/v1beta/models/%s:%s", base, req.Model, action)
	if stream {
		url += "?alt=sse"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(geminiBody(req)))
	if err != nil {
		return nil, &Error{Code: CodeNetworkError, Message: "failed to build provider request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)
	if !stream {
		httpReq.Header.Set("Accept-Encoding", "gzip, br")
	}
	resp, errDo := g.client.Do(httpReq)
	if errDo != nil {
		return nil, transportError(errDo)
	}
	return resp, nil
}

func (g *Gemini) Translate(ctx context.Context, req Request) ([]string, error) {
	log.Debugf("provider %s: batch translate, %d segments, model=%s", g.Kind(), len(req.Texts), req.Model)

	resp, err := g.post(ctx, req, "generateContent", false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp.StatusCode, data)
	}

	payload := gjson.GetBytes(data, "candidates.0.content.parts.0.text").String()
	if payload == "" {
		return nil, &Error{Code: CodeInvalidResponse, Message: "provider response carried no candidate text"}
	}
	return decodeTranslatedArray(payload, len(req.Texts))
}

func (g *Gemini) TranslateStream(ctx context.Context, req Request, onFragment func(text string)) error {
	log.Debugf("provider %s: stream translate, %d segments, model=%s", g.Kind(), len(req.Texts), req.Model)

	resp, err := g.post(ctx, req, "streamGenerateContent", true)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, errRead := readResponseBody(resp)
		if errRead != nil {
			return errRead
		}
		return upstreamError(resp.StatusCode, data)
	}

	// Gemini has no terminal sentinel frame; the stream ends at EOF with a
	// finishReason on the last frame.
	scanner := newSSEScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if len(payload) == 0 {
			continue
		}
		parts := gjson.GetBytes(payload, "candidates.0.content.parts")
		if !parts.Exists() {
			continue
		}
		for _, part := range parts.Array() {
			if text := part.Get("text"); text.Exists() && text.String() != "" {
				onFragment(text.String())
			}
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return &Error{Code: CodeNetworkError, Message: "provider stream failed", Err: errScan}
	}
	return nil
}
