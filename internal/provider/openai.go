package provider

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAI translates through the OpenAI chat completions API.
type OpenAI struct {
	client *http.Client
}

// NewOpenAI returns an OpenAI translator using the given HTTP client.
func NewOpenAI(client *http.Client) *OpenAI {
	return &OpenAI{client: client}
}

func (o *OpenAI) Kind() Kind { return KindOpenAI }

func (o *OpenAI) MaxItemsPerCall() int { return 0 }

func (o *OpenAI) Translate(ctx context.Context, req Request) ([]string, error) {
	return chatCompletionsTranslate(ctx, o.client, o.Kind(), baseURLOr(req, openaiDefaultBaseURL), req)
}

func (o *OpenAI) TranslateStream(ctx context.Context, req Request, onFragment func(text string)) error {
	return chatCompletionsStream(ctx, o.client, o.Kind(), baseURLOr(req, openaiDefaultBaseURL), req, onFragment)
}

func baseURLOr(req Request, fallback string) string {
	if strings.TrimSpace(req.BaseURL) != "" {
		return strings.TrimSuffix(strings.TrimSpace(req.BaseURL), "/")
	}
	return fallback
}

// chatCompletionsBody builds the request payload shared by all chat
// completions vendors. The user message content is the JSON-serialized
// input array.
func chatCompletionsBody(req Request, stream bool) []byte {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", req.Model)
	body, _ = sjson.SetBytes(body, "messages.0.role", "system")
	body, _ = sjson.SetBytes(body, "messages.0.content", req.System)
	body, _ = sjson.SetBytes(body, "messages.1.role", "user")
	body, _ = sjson.SetBytes(body, "messages.1.content", serializeTexts(req.Texts))
	if stream {
		body, _ = sjson.SetBytes(body, "stream", true)
	}
	return body
}

func postChatCompletions(ctx context.Context, client *http.Client, baseURL string, req Request, body []byte, stream bool) (*http.Response, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeNetworkError, Message: "failed to build provider request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	if !stream {
		httpReq.Header.Set("Accept-Encoding", "gzip, br")
	}
	resp, errDo := client.Do(httpReq)
	if errDo != nil {
		return nil, transportError(errDo)
	}
	return resp, nil
}

func chatCompletionsTranslate(ctx context.Context, client *http.Client, kind Kind, baseURL string, req Request) ([]string, error) {
	log.Debugf("provider %s: batch translate, %d segments, model=%s", kind, len(req.Texts), req.Model)

	resp, err := postChatCompletions(ctx, client, baseURL, req, chatCompletionsBody(req, false), false)
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

	payload := gjson.GetBytes(data, "choices.0.message.content").String()
	if payload == "" {
		return nil, &Error{Code: CodeInvalidResponse, Message: "provider response carried no message content"}
	}
	return decodeTranslatedArray(payload, len(req.Texts))
}

func chatCompletionsStream(ctx context.Context, client *http.Client, kind Kind, baseURL string, req Request, onFragment func(text string)) error {
	log.Debugf("provider %s: stream translate, %d segments, model=%s", kind, len(req.Texts), req.Model)

	resp, err := postChatCompletions(ctx, client, baseURL, req, chatCompletionsBody(req, true), true)
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
		if bytes.Equal(payload, doneSentinel) {
			return nil
		}
		if delta := gjson.GetBytes(payload, "choices.0.delta.content"); delta.Exists() && delta.String() != "" {
			onFragment(delta.String())
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return &Error{Code: CodeNetworkError, Message: "provider stream failed", Err: errScan}
	}
	return nil
}
