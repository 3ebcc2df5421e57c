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

const (
	claudeDefaultBaseURL = "https://api.anthropic.com"
	claudeAPIVersion     = "2023-06-01"
	claudeMaxTokens      = 8192
)

// Claude translates through the Anthropic messages API.
type Claude struct {
	client *http.Client
}

// NewClaude returns a Claude translator using the given HTTP client.
func NewClaude(client *http.Client) *Claude {
	return &Claude{client: client}
}

func (c *Claude) Kind() Kind { return KindClaude }

func (c *Claude) MaxItemsPerCall() int { return 0 }

func claudeBody(req Request, stream bool) []byte {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", req.Model)
	body, _ = sjson.SetBytes(body, "max_tokens", claudeMaxTokens)
	body, _ = sjson.SetBytes(body, "system", req.System)
	body, _ = sjson.SetBytes(body, "messages.0.role", "user")
	body, _ = sjson.SetBytes(body, "messages.0.content", serializeTexts(req.Texts))
	if stream {
		body, _ = sjson.SetBytes(body, "stream", true)
	}
	return body
}

func (c *Claude) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	url := strings.TrimSuffix(baseURLOr(req, claudeDefaultBaseURL), "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(claudeBody(req, stream)))
	if err != nil {
		return nil, &Error{Code: CodeNetworkError, Message: "failed to build provider request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)
	if !stream {
		httpReq.Header.Set("Accept-Encoding", "gzip, br")
	}
	resp, errDo := c.client.Do(httpReq)
	if errDo != nil {
		return nil, transportError(errDo)
	}
	return resp, nil
}

func (c *Claude) Translate(ctx context.Context, req Request) ([]string, error) {
	log.Debugf("provider %s: batch translate, %d segments, model=%s", c.Kind(), len(req.Texts), req.Model)

	resp, err := c.post(ctx, req, false)
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

	payload := gjson.GetBytes(data, `content.#(type=="text").text`).String()
	if payload == "" {
		payload = gjson.GetBytes(data, "content.0.text").String()
	}
	if payload == "" {
		return nil, &Error{Code: CodeInvalidResponse, Message: "provider response carried no text content"}
	}
	return decodeTranslatedArray(payload, len(req.Texts))
}

func (c *Claude) TranslateStream(ctx context.Context, req Request, onFragment func(text string)) error {
	log.Debugf("provider %s: stream translate, %d segments, model=%s", c.Kind(), len(req.Texts), req.Model)

	resp, err := c.post(ctx, req, true)
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
		switch gjson.GetBytes(payload, "type").String() {
		case "content_block_delta":
			if delta := gjson.GetBytes(payload, "delta.text"); delta.Exists() && delta.String() != "" {
				onFragment(delta.String())
			}
		case "message_stop":
			// Terminal sentinel; carries no text.
			return nil
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return &Error{Code: CodeNetworkError, Message: "provider stream failed", Err: errScan}
	}
	return nil
}
