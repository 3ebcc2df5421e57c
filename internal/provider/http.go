package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
)

// streamScannerBuffer bounds a single SSE line; provider frames can carry
// whole translated paragraphs.
const streamScannerBuffer = 1024 * 1024

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")

	// codeFence matches a markdown code block, optionally tagged json, that
	// some providers wrap around batch payloads.
	codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// NewHTTPClient returns the outbound client shared by all translators. No
// overall timeout is set so streaming responses can run as long as the
// request context allows; connection setup and first-byte latency are still
// bounded.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// newSSEScanner configures a line scanner for an event-stream body.
func newSSEScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, streamScannerBuffer)
	return scanner
}

// decodeResponseBody decompresses a response body according to its
// Content-Encoding header.
func decodeResponseBody(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return io.ReadAll(zr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return body, nil
	}
}

// readResponseBody drains and decompresses an upstream response.
func readResponseBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: CodeNetworkError, Message: "failed to read provider response", Err: err}
	}
	decoded, err := decodeResponseBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, &Error{Code: CodeNetworkError, Message: "failed to decode provider response", Err: err}
	}
	return decoded, nil
}

// transportError classifies a failure that happened before any upstream
// response arrived.
func transportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: "provider request timed out", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Code: CodeTimeout, Message: "provider request timed out", Err: err}
	}
	return &Error{Code: CodeNetworkError, Message: "provider request failed", Err: err}
}

// upstreamError classifies a non-2xx upstream response. The upstream error
// payload's own message wins over a generic one when present.
func upstreamError(status int, body []byte) *Error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	var code string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = CodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		if quotaExhausted(body) {
			code = CodeQuotaExceeded
		} else {
			code = CodeRateLimited
		}
	case status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		code = CodeTimeout
	default:
		code = CodeAPIError
	}
	return &Error{Code: code, Message: msg, HTTPStatus: status}
}

// quotaExhausted reports whether a 429 payload marks a spent quota rather
// than a transient rate limit.
func quotaExhausted(body []byte) bool {
	if gjson.GetBytes(body, "error.type").String() == "insufficient_quota" {
		return true
	}
	if gjson.GetBytes(body, "error.code").String() == "insufficient_quota" {
		return true
	}
	msg := strings.ToLower(gjson.GetBytes(body, "error.message").String())
	return strings.Contains(msg, "quota")
}

// serializeTexts renders the chunk's input segments as the JSON array that
// travels in the user message.
func serializeTexts(texts []string) string {
	b, _ := json.Marshal(texts)
	return string(b)
}

// extractArrayText strips markdown fences and any prose outside the
// outermost array brackets from a batch payload.
func extractArrayText(payload string) string {
	if m := codeFence.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}
	start := strings.Index(payload, "[")
	end := strings.LastIndex(payload, "]")
	if start >= 0 && end > start {
		payload = payload[start : end+1]
	}
	return strings.TrimSpace(payload)
}

// decodeTranslatedArray parses a batch payload into translated segments and
// verifies the element count matches the request. Elements that are valid
// JSON but not strings decode to the empty string, mirroring the streaming
// parser.
func decodeTranslatedArray(payload string, want int) ([]string, error) {
	text := extractArrayText(payload)
	if text == "" {
		return nil, &Error{Code: CodeInvalidResponse, Message: "provider returned an empty translation payload"}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &Error{Code: CodeJSONParseError, Message: "translation payload is not a JSON array", Err: err}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			out = append(out, "")
			continue
		}
		out = append(out, s)
	}
	if len(out) != want {
		return nil, &Error{
			Code:    CodeResponseMismatch,
			Message: fmt.Sprintf("requested %d translations, provider returned %d", want, len(out)),
		}
	}
	return out, nil
}
