package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/lingobridge/lingobridge/internal/jsonarray"
)

// newChatEchoServer translates every received segment by prefixing "t:" and
// records the segments of each upstream call.
func newChatEchoServer(calls *[][]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var sent []string
		_ = json.Unmarshal([]byte(gjson.GetBytes(body, "messages.1.content").String()), &sent)
		*calls = append(*calls, sent)

		translated := make([]string, len(sent))
		for i, s := range sent {
			translated[i] = "t:" + s
		}
		out, _ := json.Marshal(translated)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, openaiChatResponse(string(out)))
	}))
}

func segmentRange(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("seg-%d", i)
	}
	return texts
}

func TestRegistryDeepSeekChunking(t *testing.T) {
	var calls [][]string
	srv := newChatEchoServer(&calls)
	defer srv.Close()

	r := NewRegistry(srv.Client())
	texts := segmentRange(25)
	got, err := r.Translate(context.Background(), KindDeepSeek, Request{
		APIKey: "k", Model: "deepseek-chat", Texts: texts, BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("Translate() error: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("upstream calls = %d, want 2", len(calls))
	}
	if len(calls[0]) != 20 || len(calls[1]) != 5 {
		t.Fatalf("chunk sizes = %d/%d, want 20/5", len(calls[0]), len(calls[1]))
	}
	if len(got) != 25 {
		t.Fatalf("result length = %d, want 25", len(got))
	}
	for i, text := range got {
		if want := "t:" + texts[i]; text != want {
			t.Fatalf("result[%d] = %q, want %q (order preserved across chunks)", i, text, want)
		}
	}
}

func TestRegistryDeepSeekSingleCallAtLimit(t *testing.T) {
	var calls [][]string
	srv := newChatEchoServer(&calls)
	defer srv.Close()

	r := NewRegistry(srv.Client())
	_, err := r.Translate(context.Background(), KindDeepSeek, Request{
		APIKey: "k", Model: "deepseek-chat", Texts: segmentRange(20), BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("Translate() error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(calls))
	}
}

func TestRegistryOpenAINotChunked(t *testing.T) {
	var calls [][]string
	srv := newChatEchoServer(&calls)
	defer srv.Close()

	r := NewRegistry(srv.Client())
	_, err := r.Translate(context.Background(), KindOpenAI, Request{
		APIKey: "k", Model: "gpt-4o-mini", Texts: segmentRange(25), BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("Translate() error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("upstream calls = %d, want 1 (no cap)", len(calls))
	}
}

func TestRegistryChunkMismatchAborts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// One element short of the 20 requested.
		out, _ := json.Marshal(segmentRange(19))
		fmt.Fprint(w, openaiChatResponse(string(out)))
	}))
	defer srv.Close()

	r := NewRegistry(srv.Client())
	got, err := r.Translate(context.Background(), KindDeepSeek, Request{
		APIKey: "k", Model: "deepseek-chat", Texts: segmentRange(25), BaseURL: srv.URL,
	})
	pe, ok := AsError(err)
	if !ok || pe.Code != CodeResponseMismatch {
		t.Fatalf("error = %v, want %s", err, CodeResponseMismatch)
	}
	if got != nil {
		t.Fatalf("result = %v, want nil on chunk failure", got)
	}
	if calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (sequence aborted at first bad chunk)", calls)
	}
}

func TestRegistryMissingAPIKey(t *testing.T) {
	var calls [][]string
	srv := newChatEchoServer(&calls)
	defer srv.Close()

	r := NewRegistry(srv.Client())
	_, err := r.Translate(context.Background(), KindOpenAI, Request{
		APIKey: "   ", Model: "m", Texts: []string{"a"}, BaseURL: srv.URL,
	})
	pe, ok := AsError(err)
	if !ok || pe.Code != CodeMissingAPIKey {
		t.Fatalf("error = %v, want %s", err, CodeMissingAPIKey)
	}
	if len(calls) != 0 {
		t.Fatal("provider was called despite missing credential")
	}

	errStream := r.TranslateStream(context.Background(), KindOpenAI, Request{
		Model: "m", Texts: []string{"a"}, BaseURL: srv.URL,
	}, func(string) {})
	pe, ok = AsError(errStream)
	if !ok || pe.Code != CodeMissingAPIKey {
		t.Fatalf("stream error = %v, want %s", errStream, CodeMissingAPIKey)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(http.DefaultClient)
	_, err := r.Translate(context.Background(), Kind("babelfish"), Request{
		APIKey: "k", Model: "m", Texts: []string{"a"},
	})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("error = %v, want ErrUnknownProvider", err)
	}
}

// Chunked streaming forwards each chunk's fragments through the same
// callback; the fragments form back-to-back JSON arrays that the stream
// parser stitches into one element sequence.
func TestRegistryDeepSeekStreamChunking(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		var sent []string
		_ = json.Unmarshal([]byte(gjson.GetBytes(body, "messages.1.content").String()), &sent)

		translated := make([]string, len(sent))
		for i, s := range sent {
			translated[i] = "t:" + s
		}
		out, _ := json.Marshal(translated)

		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		// Split the array text mid-element to exercise fragment boundaries.
		text := string(out)
		mid := len(text) / 2
		for _, piece := range []string{text[:mid], text[mid:]} {
			frame, _ := json.Marshal(piece)
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%s}}]}\n\n", frame)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	r := NewRegistry(srv.Client())
	parser := jsonarray.NewParser(nil)
	texts := segmentRange(25)
	err := r.TranslateStream(context.Background(), KindDeepSeek, Request{
		APIKey: "k", Model: "deepseek-chat", Texts: texts, BaseURL: srv.URL,
	}, parser.Feed)
	if err != nil {
		t.Fatalf("TranslateStream() error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("upstream calls = %d, want 2", calls)
	}

	elements, err := parser.End()
	if err != nil {
		t.Fatalf("parser End() error: %v", err)
	}
	if len(elements) != 25 {
		t.Fatalf("parsed elements = %d, want 25", len(elements))
	}
	for i, text := range elements {
		if want := "t:" + texts[i]; text != want {
			t.Fatalf("element %d = %q, want %q", i, text, want)
		}
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindOpenAI, KindGemini, KindClaude, KindDeepSeek} {
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false", k)
		}
	}
	if Kind("").Valid() || Kind("babelfish").Valid() {
		t.Error("invalid kinds reported valid")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{CodeMissingAPIKey, http.StatusUnauthorized},
		{CodeInvalidAPIKey, http.StatusUnauthorized},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeQuotaExceeded, http.StatusTooManyRequests},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeAPIError, http.StatusBadGateway},
		{CodeNetworkError, http.StatusBadGateway},
		{CodeJSONParseError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.code); got != tt.want {
			t.Errorf("StatusFor(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestExtractArrayText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n[\"a\"]\n```", `["a"]`},
		{"```\n[\"a\"]\n```", `["a"]`},
		{"Here you go: [\"a\",\"b\"] enjoy", `["a","b"]`},
		{`["plain"]`, `["plain"]`},
		{"no array here", "no array here"},
	}
	for _, tt := range tests {
		if got := extractArrayText(tt.in); got != tt.want {
			t.Errorf("extractArrayText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
