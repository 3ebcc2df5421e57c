package translate

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/lingobridge/lingobridge/internal/api/middleware"
	"github.com/lingobridge/lingobridge/internal/jsonarray"
	"github.com/lingobridge/lingobridge/internal/provider"
)

// EventType discriminates streaming events.
type EventType string

const (
	// EventCached delivers a segment that was already in the cache.
	EventCached EventType = "cached"
	// EventElement delivers a segment freshly translated by the provider.
	EventElement EventType = "element"
	// EventComplete is the terminal success event carrying the full result.
	EventComplete EventType = "complete"
	// EventError is the terminal failure event.
	EventError EventType = "error"
)

// Event is one message on a streaming translation channel. Index is always
// the position in the original request, regardless of how the miss subset was
// sent upstream. Index and Text serialize unconditionally: index 0 and the
// empty-string substitution for non-string payloads are both valid values.
type Event struct {
	Type         EventType `json:"type"`
	Index        int       `json:"index"`
	Text         string    `json:"text"`
	Translations []string  `json:"translations,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorCode    string    `json:"errorCode,omitempty"`
}

func errorEvent(err error) Event {
	if pe, ok := provider.AsError(err); ok {
		return Event{Type: EventError, Error: pe.Message, ErrorCode: pe.Code}
	}
	return Event{Type: EventError, Error: err.Error()}
}

// TranslateStream resolves the request incrementally. Cached segments are
// delivered first, one "cached" event each in ascending request order; every
// segment parsed out of the provider stream follows as an "element" event the
// moment its closing quote arrives. The channel carries exactly one terminal
// event ("complete" or "error") and is then closed. Cache writes for streamed
// segments are detached so a slow store never delays delivery.
//
// The context governs teardown: when the caller abandons the stream it
// cancels ctx, which stops deliveries without necessarily aborting an
// in-flight provider call. Events already sent remain valid.
func (s *Service) TranslateStream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, len(req.Texts)+1)
	go s.runStream(ctx, req, out)
	return out
}

func (s *Service) runStream(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if err := validate(req); err != nil {
		send(errorEvent(err))
		return
	}

	middleware.StreamStarted()
	defer middleware.StreamFinished()

	results, hit, missIndices := s.lookupCached(ctx, req)
	middleware.RecordSegments("cache", len(req.Texts)-len(missIndices))

	for i := range req.Texts {
		if !hit[i] {
			continue
		}
		if !send(Event{Type: EventCached, Index: i, Text: results[i]}) {
			return
		}
	}

	if len(missIndices) == 0 {
		log.Debugf("translate: stream served entirely from cache, %d segments", len(req.Texts))
		middleware.RecordTranslation(string(req.Provider), "stream", "success")
		send(Event{Type: EventComplete, Translations: results})
		return
	}

	missTexts := make([]string, len(missIndices))
	for i, idx := range missIndices {
		missTexts[i] = req.Texts[idx]
	}
	log.Debugf("translate: streaming %d/%d segments through %s", len(missTexts), len(req.Texts), req.Provider)

	// abandoned flips when the consumer goes away; parsing continues so the
	// provider stream drains cleanly, but nothing further is delivered.
	abandoned := false
	parser := jsonarray.NewParser(func(local int, text string) {
		if local >= len(missIndices) {
			log.Warnf("translate: provider returned extra element %d, dropping", local)
			return
		}
		origin := missIndices[local]
		results[origin] = text
		if !abandoned && !send(Event{Type: EventElement, Index: origin, Text: text}) {
			abandoned = true
		}
		// Detached write: stream delivery never waits on the store.
		go s.cache.Set(req.SourceLang, req.TargetLang, req.Texts[origin], text)
	})

	if err := s.gateway.TranslateStream(ctx, req.Provider, s.providerRequest(req, missTexts), parser.Feed); err != nil {
		s.recordFailure(req.Provider, "stream", err)
		send(errorEvent(err))
		return
	}

	elements, err := parser.End()
	if err != nil {
		perr := &provider.Error{Code: provider.CodeJSONParseError, Message: "provider stream contained no translations", Err: err}
		s.recordFailure(req.Provider, "stream", perr)
		send(errorEvent(perr))
		return
	}
	if len(elements) != len(missTexts) {
		perr := &provider.Error{
			Code:    provider.CodeResponseMismatch,
			Message: fmt.Sprintf("requested %d translations, provider streamed %d", len(missTexts), len(elements)),
		}
		s.recordFailure(req.Provider, "stream", perr)
		send(errorEvent(perr))
		return
	}

	middleware.RecordSegments("provider", len(missTexts))
	middleware.RecordTranslation(string(req.Provider), "stream", "success")
	send(Event{Type: EventComplete, Translations: results})
}
