// Package jsonarray incrementally parses a JSON array of strings that arrives
// as arbitrary text fragments, emitting each element as soon as it completes.
// Provider streams deliver fragments at unpredictable boundaries; the parser
// produces identical output no matter how the same text is split.
package jsonarray

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoElements is returned by End when the stream produced no elements.
var ErrNoElements = errors.New("stream ended with no elements")

// State is a snapshot of parser progress, useful for diagnostics and tests.
type State struct {
	// Buffer holds all text fed so far.
	Buffer string
	// InString reports whether the cursor is inside a string literal.
	InString bool
	// EscapeNext reports whether the previous character was a backslash.
	EscapeNext bool
	// BracketDepth is the current nesting depth; 1 means top level of the array.
	BracketDepth int
	// CurrentElement is the raw text of the element being accumulated.
	CurrentElement string
	// ElementIndex is the index the next emitted element will receive.
	ElementIndex int
	// Elements holds every element emitted so far.
	Elements []string
	// Started reports whether the opening bracket has been seen.
	Started bool
}

// Parser is a restartable character-level state machine over a streamed JSON
// string array. A string element is emitted at its closing quote, before any
// delimiter arrives. Valid non-string values (numbers, booleans, null, nested
// composites) emit the empty string; tokens that are not valid JSON are
// skipped without consuming an index. After the array closes, a later
// top-level '[' continues the same element sequence, which lets back-to-back
// arrays from chunked upstream calls parse as one stream.
type Parser struct {
	onElement func(index int, text string)

	buffer   strings.Builder
	current  strings.Builder
	elements []string
	index    int
	depth    int
	inString bool
	escape   bool
	started  bool
	// capture marks that current holds the inner text of a bare string
	// element, accumulated without its quotes.
	capture bool
}

// NewParser returns a parser that invokes onElement for every completed
// element. onElement may be nil; emitted elements are always retrievable
// through End and State.
func NewParser(onElement func(index int, text string)) *Parser {
	return &Parser{onElement: onElement}
}

// Feed consumes the next fragment of the stream.
func (p *Parser) Feed(fragment string) {
	p.buffer.WriteString(fragment)
	for i := 0; i < len(fragment); i++ {
		p.step(fragment[i])
	}
}

// End finishes the stream and returns all emitted elements. A token still
// pending outside a string when the array never closed is given a final
// flush, so truncation right after a complete non-string value does not lose
// that position. End fails when nothing was emitted, which covers empty
// arrays and streams that never contained an array at all.
func (p *Parser) End() ([]string, error) {
	if p.started && !p.inString && p.depth > 0 {
		p.flushPending()
	}
	if len(p.elements) == 0 {
		return nil, ErrNoElements
	}
	return p.elements, nil
}

// Len reports how many elements have been emitted so far.
func (p *Parser) Len() int {
	return len(p.elements)
}

// State returns a snapshot of the parser.
func (p *Parser) State() State {
	elems := make([]string, len(p.elements))
	copy(elems, p.elements)
	return State{
		Buffer:         p.buffer.String(),
		InString:       p.inString,
		EscapeNext:     p.escape,
		BracketDepth:   p.depth,
		CurrentElement: p.current.String(),
		ElementIndex:   p.index,
		Elements:       elems,
		Started:        p.started,
	}
}

// step advances the machine by one byte. Structural JSON characters are all
// ASCII, so byte-wise processing is safe; multi-byte runes only occur inside
// string content and pass through untouched.
func (p *Parser) step(c byte) {
	if !p.started {
		// Tolerate prose or fence preamble before the array opens.
		if c == '[' {
			p.started = true
			p.depth = 1
		}
		return
	}

	if p.inString {
		switch {
		case p.escape:
			p.current.WriteByte(c)
			p.escape = false
		case c == '\\':
			p.current.WriteByte(c)
			p.escape = true
		case c == '"':
			p.inString = false
			if p.capture && p.depth == 1 {
				p.emitString()
			} else {
				p.current.WriteByte(c)
			}
		default:
			p.current.WriteByte(c)
		}
		return
	}

	if p.depth == 0 {
		// Between arrays only a new top-level '[' matters; it restarts the
		// machine and the element sequence continues.
		if c == '[' {
			p.depth = 1
		}
		return
	}

	switch c {
	case '"':
		p.inString = true
		if p.depth == 1 && strings.TrimSpace(p.current.String()) == "" {
			p.current.Reset()
			p.capture = true
		} else {
			p.current.WriteByte(c)
		}
	case '[', '{':
		p.depth++
		p.current.WriteByte(c)
	case ']':
		if p.depth == 1 {
			p.flushPending()
			p.depth = 0
			return
		}
		p.depth--
		p.current.WriteByte(c)
	case '}':
		if p.depth == 1 {
			// Stray closing brace at top level; gets the token skipped.
			p.current.WriteByte(c)
			return
		}
		p.depth--
		p.current.WriteByte(c)
	case ',':
		if p.depth == 1 {
			p.flushPending()
			return
		}
		p.current.WriteByte(c)
	default:
		p.current.WriteByte(c)
	}
}

// emitString decodes the captured string element and emits it. Elements whose
// escape sequences do not decode are skipped silently.
func (p *Parser) emitString() {
	raw := `"` + p.current.String() + `"`
	p.current.Reset()
	p.capture = false
	var text string
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return
	}
	p.emit(text)
}

// flushPending resolves whatever accumulated between delimiters. A valid
// JSON value that is not a string emits the empty string at the next index;
// anything unparseable is dropped without consuming an index.
func (p *Parser) flushPending() {
	token := strings.TrimSpace(p.current.String())
	p.current.Reset()
	p.capture = false
	if token == "" {
		return
	}
	if json.Valid([]byte(token)) {
		p.emit("")
	}
}

func (p *Parser) emit(text string) {
	p.elements = append(p.elements, text)
	if p.onElement != nil {
		p.onElement(p.index, text)
	}
	p.index++
}
