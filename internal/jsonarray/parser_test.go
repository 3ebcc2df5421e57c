package jsonarray

import (
	"errors"
	"reflect"
	"testing"
)

type emission struct {
	index int
	text  string
}

func newRecordingParser() (*Parser, *[]emission) {
	var got []emission
	p := NewParser(func(index int, text string) {
		got = append(got, emission{index: index, text: text})
	})
	return p, &got
}

func feedChunks(p *Parser, input string, size int) {
	if size <= 0 {
		p.Feed(input)
		return
	}
	for i := 0; i < len(input); i += size {
		end := i + size
		if end > len(input) {
			end = len(input)
		}
		p.Feed(input[i:end])
	}
}

func TestParserElementExtraction(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple strings",
			input: `["hello","world"]`,
			want:  []string{"hello", "world"},
		},
		{
			name:  "whitespace and newlines",
			input: "[\n  \"a\",\n  \"b\"\n]",
			want:  []string{"a", "b"},
		},
		{
			name:  "escaped quotes and backslashes",
			input: `["a\"b","c\\d"]`,
			want:  []string{`a"b`, `c\d`},
		},
		{
			name:  "unicode escape",
			input: `["éclair"]`,
			want:  []string{"éclair"},
		},
		{
			name:  "multibyte content",
			input: `["héllo 🌍","ok"]`,
			want:  []string{"héllo 🌍", "ok"},
		},
		{
			name:  "non-string scalars become empty strings",
			input: `[123, true, "x"]`,
			want:  []string{"", "", "x"},
		},
		{
			name:  "null becomes empty string",
			input: `[null, "valid"]`,
			want:  []string{"", "valid"},
		},
		{
			name:  "malformed token skipped without an index",
			input: `["ok", 12x34, "next"]`,
			want:  []string{"ok", "next"},
		},
		{
			name:  "nested composites become empty strings",
			input: `[["a","b"], {"k":"v"}, "c"]`,
			want:  []string{"", "", "c"},
		},
		{
			name:  "markdown fence preamble ignored",
			input: "```json\n[\"x\",\"y\"]\n```",
			want:  []string{"x", "y"},
		},
		{
			name:  "trailing garbage after close ignored",
			input: `["x"] trailing noise`,
			want:  []string{"x"},
		},
		{
			name:  "commas inside strings do not split",
			input: `["a, b","c"]`,
			want:  []string{"a, b", "c"},
		},
		{
			name:  "brackets inside strings do not change depth",
			input: `["a ] b","c [ d"]`,
			want:  []string{"a ] b", "c [ d"},
		},
	}

	// Every case must behave the same no matter how the input is fragmented.
	chunkSizes := []int{0, 1, 2, 3, 7}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var firstState *State
			for _, size := range chunkSizes {
				p, got := newRecordingParser()
				feedChunks(p, tt.input, size)

				elements, err := p.End()
				if err != nil {
					t.Fatalf("chunk size %d: End() error: %v", size, err)
				}
				if !reflect.DeepEqual(elements, tt.want) {
					t.Fatalf("chunk size %d: elements = %q, want %q", size, elements, tt.want)
				}
				for i, e := range *got {
					if e.index != i {
						t.Fatalf("chunk size %d: emission %d carried index %d", size, i, e.index)
					}
					if e.text != tt.want[i] {
						t.Fatalf("chunk size %d: emission %d = %q, want %q", size, i, e.text, tt.want[i])
					}
				}
				if len(*got) != len(tt.want) {
					t.Fatalf("chunk size %d: %d emissions, want %d", size, len(*got), len(tt.want))
				}

				state := p.State()
				if firstState == nil {
					firstState = &state
				} else if !reflect.DeepEqual(*firstState, state) {
					t.Fatalf("chunk size %d: state diverged from whole-input parse:\n%+v\nvs\n%+v", size, state, *firstState)
				}
			}
		})
	}
}

func TestParserEmitsAtClosingQuote(t *testing.T) {
	p, got := newRecordingParser()

	p.Feed(`["first`)
	if len(*got) != 0 {
		t.Fatalf("element emitted before its closing quote: %v", *got)
	}

	p.Feed(`"`)
	if len(*got) != 1 {
		t.Fatalf("expected emission at closing quote, got %d emissions", len(*got))
	}
	if (*got)[0] != (emission{index: 0, text: "first"}) {
		t.Fatalf("unexpected emission: %+v", (*got)[0])
	}

	// The array never closes; completed elements are still returned.
	elements, err := p.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if !reflect.DeepEqual(elements, []string{"first"}) {
		t.Fatalf("elements = %q", elements)
	}
}

func TestParserTruncatedElementDropped(t *testing.T) {
	p, _ := newRecordingParser()
	p.Feed(`["done","parti`)

	elements, err := p.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if !reflect.DeepEqual(elements, []string{"done"}) {
		t.Fatalf("elements = %q, want only the completed one", elements)
	}
}

func TestParserEndFlushesPendingToken(t *testing.T) {
	// Truncation right after a complete non-string value: the pending token
	// still resolves to its position at End.
	p, got := newRecordingParser()
	p.Feed(`["a", null`)

	elements, err := p.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if !reflect.DeepEqual(elements, []string{"a", ""}) {
		t.Fatalf("elements = %q, want [a <empty>]", elements)
	}
	want := []emission{{0, "a"}, {1, ""}}
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("emissions = %+v, want %+v", *got, want)
	}

	// An incomplete trailing token is still dropped, and a truncated string
	// is not a pending token (it never left string context).
	p2, _ := newRecordingParser()
	p2.Feed(`["a", 12x`)
	if elements, err = p2.End(); err != nil || !reflect.DeepEqual(elements, []string{"a"}) {
		t.Fatalf("invalid trailing token: elements = %q, err = %v", elements, err)
	}

	p3, _ := newRecordingParser()
	p3.Feed(`["a", "tru`)
	if elements, err = p3.End(); err != nil || !reflect.DeepEqual(elements, []string{"a"}) {
		t.Fatalf("truncated string: elements = %q, err = %v", elements, err)
	}
}

func TestParserConsecutiveArrays(t *testing.T) {
	p, got := newRecordingParser()

	p.Feed(`["a","b"]`)
	p.Feed("\n\n")
	p.Feed(`["c"]`)

	elements, err := p.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if !reflect.DeepEqual(elements, []string{"a", "b", "c"}) {
		t.Fatalf("elements = %q", elements)
	}
	want := []emission{{0, "a"}, {1, "b"}, {2, "c"}}
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("emissions = %+v, want %+v", *got, want)
	}
}

func TestParserNoElements(t *testing.T) {
	inputs := []string{
		"complete garbage with no array",
		"[]",
		"[   ]",
		"",
	}
	for _, input := range inputs {
		p, _ := newRecordingParser()
		p.Feed(input)
		if _, err := p.End(); err == nil {
			t.Fatalf("input %q: End() succeeded, want error", input)
		} else {
			if !errors.Is(err, ErrNoElements) {
				t.Fatalf("input %q: error = %v, want ErrNoElements", input, err)
			}
			if err.Error() != "stream ended with no elements" {
				t.Fatalf("input %q: error message = %q", input, err.Error())
			}
		}
	}
}

func TestParserStateSnapshot(t *testing.T) {
	p, _ := newRecordingParser()

	p.Feed(`["ab`)
	state := p.State()
	if !state.Started {
		t.Fatal("Started = false after opening bracket")
	}
	if state.BracketDepth != 1 {
		t.Fatalf("BracketDepth = %d, want 1", state.BracketDepth)
	}
	if !state.InString {
		t.Fatal("InString = false inside the first element")
	}
	if state.CurrentElement != "ab" {
		t.Fatalf("CurrentElement = %q, want %q", state.CurrentElement, "ab")
	}
	if state.ElementIndex != 0 {
		t.Fatalf("ElementIndex = %d, want 0", state.ElementIndex)
	}
	if state.Buffer != `["ab` {
		t.Fatalf("Buffer = %q", state.Buffer)
	}

	p.Feed(`c","d"]`)
	state = p.State()
	if state.BracketDepth != 0 || state.InString {
		t.Fatalf("unexpected terminal state: %+v", state)
	}
	if !reflect.DeepEqual(state.Elements, []string{"abc", "d"}) {
		t.Fatalf("Elements = %q", state.Elements)
	}
	if state.ElementIndex != 2 {
		t.Fatalf("ElementIndex = %d, want 2", state.ElementIndex)
	}
}

func TestParserEscapeSplitAcrossFragments(t *testing.T) {
	p, _ := newRecordingParser()

	// Backslash and its escaped quote arrive in different fragments.
	p.Feed(`["x\`)
	p.Feed(`"y"]`)

	elements, err := p.End()
	if err != nil {
		t.Fatalf("End() error: %v", err)
	}
	if !reflect.DeepEqual(elements, []string{`x"y`}) {
		t.Fatalf("elements = %q", elements)
	}
}

func TestParserLen(t *testing.T) {
	p, _ := newRecordingParser()
	p.Feed(`["a","b`)
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
	p.Feed(`"]`)
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
}
