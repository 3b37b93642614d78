// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTaggedBlock(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "block with surrounding prose",
			input:  "I will click.\n<tool_call>\n{\"name\":\"computer_use\"}\n</tool_call>\nDone.",
			want:   `{"name":"computer_use"}`,
			wantOK: true,
		},
		{
			name:   "first of two blocks",
			input:  "<tool_call>{\"a\":1}</tool_call> <tool_call>{\"b\":2}</tool_call>",
			want:   `{"a":1}`,
			wantOK: true,
		},
		{
			name:   "unterminated block",
			input:  "<tool_call>{\"a\":1}",
			wantOK: false,
		},
		{
			name:   "no block",
			input:  "just text",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TaggedBlock(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONCandidates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single object",
			input: `prefix {"action":"wait"} suffix`,
			want:  []string{`{"action":"wait"}`},
		},
		{
			name:  "nested objects yield only the outer one",
			input: `{"name":"x","arguments":{"action":"move","coordinate":[1,2]}}`,
			want:  []string{`{"name":"x","arguments":{"action":"move","coordinate":[1,2]}}`},
		},
		{
			name:  "braces inside strings are ignored",
			input: `say {"text": "a {b} c"} now`,
			want:  []string{`{"text": "a {b} c"}`},
		},
		{
			name:  "escaped quote keeps string state",
			input: `{"text": "he said \"}\" loudly"}`,
			want:  []string{`{"text": "he said \"}\" loudly"}`},
		},
		{
			name:  "multiple top level objects in order",
			input: `{"a":1} and {"b":2}`,
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "stray closing brace is skipped",
			input: `} {"a":1}`,
			want:  []string{`{"a":1}`},
		},
		{
			name:  "unbalanced object is dropped",
			input: `{"a":{"b":1}`,
			want:  nil,
		},
		{
			name:  "non-ascii text around objects",
			input: `ünïcödé {"text":"日本語"} ✓`,
			want:  []string{`{"text":"日本語"}`},
		},
		{
			name:  "prose only",
			input: "I am not sure what to do next.",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JSONCandidates(tt.input))
		})
	}
}

// Braces and escaped quotes inside string values never split the outer object.
func TestJSONCandidates_BracesInStrings(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		value := rapid.StringMatching(`[a-z {}"\\]{0,40}`).Draw(rt, "value")
		encoded, err := json.Marshal(map[string]string{"text": value})
		require.NoError(rt, err)

		prefix := rapid.StringMatching(`[a-zA-Z .,]{0,20}`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-zA-Z .,]{0,20}`).Draw(rt, "suffix")

		got := JSONCandidates(prefix + string(encoded) + suffix)
		require.Len(rt, got, 1)
		assert.Equal(rt, string(encoded), got[0])
	})
}

func TestCandidates(t *testing.T) {
	t.Run("tagged block comes first", func(t *testing.T) {
		input := `example {"action":"wait"} <tool_call>{"name":"computer_use","arguments":{}}</tool_call>`
		got := Candidates(input)
		assert.Equal(t, []string{
			`{"name":"computer_use","arguments":{}}`,
			`{"action":"wait"}`,
			`{"name":"computer_use","arguments":{}}`,
		}, got)
	})

	t.Run("typographic quotes are normalized", func(t *testing.T) {
		got := Candidates("<tool_call>{“action”: “wait”}</tool_call>")
		assert.Equal(t, `{"action": "wait"}`, got[0])
	})

	t.Run("nothing to decode", func(t *testing.T) {
		assert.Empty(t, Candidates("no structure here"))
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}
