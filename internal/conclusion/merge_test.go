package conclusion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		dst      map[string]any
		src      map[string]any
		expected map[string]any
	}{
		{
			name:     "list union preserves order",
			dst:      map[string]any{"needs": []any{"y"}},
			src:      map[string]any{"needs": []any{"x"}},
			expected: map[string]any{"needs": []any{"y", "x"}},
		},
		{
			name:     "list union drops duplicates",
			dst:      map[string]any{"needs": []any{"y", "x"}},
			src:      map[string]any{"needs": []any{"x", "z", "y"}},
			expected: map[string]any{"needs": []any{"y", "x", "z"}},
		},
		{
			name:     "equal scalar unchanged",
			dst:      map[string]any{"a": float64(1)},
			src:      map[string]any{"a": float64(1)},
			expected: map[string]any{"a": float64(1)},
		},
		{
			name:     "scalar overwrite",
			dst:      map[string]any{"desc": "old", "keep": true},
			src:      map[string]any{"desc": "new"},
			expected: map[string]any{"desc": "new", "keep": true},
		},
		{
			name: "nested objects recurse",
			dst: map[string]any{"profile": map[string]any{
				"city": "Lisbon", "langs": []any{"pt"},
			}},
			src: map[string]any{"profile": map[string]any{
				"langs": []any{"en", "pt"}, "age": "30s",
			}},
			expected: map[string]any{"profile": map[string]any{
				"city": "Lisbon", "langs": []any{"pt", "en"}, "age": "30s",
			}},
		},
		{
			name:     "type change overwrites",
			dst:      map[string]any{"offers": "consulting"},
			src:      map[string]any{"offers": []any{"consulting", "mentoring"}},
			expected: map[string]any{"offers": []any{"consulting", "mentoring"}},
		},
		{
			name:     "objects in lists compared structurally",
			dst:      map[string]any{"links": []any{map[string]any{"url": "a", "n": float64(1)}}},
			src:      map[string]any{"links": []any{map[string]any{"n": json.Number("1"), "url": "a"}, map[string]any{"url": "b"}}},
			expected: map[string]any{"links": []any{map[string]any{"url": "a", "n": float64(1)}, map[string]any{"url": "b"}}},
		},
		{
			name:     "empty history",
			dst:      nil,
			src:      map[string]any{"langs": []any{"en"}},
			expected: map[string]any{"langs": []any{"en"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Merge(tt.dst, tt.src))
		})
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	dst := map[string]any{"needs": []any{"y"}, "nested": map[string]any{"a": "1"}}
	src := map[string]any{"needs": []any{"x"}, "nested": map[string]any{"b": "2"}}

	_ = Merge(dst, src)

	assert.Equal(t, []any{"y"}, dst["needs"])
	assert.Equal(t, map[string]any{"a": "1"}, dst["nested"])
	assert.Equal(t, []any{"x"}, src["needs"])
}
