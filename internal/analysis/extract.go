package analysis

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/edgard/chanwatch/internal/payload"
)

var fencedRe = regexp.MustCompile("(?i)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON finds the first JSON value in model output. It tries the whole
// text, then each fenced code block, then every position starting with '['
// or '{' where a complete value can be decoded. Numbers decode as
// json.Number.
func ExtractJSON(text string) (any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	if v, ok := parseWhole(text); ok {
		return v, true
	}
	for _, m := range fencedRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseWhole(m[1]); ok {
			return v, true
		}
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return v, true
		}
	}
	return nil, false
}

func parseWhole(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || v == nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return v, true
}

// Entries returns the per-subject objects found in v that carry a
// parseable "id". A list yields its object items; a list without objects
// or an object is searched depth-first for the first non-empty list of
// objects.
func Entries(v any) []map[string]any {
	var out []map[string]any
	for _, e := range objectList(v) {
		if _, ok := SubjectID(e); ok {
			out = append(out, e)
		}
	}
	return out
}

func objectList(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var objs []map[string]any
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				objs = append(objs, obj)
			}
		}
		if len(objs) > 0 {
			return objs
		}
		for _, item := range t {
			if nested := objectList(item); len(nested) > 0 {
				return nested
			}
		}
	case map[string]any:
		// Keys are walked sorted for a deterministic pick.
		for _, k := range sortedKeys(t) {
			if nested := objectList(t[k]); len(nested) > 0 {
				return nested
			}
		}
	}
	return nil
}

// SubjectID reads the "id" of an extracted entry.
func SubjectID(entry map[string]any) (int64, bool) {
	return payload.Int(entry["id"])
}

// ExtractEntries is ExtractJSON followed by Entries.
func ExtractEntries(text string) []map[string]any {
	v, ok := ExtractJSON(text)
	if !ok {
		return nil
	}
	return Entries(v)
}

// Aggregate collects findings by subject across responses. Later entries
// replace earlier ones for the same subject. The id field is removed and
// entries with nothing else are dropped.
func Aggregate(responses []string) map[int64]map[string]any {
	result := make(map[int64]map[string]any)
	for _, r := range responses {
		for id, rest := range withoutIDs(ExtractEntries(r)) {
			result[id] = rest
		}
	}
	return result
}

func withoutIDs(entries []map[string]any) map[int64]map[string]any {
	out := make(map[int64]map[string]any, len(entries))
	for _, e := range entries {
		id, ok := SubjectID(e)
		if !ok {
			continue
		}
		rest := make(map[string]any, len(e))
		for k, v := range e {
			if k != "id" {
				rest[k] = v
			}
		}
		if len(rest) > 0 {
			out[id] = rest
		}
	}
	return out
}

// Conclusions is Aggregate for a single response, used for merge output.
func Conclusions(text string) map[int64]map[string]any {
	return withoutIDs(ExtractEntries(text))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
