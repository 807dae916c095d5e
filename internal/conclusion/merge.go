// Package conclusion merges per-subject findings into accumulated
// conclusions. Conclusions are never replaced wholesale, only merged.
package conclusion

import (
	"encoding/json"
	"fmt"
)

// Merge deep-merges src into a copy of dst and returns it. Scalars in src
// overwrite dst, lists are unioned preserving first-seen order, nested
// objects merge recursively. Neither argument is modified.
func Merge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		dv, exists := out[k]
		if !exists {
			out[k] = sv
			continue
		}
		out[k] = mergeValue(dv, sv)
	}
	return out
}

func mergeValue(dv, sv any) any {
	dm, dIsObj := dv.(map[string]any)
	sm, sIsObj := sv.(map[string]any)
	if dIsObj && sIsObj {
		return Merge(dm, sm)
	}

	dl, dIsList := dv.([]any)
	sl, sIsList := sv.([]any)
	if dIsList && sIsList {
		return union(dl, sl)
	}

	if equal(dv, sv) {
		return dv
	}
	return sv
}

func union(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]any{a, b} {
		for _, item := range list {
			key := fingerprint(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

func equal(a, b any) bool {
	return fingerprint(a) == fingerprint(b)
}

// fingerprint gives structurally equal JSON values the same key regardless
// of whether numbers were decoded as float64 or json.Number.
func fingerprint(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}
