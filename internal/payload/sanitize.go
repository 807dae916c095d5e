package payload

import "strings"

// dropped marks a value removed by Sanitize.
type dropped struct{}

// SanitizeDocument strips session-bound file references and binary blobs
// from a document at any depth.
func SanitizeDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	cleaned, _ := sanitizeObject(doc).(map[string]any)
	return Document(cleaned)
}

// Sanitize returns v with file-reference keys and binary values removed.
func Sanitize(v any) any {
	out := sanitize(v)
	if _, ok := out.(dropped); ok {
		return nil
	}
	return out
}

func sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return sanitizeObject(val)
	case Document:
		return sanitizeObject(val)
	case []any:
		items := make([]any, 0, len(val))
		for _, item := range val {
			cleaned := sanitize(item)
			if _, drop := cleaned.(dropped); drop {
				continue
			}
			items = append(items, cleaned)
		}
		return items
	case []map[string]any:
		items := make([]any, 0, len(val))
		for _, item := range val {
			items = append(items, sanitizeObject(item))
		}
		return items
	case []byte:
		return dropped{}
	default:
		return v
	}
}

func sanitizeObject(obj map[string]any) any {
	cleaned := make(map[string]any, len(obj))
	for key, value := range obj {
		if dropKey(key) {
			continue
		}
		out := sanitize(value)
		if _, drop := out.(dropped); drop {
			continue
		}
		cleaned[key] = out
	}
	return cleaned
}

func dropKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "file_reference") || k == "file_ref" || strings.HasSuffix(k, "_file_ref")
}
