// Package payload treats provider message payloads as open structured
// documents. Only a handful of fields are ever read; everything else is
// carried through untouched (after sanitization).
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is a provider message payload.
type Document map[string]any

// Decode parses a stored JSON payload. Numbers are kept as json.Number so
// large ids survive the round trip.
func Decode(data []byte) (Document, error) {
	doc := Document{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return doc, nil
}

// Encode serializes a document. encoding/json sorts map keys, so equal
// documents always encode to equal bytes.
func Encode(doc Document) ([]byte, error) {
	data, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// FromStruct converts any JSON-serializable value (a client library message
// type, usually) into a sanitized Document.
func FromStruct(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return SanitizeDocument(doc), nil
}

// Int converts a decoded JSON scalar to an int64. Booleans, fractions and
// anything non-numeric yield false.
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Lookup walks nested objects along path.
func (d Document) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func (d Document) int(path ...string) (int64, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return 0, false
	}
	return Int(v)
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case Document:
		return obj, true
	default:
		return nil, false
	}
}

// ID returns the message id.
func (d Document) ID() (int64, bool) {
	if id, ok := d.int("id"); ok {
		return id, true
	}
	return d.int("message_id")
}

// Date returns the message timestamp in UTC.
func (d Document) Date() (time.Time, bool) {
	v, ok := d.Lookup("date")
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(v)
}

// SetDate stores ts in the canonical RFC 3339 form.
func (d Document) SetDate(ts time.Time) {
	d["date"] = ts.UTC().Format(time.RFC3339)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	"2006-01-02 15:04:05Z07:00",
}

// ParseTime accepts RFC 3339 strings, naive datetime strings (taken as UTC),
// unix seconds and time.Time values.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC(), true
		}
		return time.Time{}, false
	default:
		secs, ok := Int(v)
		if !ok || secs <= 0 {
			return time.Time{}, false
		}
		return time.Unix(secs, 0).UTC(), true
	}
}

// UserID returns the sender user id.
func (d Document) UserID() (int64, bool) {
	if id, ok := d.int("from_id", "user_id"); ok {
		return id, true
	}
	if id, ok := d.int("from", "id"); ok {
		return id, true
	}
	return d.int("sender_id")
}

// ReplyToID returns the id of the message this one replies to.
func (d Document) ReplyToID() (int64, bool) {
	for _, path := range [][]string{
		{"reply_to", "reply_to_msg_id"},
		{"reply_to", "reply_to_message_id"},
		{"reply_to", "reply_to_top_id"},
		{"reply_to_message_id"},
		{"reply_to_message", "message_id"},
		{"reply_to_message", "id"},
	} {
		if id, ok := d.int(path...); ok {
			return id, true
		}
	}
	return 0, false
}

// Text returns the normalized message body (message, text or caption).
func (d Document) Text() string {
	for _, key := range []string{"message", "text", "caption"} {
		if s, ok := d[key].(string); ok {
			if text := NormalizeText(s); text != "" {
				return text
			}
		}
	}
	return ""
}

// NormalizeText collapses line breaks into single spaces and trims.
func NormalizeText(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	return strings.TrimSpace(strings.Join(lines, " "))
}

// ForwardRef describes where a forwarded message came from: "source-msg",
// "source", a sender name, or "forwarded" when nothing is resolvable. The
// second result is false for messages that are not forwards.
func (d Document) ForwardRef() (string, bool) {
	if fwd, ok := d.Lookup("fwd_from"); ok {
		if obj, ok := asObject(fwd); ok {
			return forwardRef(Document(obj), mtprotoSource, "channel_post", "saved_from_msg_id", "from_name"), true
		}
	}
	if origin, ok := d.Lookup("forward_origin"); ok {
		if obj, ok := asObject(origin); ok {
			return forwardRef(Document(obj), botAPISource, "message_id", "", "sender_user_name"), true
		}
	}
	return "", false
}

var mtprotoSource = [][]string{
	{"from_id", "user_id"}, {"from_id", "channel_id"}, {"from_id", "chat_id"},
	{"user_id"}, {"channel_id"}, {"chat_id"},
	{"saved_from_peer", "user_id"}, {"saved_from_peer", "channel_id"}, {"saved_from_peer", "chat_id"},
}

var botAPISource = [][]string{
	{"sender_user", "id"}, {"sender_chat", "id"}, {"chat", "id"},
}

func forwardRef(fwd Document, sourcePaths [][]string, msgKey, altMsgKey, nameKey string) string {
	var source int64
	found := false
	for _, path := range sourcePaths {
		if id, ok := fwd.int(path...); ok {
			source, found = id, true
			break
		}
	}

	msgID, hasMsg := fwd.int(msgKey)
	if !hasMsg && altMsgKey != "" {
		msgID, hasMsg = fwd.int(altMsgKey)
	}

	switch {
	case found && hasMsg:
		return fmt.Sprintf("%d-%d", source, msgID)
	case found:
		return strconv.FormatInt(source, 10)
	}
	if name, ok := fwd[nameKey].(string); ok {
		if n := NormalizeText(name); n != "" {
			return n
		}
	}
	return "forwarded"
}
