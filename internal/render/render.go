// Package render turns cached message documents into the line-oriented text
// block fed to the completion service.
package render

import (
	"strconv"
	"strings"

	"github.com/edgard/chanwatch/internal/payload"
)

// FormatHint is the first line of every rendered block. It tells the model
// how to read the lines that follow.
const FormatHint = "FORMAT: datetime message_id user_id [@username] " +
	"[-> reply_message_id] [->> source_id|source_id-message_id|source_name]: text"

// DateLayout is the timestamp layout used in rendered lines. Dates are UTC.
const DateLayout = "2006-01-02 15:04:05"

// Lines renders messages in the given order, one line each, prefixed with
// FormatHint. Messages without an id or without text are dropped; if nothing
// renders the result is empty.
func Lines(messages []payload.Document, usernames map[int64]string) []string {
	rendered := make([]string, 0, len(messages)+1)
	for _, m := range messages {
		if line, ok := Line(m, usernames); ok {
			rendered = append(rendered, line)
		}
	}
	if len(rendered) == 0 {
		return nil
	}
	return append([]string{FormatHint}, rendered...)
}

// Line renders a single message.
func Line(m payload.Document, usernames map[int64]string) (string, bool) {
	id, ok := m.ID()
	if !ok {
		return "", false
	}
	text := m.Text()
	if text == "" {
		return "", false
	}

	userID, _ := m.UserID()

	var b strings.Builder
	if ts, ok := m.Date(); ok {
		b.WriteString(ts.Format(DateLayout))
	} else {
		b.WriteString("-")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(id, 10))
	b.WriteByte(' ')
	b.WriteString(UserTag(userID, usernames))

	if replyID, ok := m.ReplyToID(); ok {
		b.WriteString(" -> ")
		b.WriteString(strconv.FormatInt(replyID, 10))
	}
	if ref, ok := m.ForwardRef(); ok {
		b.WriteString(" ->> ")
		b.WriteString(ref)
	}

	b.WriteString(": ")
	b.WriteString(text)
	return b.String(), true
}

// UserTag formats a sender as its numeric id, annotated with @handle when
// one is known. Unknown senders render as 0.
func UserTag(userID int64, usernames map[int64]string) string {
	tag := strconv.FormatInt(userID, 10)
	if handle := strings.TrimLeft(strings.TrimSpace(usernames[userID]), "@"); handle != "" {
		return tag + " @" + handle
	}
	return tag
}

// UserIDs collects the distinct sender ids of messages.
func UserIDs(messages []payload.Document) []int64 {
	seen := make(map[int64]struct{}, len(messages))
	var ids []int64
	for _, m := range messages {
		id, ok := m.UserID()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
