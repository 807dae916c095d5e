package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/chanwatch/internal/payload"
)

func TestLine(t *testing.T) {
	t.Parallel()

	usernames := map[int64]string{5: "@ana", 6: "  "}

	tests := []struct {
		name string
		doc  payload.Document
		want string
		ok   bool
	}{
		{
			name: "plain with handle",
			doc:  payload.Document{"id": int64(1), "date": "2024-05-01T10:00:00Z", "from_id": map[string]any{"user_id": int64(5)}, "message": "Hello"},
			want: "2024-05-01 10:00:00 1 5 @ana: Hello",
			ok:   true,
		},
		{
			name: "blank handle falls back to id",
			doc:  payload.Document{"id": int64(2), "date": "2024-05-01T10:00:00Z", "sender_id": int64(6), "message": "Hola"},
			want: "2024-05-01 10:00:00 2 6: Hola",
			ok:   true,
		},
		{
			name: "reply and multiline text",
			doc: payload.Document{
				"id": int64(3), "date": "2024-05-01T10:01:00Z", "from_id": map[string]any{"user_id": int64(7)},
				"reply_to": map[string]any{"reply_to_msg_id": int64(1)}, "message": "line one\n\nline two",
			},
			want: "2024-05-01 10:01:00 3 7 -> 1: line one line two",
			ok:   true,
		},
		{
			name: "forward with channel post",
			doc: payload.Document{
				"id": int64(4), "date": "2024-05-01T10:02:00Z",
				"fwd_from": map[string]any{"from_id": map[string]any{"channel_id": int64(777)}, "channel_post": int64(12)},
				"message":  "fwd",
			},
			want: "2024-05-01 10:02:00 4 0 ->> 777-12: fwd",
			ok:   true,
		},
		{
			name: "bot api text and caption",
			doc:  payload.Document{"message_id": int64(8), "date": int64(1714557600), "from": map[string]any{"id": int64(5)}, "caption": "pic"},
			want: "2024-05-01 10:00:00 8 5 @ana: pic",
			ok:   true,
		},
		{
			name: "empty text dropped",
			doc:  payload.Document{"id": int64(9), "date": "2024-05-01T10:00:00Z", "message": "  \n "},
		},
		{
			name: "missing id dropped",
			doc:  payload.Document{"date": "2024-05-01T10:00:00Z", "message": "orphan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Line(tt.doc, usernames)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLines(t *testing.T) {
	t.Parallel()

	t.Run("prefixes format hint", func(t *testing.T) {
		t.Parallel()
		lines := Lines([]payload.Document{
			{"id": int64(1), "date": "2024-05-01T10:00:00Z", "sender_id": int64(5), "message": "Hello"},
			{"id": int64(2), "date": "2024-05-01T10:00:00Z", "sender_id": int64(5)},
		}, nil)
		assert.Equal(t, []string{FormatHint, "2024-05-01 10:00:00 1 5: Hello"}, lines)
	})

	t.Run("nothing renderable yields empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, Lines([]payload.Document{{"id": int64(1), "message": ""}}, nil))
		assert.Empty(t, Lines(nil, nil))
	})
}

func TestUserIDs(t *testing.T) {
	t.Parallel()
	ids := UserIDs([]payload.Document{
		{"sender_id": int64(6)},
		{"from_id": map[string]any{"user_id": int64(5)}},
		{"sender_id": int64(6)},
		{"message": "anonymous"},
	})
	assert.Equal(t, []int64{6, 5}, ids)
}
