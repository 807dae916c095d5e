package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	type normalizeTestCase struct {
		name   string
		input  string
		want   Identifier
		wantOK bool
	}

	testGroups := map[string][]normalizeTestCase{
		"Blank Input": {
			{name: "empty", input: "", wantOK: false},
			{name: "whitespace", input: "  \t\n ", wantOK: false},
			{name: "bare sigil", input: "@", wantOK: false},
		},
		"Links": {
			{name: "https link", input: "https://t.me/golang_news", want: Identifier{Handle: "golang_news"}, wantOK: true},
			{name: "schemeless link", input: "t.me/golang_news", want: Identifier{Handle: "golang_news"}, wantOK: true},
			{name: "link with post path", input: "https://t.me/golang_news/123", want: Identifier{Handle: "golang_news"}, wantOK: true},
			{name: "link with query", input: "t.me/golang_news?start=1", want: Identifier{Handle: "golang_news"}, wantOK: true},
			{name: "telegram.me link", input: "http://telegram.me/durov", want: Identifier{Handle: "durov"}, wantOK: true},
			{name: "padded link", input: "  https://t.me/durov  ", want: Identifier{Handle: "durov"}, wantOK: true},
		},
		"Handles": {
			{name: "at handle", input: "@durov", want: Identifier{Handle: "durov"}, wantOK: true},
			{name: "plain handle", input: "durov", want: Identifier{Handle: "durov"}, wantOK: true},
		},
		"Numeric": {
			{name: "positive id", input: "12345", want: Identifier{ID: 12345}, wantOK: true},
			{name: "negative id", input: "-1001234567890", want: Identifier{ID: -1001234567890}, wantOK: true},
			{name: "padded id", input: " 42 ", want: Identifier{ID: 42}, wantOK: true},
		},
	}

	for groupName, cases := range testGroups {
		t.Run(groupName, func(t *testing.T) {
			t.Parallel()
			for _, tc := range cases {
				t.Run(tc.name, func(t *testing.T) {
					t.Parallel()
					got, ok := Normalize(tc.input)
					assert.Equal(t, tc.wantOK, ok)
					assert.Equal(t, tc.want, got)
				})
			}
		})
	}
}

func TestPeerID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(-1001234567890), PeerID(1234567890))
	assert.Equal(t, int64(-1001234567890), PeerID(-1001234567890))
	assert.Equal(t, int64(-42), PeerID(-42))
	assert.Equal(t, int64(1234567890), BareID(-1001234567890))
	assert.Equal(t, int64(-42), BareID(-42))
}

func TestIdentifierString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-5", Identifier{ID: -5}.String())
	assert.Equal(t, "durov", Identifier{Handle: "durov"}.String())
	assert.True(t, Identifier{ID: 7}.IsNumeric())
}
