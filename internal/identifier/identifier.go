// Package identifier parses free-form channel and user references.
package identifier

import (
	"regexp"
	"strconv"
	"strings"
)

// Identifier is a canonical lookup key: either a numeric id or a handle.
type Identifier struct {
	ID     int64
	Handle string
}

// IsNumeric reports whether the identifier is a numeric id.
func (i Identifier) IsNumeric() bool {
	return i.Handle == ""
}

func (i Identifier) String() string {
	if i.IsNumeric() {
		return strconv.FormatInt(i.ID, 10)
	}
	return i.Handle
}

var linkRe = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?(?:t|telegram)\.me/([^/?#\s]+)`)

// Normalize turns raw input into an Identifier. The second result is false
// when the input is blank or reduces to nothing.
func Normalize(raw string) (Identifier, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Identifier{}, false
	}

	if m := linkRe.FindStringSubmatch(value); m != nil {
		value = m[1]
	} else if strings.HasPrefix(value, "@") {
		value = strings.TrimPrefix(value, "@")
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return Identifier{}, false
	}

	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return Identifier{ID: id}, true
	}
	return Identifier{Handle: value}, true
}

// channelPeerOffset is the prefix the Bot API puts in front of supergroup
// and channel ids (-100xxxxxxxxxx).
const channelPeerOffset = 1_000_000_000_000

// PeerID converts a bare positive channel id to its chat id form. Ids that
// are already negative are returned unchanged.
func PeerID(id int64) int64 {
	if id > 0 {
		return -(channelPeerOffset + id)
	}
	return id
}

// BareID is the inverse of PeerID for channel ids.
func BareID(id int64) int64 {
	if id < -channelPeerOffset {
		return -id - channelPeerOffset
	}
	return id
}
