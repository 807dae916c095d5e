// Package analysis holds the pure parts of the analysis pipeline: splitting
// rendered lines into model-sized chunks, composing chunk responses, and
// pulling per-subject findings out of free-form model output.
package analysis

import (
	"fmt"
	"strings"
)

// DefaultMaxChunkBytes is the advisory size ceiling for one chunk.
const DefaultMaxChunkBytes = 30_000

const formatHintPrefix = "FORMAT:"

// NormalizeLines trims every line and drops the empty ones.
func NormalizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func dropBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// Chunk splits rendered lines so that each chunk, joined with newlines,
// fits within maxBytes. Blank lines are dropped and every other line is
// kept byte for byte. A leading format hint line is repeated at the head
// of every chunk and counts towards its size. Chunks are bisected
// recursively and never split below one message line, so a single
// oversized line yields an oversized chunk.
func Chunk(lines []string, maxBytes int) [][]string {
	normalized := dropBlank(lines)
	if len(normalized) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}

	var hint []string
	body := normalized
	if strings.HasPrefix(body[0], formatHintPrefix) {
		hint, body = body[:1], body[1:]
	}
	if len(body) == 0 {
		return [][]string{normalized}
	}
	return bisect(hint, body, maxBytes)
}

func bisect(hint, body []string, maxBytes int) [][]string {
	chunk := make([]string, 0, len(hint)+len(body))
	chunk = append(chunk, hint...)
	chunk = append(chunk, body...)
	if joinedLen(chunk) <= maxBytes || len(body) <= 1 {
		return [][]string{chunk}
	}
	mid := len(body) / 2
	return append(bisect(hint, body[:mid], maxBytes), bisect(hint, body[mid:], maxBytes)...)
}

func joinedLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	if len(lines) > 1 {
		n += len(lines) - 1
	}
	return n
}

// Compose joins chunk responses into one analysis text. A single response
// is returned verbatim; several are delimited by "--- CHUNK i/N ---".
func Compose(responses []string) string {
	if len(responses) == 1 {
		return responses[0]
	}
	parts := make([]string, len(responses))
	for i, r := range responses {
		parts[i] = fmt.Sprintf("--- CHUNK %d/%d ---\n%s", i+1, len(responses), r)
	}
	return strings.Join(parts, "\n\n")
}
