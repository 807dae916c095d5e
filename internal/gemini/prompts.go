package gemini

import "strings"

// MergeInstructionSuffix is appended to the merge prompt so the answer can be
// parsed the same way as an analysis.
const MergeInstructionSuffix = `

## OUTPUT FORMAT [CRITICAL]
Respond with a JSON list of objects only. Every object MUST contain the numeric "id" of the user it describes.
Keep every meaningful fact from the existing conclusions unless the new analysis clearly contradicts it.
Do not wrap the objects in another structure and do not add commentary.`

// FormatMergeRequest builds the user text of a merge request.
func FormatMergeRequest(analysis, existing string) string {
	var sb strings.Builder
	sb.WriteString("New analysis:\n")
	sb.WriteString(analysis)
	sb.WriteString("\n\nExisting conclusions:\n")
	if strings.TrimSpace(existing) == "" {
		existing = "[]"
	}
	sb.WriteString(existing)
	return sb.String()
}
