package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/chanwatch/internal/analysis"
	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/database"
)

// AnalysisResult is the outcome of an analysis request.
type AnalysisResult struct {
	PromptID    int64  `json:"prompt_id"`
	PromptTitle string `json:"prompt_title"`
	Analysis    string `json:"analysis"`
	MergeResult string `json:"merge_result,omitempty"`
}

// AnalyzeRendered analyzes already rendered lines with promptID and merges
// the findings into stored conclusions using mergePromptID.
//
// If only saving the merged conclusions fails, the populated result is
// returned together with a persistence error.
func (s *Service) AnalyzeRendered(ctx context.Context, promptID, mergePromptID int64, lines []string) (AnalysisResult, error) {
	prompt, promptText, err := s.prompt(ctx, promptID)
	if err != nil {
		return AnalysisResult{}, err
	}
	_, mergeText, err := s.prompt(ctx, mergePromptID)
	if err != nil {
		return AnalysisResult{}, err
	}

	normalized := analysis.NormalizeLines(lines)
	if len(normalized) == 0 {
		return AnalysisResult{}, apperr.InvalidInput("no rendered messages to analyze")
	}

	result := AnalysisResult{PromptID: promptID, PromptTitle: promptTitle(prompt)}
	result.Analysis, result.MergeResult, err = s.analyzeChunked(ctx, promptID, promptText, mergeText, normalized, "rendered messages")
	if err != nil && !apperr.Is(err, apperr.KindPersistence) {
		return AnalysisResult{}, err
	}
	return result, err
}

// AnalyzeSelectedChannels renders and analyzes each channel separately.
// Channels with nothing to render are skipped; the reports of several
// channels are combined under "### Channel <id>" headings.
func (s *Service) AnalyzeSelectedChannels(ctx context.Context, promptID, mergePromptID int64, channelIDs []int64, from, to time.Time) (AnalysisResult, error) {
	prompt, promptText, err := s.prompt(ctx, promptID)
	if err != nil {
		return AnalysisResult{}, err
	}
	_, mergeText, err := s.prompt(ctx, mergePromptID)
	if err != nil {
		return AnalysisResult{}, err
	}

	ids := dedupe(channelIDs)
	if len(ids) == 0 {
		return AnalysisResult{}, apperr.InvalidInput("no channels selected for analysis")
	}

	type report struct {
		channelID int64
		analysis  string
		merge     string
	}
	var (
		reports    []report
		persistErr error
	)
	for _, channelID := range ids {
		lines, err := s.RenderMessages(ctx, channelID, from, to)
		if err != nil {
			return AnalysisResult{}, err
		}
		normalized := analysis.NormalizeLines(lines)
		if len(normalized) == 0 {
			continue
		}

		text, merge, err := s.analyzeChunked(ctx, promptID, promptText, mergeText, normalized, "channel "+strconv.FormatInt(channelID, 10))
		if err != nil {
			if !apperr.Is(err, apperr.KindPersistence) {
				return AnalysisResult{}, err
			}
			if persistErr == nil {
				persistErr = err
			}
		}
		if text != "" {
			reports = append(reports, report{channelID: channelID, analysis: text, merge: merge})
		}
	}

	if len(reports) == 0 {
		return AnalysisResult{}, apperr.InvalidInput("no rendered messages to analyze for selected channels")
	}

	result := AnalysisResult{PromptID: promptID, PromptTitle: promptTitle(prompt)}
	if len(reports) == 1 {
		result.Analysis, result.MergeResult = reports[0].analysis, reports[0].merge
		return result, persistErr
	}

	sections := make([]string, 0, len(reports))
	merges := make([]string, 0, len(reports))
	for _, r := range reports {
		sections = append(sections, fmt.Sprintf("### Channel %d\n%s", r.channelID, r.analysis))
		if r.merge != "" {
			merges = append(merges, fmt.Sprintf("### Channel %d\n%s", r.channelID, r.merge))
		}
	}
	result.Analysis = strings.Join(sections, "\n\n")
	result.MergeResult = strings.Join(merges, "\n\n")
	return result, persistErr
}

// analyzeChunked runs the prompt over every chunk, composes the answers,
// aggregates the findings and merges them against stored conclusions. It
// returns the composed analysis and the raw merge response.
func (s *Service) analyzeChunked(ctx context.Context, promptID int64, promptText, mergeText string, lines []string, scope string) (string, string, error) {
	chunks := analysis.Chunk(lines, s.opts.MaxChunkBytes)
	if len(chunks) == 0 {
		return "", "", apperr.InvalidInput("no rendered messages to analyze")
	}

	responses := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		resp, err := s.model.AnalyzeMessages(ctx, promptText, chunk)
		if err != nil {
			s.log.ErrorContext(ctx, "Analysis request failed",
				"scope", scope, "prompt_id", promptID, "chunk", i+1, "chunks", len(chunks), "error", err)
			return "", "", apperr.Model("analysis request failed", err)
		}
		if strings.TrimSpace(resp) == "" {
			return "", "", apperr.Model("the model returned an empty analysis", nil)
		}
		responses = append(responses, resp)
	}

	text := analysis.Compose(responses)
	found := analysis.Aggregate(responses)
	if len(found) == 0 {
		return "", "", apperr.Model("the model output could not be understood: expected a JSON list of objects with id", nil)
	}
	s.log.InfoContext(ctx, "Analysis completed", "scope", scope, "prompt_id", promptID, "chunks", len(chunks), "subjects", len(found))

	merge, err := s.mergeConclusions(ctx, mergeText, text, subjectIDs(found))
	return text, merge, err
}

// mergeConclusions sends the analysis and the subjects' stored conclusions
// to the model and saves the merged answer. The raw merge response is
// returned even when saving fails.
func (s *Service) mergeConclusions(ctx context.Context, mergeText, analysisText string, ids []int64) (string, error) {
	existing, err := s.store.GetConclusions(ctx, ids)
	if err != nil {
		return "", apperr.Persistence("failed to load existing conclusions", err)
	}

	existingJSON, err := existingConclusionsJSON(ids, existing)
	if err != nil {
		return "", apperr.Persistence("failed to encode existing conclusions", err)
	}

	resp, err := s.model.MergeConclusions(ctx, mergeText, analysisText, existingJSON)
	if err != nil {
		s.log.ErrorContext(ctx, "Conclusion merge request failed", "subjects", len(ids), "error", err)
		return "", apperr.Model("failed to merge conclusions with existing data", err)
	}

	merged := analysis.Conclusions(resp)
	if len(merged) == 0 {
		s.log.WarnContext(ctx, "Merge response contained no conclusions", "subjects", len(ids))
		return resp, nil
	}
	if err := s.store.MergeConclusions(ctx, merged); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist conclusions", "subjects", len(merged), "error", err)
		return resp, apperr.Persistence("failed to save analysis results", err)
	}
	return resp, nil
}

// existingConclusionsJSON renders stored conclusions as an indented JSON list
// of objects carrying their subject id, in ids order.
func existingConclusionsJSON(ids []int64, existing map[int64]map[string]any) (string, error) {
	list := make([]map[string]any, 0, len(existing))
	for _, id := range ids {
		c, ok := existing[id]
		if !ok {
			continue
		}
		entry := make(map[string]any, len(c)+1)
		for k, v := range c {
			entry[k] = v
		}
		entry["id"] = id
		list = append(list, entry)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func subjectIDs(found map[int64]map[string]any) []int64 {
	ids := make([]int64, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func promptTitle(p *database.Prompt) string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return strconv.FormatInt(p.ID, 10)
}
