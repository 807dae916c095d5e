package handlers

import (
	"context"
	"fmt"
	"strings"
)

func refreshMessages(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		window, err := parseHours(args)
		if err != nil {
			return "", err
		}
		to := deps.now().UTC()
		result, err := deps.Service.RefreshMessages(ctx, nil, to.Add(-window), to)
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Refreshed %d messages (%d new, %d updated).", result.Total, result.Created, result.Updated)
		for _, ch := range result.Channels {
			fmt.Fprintf(&sb, "\n%d %s: %d (%d new, %d updated)", ch.ChannelID, ch.ChannelTitle, ch.Total, ch.Created, ch.Updated)
		}
		return sb.String(), nil
	}
}

// analyzeChannels handles "<prompt_id> <merge_prompt_id> <channel_ids> [hours]"
// where channel_ids is a comma separated list. A merge prompt id of 0 picks
// the configured one.
func analyzeChannels(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		fields := strings.Fields(args)
		if len(fields) < 3 || len(fields) > 4 {
			return "", errUsage
		}
		prompts, err := parseIDs(fields[0] + " " + fields[1])
		if err != nil {
			return "", err
		}
		channelIDs, err := parseIDs(fields[2])
		if err != nil {
			return "", err
		}
		hours := ""
		if len(fields) == 4 {
			hours = fields[3]
		}
		window, err := parseHours(hours)
		if err != nil {
			return "", err
		}

		mergeID := prompts[1]
		if mergeID == 0 {
			mergeID = deps.Config.Analysis.MergePromptID
		}

		to := deps.now().UTC()
		result, err := deps.Service.AnalyzeSelectedChannels(ctx, prompts[0], mergeID, channelIDs, to.Add(-window), to)
		if result.Analysis == "" {
			return "", err
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s\n\n%s", result.PromptTitle, result.Analysis)
		if result.MergeResult != "" {
			fmt.Fprintf(&sb, "\n\nMerged conclusions:\n%s", result.MergeResult)
		}
		return sb.String(), err
	}
}
