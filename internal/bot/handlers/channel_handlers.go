package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/chanwatch/internal/database"
)

func addChannel(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		if args == "" {
			return "", errUsage
		}
		ch, err := deps.Service.UpsertChannelFromIdentifier(ctx, args)
		if err != nil {
			return "", err
		}
		return "Tracking " + formatChannel(*ch), nil
	}
}

func importDialogs(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, _ string) (string, error) {
		channels, err := deps.Service.ImportDialogs(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Imported %d chats.", len(channels)), nil
	}
}

func listChannels(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		channels, err := deps.Service.ListChannels(ctx, args)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(channels))
		for _, ch := range channels {
			lines = append(lines, formatChannel(ch))
		}
		return strings.Join(lines, "\n"), nil
	}
}

func channelInfo(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		ids, err := parseIDs(args)
		if err != nil {
			return "", err
		}
		if len(ids) != 1 {
			return "", errUsage
		}
		d, err := deps.Service.GetChannelDetails(ctx, ids[0])
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		sb.WriteString(formatChannel(d.Channel))
		fmt.Fprintf(&sb, "\nType: %s", d.Channel.ChannelType)
		if d.MembersCount > 0 {
			fmt.Fprintf(&sb, "\nMembers: %d", d.MembersCount)
		}
		if d.Channel.MonitoringLastMessageID.Valid {
			fmt.Fprintf(&sb, "\nLast monitored message: %d", d.Channel.MonitoringLastMessageID.Int64)
		}
		if d.Channel.MonitoringLastError.Valid && d.Channel.MonitoringLastError.String != "" {
			fmt.Fprintf(&sb, "\nLast error: %s", d.Channel.MonitoringLastError.String)
		}
		if d.About != "" {
			fmt.Fprintf(&sb, "\n\n%s", d.About)
		}
		return sb.String(), nil
	}
}

func removeChannel(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		ids, err := parseIDs(args)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "", errUsage
		}
		removed := 0
		for _, id := range ids {
			if err := deps.Service.RemoveChannel(ctx, id); err != nil {
				return fmt.Sprintf("Removed %d of %d channels.", removed, len(ids)), err
			}
			removed++
		}
		return fmt.Sprintf("Removed %d channels.", removed), nil
	}
}

func monitorChannels(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		ids, err := parseIDs(args)
		if err != nil {
			return "", err
		}
		if len(ids) < 2 {
			return "", errUsage
		}
		promptID := ids[len(ids)-1]
		channels, err := deps.Service.SetChannelMonitoring(ctx, ids[:len(ids)-1], true, &promptID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Monitoring %d channels with prompt %d.", len(channels), promptID), nil
	}
}

func unmonitorChannels(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		ids, err := parseIDs(args)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "", errUsage
		}
		channels, err := deps.Service.SetChannelMonitoring(ctx, ids, false, nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Stopped monitoring %d channels.", len(channels)), nil
	}
}

func formatChannel(ch database.Channel) string {
	s := fmt.Sprintf("%d %s", ch.ID, ch.Title)
	if ch.Username.Valid && ch.Username.String != "" {
		s += " (@" + ch.Username.String + ")"
	}
	if ch.MonitoringEnabled {
		if ch.MonitoringPromptID.Valid {
			s += fmt.Sprintf(" [monitored, prompt %d]", ch.MonitoringPromptID.Int64)
		} else {
			s += " [monitored, no prompt]"
		}
	}
	return s
}
