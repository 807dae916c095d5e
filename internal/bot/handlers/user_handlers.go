package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/chanwatch/internal/database"
)

const usersPageSize = 30

func listUsers(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		users, err := deps.Service.ListUsers(ctx, args, 0, usersPageSize)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(users))
		for _, u := range users {
			lines = append(lines, formatUser(u))
		}
		return strings.Join(lines, "\n"), nil
	}
}

func refreshProfiles(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		ids, err := parseIDs(args)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "", errUsage
		}
		result, err := deps.Service.RefreshUserProfiles(ctx, ids)
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Updated %d of %d profiles.", len(result.Updated), len(ids))
		for _, e := range result.Errors {
			sb.WriteString("\n" + e)
		}
		return sb.String(), nil
	}
}

func formatUser(u database.User) string {
	s := fmt.Sprintf("%d", u.ID)
	if u.Username.Valid && u.Username.String != "" {
		s += " @" + u.Username.String
	}
	name := strings.TrimSpace(u.FirstName.String + " " + u.LastName.String)
	if name != "" {
		s += " " + name
	}
	s += fmt.Sprintf(" (%d messages)", u.MessagesCount)
	if u.Conclusion.Valid && u.Conclusion.String != "" && u.Conclusion.String != "{}" {
		s += " *"
	}
	return s
}
