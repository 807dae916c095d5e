package mediator

import (
	"context"
	"time"

	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/render"
)

// RenderMessages renders a channel's cached messages in [from, to], plus
// their reply ancestors, as a format hint line followed by one line per
// message. The result is empty when nothing renders.
func (s *Service) RenderMessages(ctx context.Context, channelID int64, from, to time.Time) ([]string, error) {
	if to.Before(from) {
		return nil, apperr.InvalidInput("render window ends before it starts")
	}

	messages, err := s.store.ListMessagesByDate(ctx, channelID, from, to)
	if err != nil {
		return nil, apperr.Persistence("failed to load messages", err)
	}
	docs := s.withReplies(ctx, channelID, s.decodeMessages(ctx, messages))

	usernames := make(map[int64]string)
	if ids := render.UserIDs(docs); len(ids) > 0 {
		users, err := s.store.ListUsersByIDs(ctx, ids)
		if err != nil {
			return nil, apperr.Persistence("failed to load users", err)
		}
		for _, u := range users {
			if u.Username.Valid && u.Username.String != "" {
				usernames[u.ID] = u.Username.String
			}
		}
	}

	return render.Lines(docs, usernames), nil
}
