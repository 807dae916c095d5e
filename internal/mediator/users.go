package mediator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/database"
)

// ProfileRefreshResult reports a profile refresh. Updated and Errors follow
// the order of the requested ids.
type ProfileRefreshResult struct {
	Updated []int64  `json:"updated"`
	Errors  []string `json:"errors"`
}

// StatsRefreshResult reports a message statistics rebuild.
type StatsRefreshResult struct {
	UsersUpdated         int      `json:"users_updated"`
	ChannelsWithMessages int      `json:"channels_with_messages"`
	MessagesTotal        int64    `json:"messages_total"`
	Errors               []string `json:"errors"`
}

// RefreshUserProfiles fetches the platform profile of each user, at most
// ProfileConcurrency at a time, and stores it. Failures are per user.
func (s *Service) RefreshUserProfiles(ctx context.Context, userIDs []int64) (ProfileRefreshResult, error) {
	ids := dedupe(userIDs)
	result := ProfileRefreshResult{Updated: []int64{}, Errors: []string{}}
	if len(ids) == 0 {
		return result, nil
	}

	var (
		sem  = semaphore.NewWeighted(int64(s.opts.ProfileConcurrency))
		wg   sync.WaitGroup
		errs = make([]error, len(ids))
	)
	for i, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(ids); j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			defer sem.Release(1)
			errs[i] = s.refreshProfile(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		if errs[i] != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("user %d: %v", id, errs[i]))
			continue
		}
		result.Updated = append(result.Updated, id)
	}
	s.log.InfoContext(ctx, "User profiles refreshed", "updated", len(result.Updated), "failed", len(result.Errors))
	return result, nil
}

func (s *Service) refreshProfile(ctx context.Context, userID int64) error {
	e, err := s.UserEntity(ctx, userID)
	if err != nil {
		return err
	}
	row := userRow(e)
	row.ID = userID
	if err := s.store.UpsertUser(ctx, row); err != nil {
		return apperr.Persistence("failed to save user profile", err)
	}
	return nil
}

// RefreshUserMessageStats recounts cached messages per user and channel
// and replaces the stored counts.
func (s *Service) RefreshUserMessageStats(ctx context.Context) (StatsRefreshResult, error) {
	result := StatsRefreshResult{Errors: []string{}}

	stats, err := s.store.AggregateUserMessageStats(ctx)
	if err != nil {
		return result, apperr.Persistence("failed to aggregate message statistics", err)
	}

	channels := make(map[int64]struct{})
	for _, st := range stats {
		result.MessagesTotal += st.Total
		for _, cu := range st.Channels {
			channels[cu.ChannelID] = struct{}{}
		}
	}

	if err := s.store.ReplaceUserMessageStats(ctx, stats); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, apperr.Persistence("failed to save message statistics", err)
	}
	result.UsersUpdated = len(stats)
	result.ChannelsWithMessages = len(channels)
	s.log.InfoContext(ctx, "User message statistics refreshed",
		"users", result.UsersUpdated, "channels", result.ChannelsWithMessages, "messages", result.MessagesTotal)
	return result, nil
}

// ListUsers pages through known users, most active first. search matches
// username or names and ignores a leading "@".
func (s *Service) ListUsers(ctx context.Context, search string, offset, limit int) ([]database.User, error) {
	if offset < 0 || limit < 0 {
		return nil, apperr.InvalidInput("offset and limit must not be negative")
	}
	users, err := s.store.ListUsers(ctx, search, offset, limit)
	if err != nil {
		return nil, apperr.Persistence("failed to list users", err)
	}
	return users, nil
}

// GetUser returns one stored user.
func (s *Service) GetUser(ctx context.Context, id int64) (*database.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("failed to load user", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}
