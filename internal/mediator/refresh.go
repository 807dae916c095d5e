package mediator

import (
	"context"
	"sort"
	"time"

	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/payload"
)

// ChannelRefreshStats reports one channel's share of a refresh.
type ChannelRefreshStats struct {
	ChannelID    int64  `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	Total        int    `json:"total"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
}

// RefreshResult aggregates a refresh over several channels.
type RefreshResult struct {
	Total    int                   `json:"total"`
	Created  int                   `json:"created"`
	Updated  int                   `json:"updated"`
	Channels []ChannelRefreshStats `json:"channels"`
}

// RefreshMessages reads each channel's history in [from, to] newest first
// and upserts it in fixed-size batches. An empty channelIDs refreshes every
// stored channel. Failures are isolated per channel: a channel that cannot
// be resolved or read contributes what was flushed before the failure.
func (s *Service) RefreshMessages(ctx context.Context, channelIDs []int64, from, to time.Time) (RefreshResult, error) {
	var result RefreshResult
	if to.Before(from) {
		return result, apperr.InvalidInput("refresh window ends before it starts")
	}

	var (
		channels []database.Channel
		err      error
	)
	if ids := dedupe(channelIDs); len(ids) > 0 {
		channels, err = s.store.GetChannelsByIDs(ctx, ids)
	} else {
		channels, err = s.store.ListChannels(ctx, "")
	}
	if err != nil {
		return result, apperr.Persistence("failed to load channels", err)
	}

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stats := s.refreshChannel(ctx, ch, from, to)
		result.Total += stats.Total
		result.Created += stats.Created
		result.Updated += stats.Updated
		result.Channels = append(result.Channels, stats)
	}

	sort.Slice(result.Channels, func(i, j int) bool {
		return result.Channels[i].ChannelID < result.Channels[j].ChannelID
	})
	s.log.InfoContext(ctx, "Message cache refreshed",
		"channels", len(result.Channels), "total", result.Total, "created", result.Created, "updated", result.Updated)
	return result, nil
}

func (s *Service) refreshChannel(ctx context.Context, ch database.Channel, from, to time.Time) ChannelRefreshStats {
	stats := ChannelRefreshStats{ChannelID: ch.ID, ChannelTitle: ch.Title}

	entity, err := s.ChannelEntity(ctx, ch.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to resolve channel for refresh", "channel_id", ch.ID, "error", err)
		return stats
	}

	batch := make([]payload.Document, 0, s.opts.RefreshBatchSize)
	var flushErr error
	flush := func() {
		if len(batch) == 0 {
			return
		}
		upserted, err := s.store.UpsertMessages(ctx, ch.ID, batch)
		batch = batch[:0]
		if err != nil {
			flushErr = err
			return
		}
		stats.Total += upserted.Processed
		stats.Created += upserted.Upserted
		stats.Updated += upserted.Modified
	}

	iterErr := s.platform.IterMessages(ctx, entity.ID, to, func(doc payload.Document) bool {
		ts, ok := doc.Date()
		if !ok {
			return true
		}
		if ts.Before(from) {
			return false
		}
		if ts.After(to) {
			return true
		}
		clean := payload.SanitizeDocument(doc)
		if len(clean) == 0 {
			return true
		}
		clean.SetDate(ts)
		batch = append(batch, clean)
		if len(batch) >= s.opts.RefreshBatchSize {
			flush()
		}
		return flushErr == nil
	})
	if flushErr == nil {
		flush()
	}

	switch {
	case flushErr != nil:
		s.log.ErrorContext(ctx, "Failed to store refreshed messages", "channel_id", ch.ID, "error", flushErr)
	case iterErr != nil:
		s.log.ErrorContext(ctx, "Failed to read channel history", "channel_id", ch.ID, "error", iterErr)
	}
	return stats
}
