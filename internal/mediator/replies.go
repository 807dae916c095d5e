package mediator

import (
	"context"
	"sort"

	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/payload"
)

// withReplies returns window plus every message it transitively replies to,
// sorted by (timestamp, id). Ancestors come from the cache first and then
// from the platform; platform-fetched ones are cached. The walk stops at a
// fixed point or after the configured number of rounds.
func (s *Service) withReplies(ctx context.Context, channelID int64, window []payload.Document) []payload.Document {
	byID := make(map[int64]payload.Document, len(window))
	ordered := make([]payload.Document, 0, len(window))
	add := func(doc payload.Document) (int64, bool) {
		id, ok := doc.ID()
		if !ok {
			return 0, false
		}
		if _, seen := byID[id]; !seen {
			byID[id] = doc
			ordered = append(ordered, doc)
		}
		return id, true
	}

	for _, doc := range window {
		add(doc)
	}

	pending := make(map[int64]struct{})
	for _, doc := range ordered {
		if rid, ok := doc.ReplyToID(); ok {
			if _, have := byID[rid]; !have {
				pending[rid] = struct{}{}
			}
		}
	}

	for round := 0; len(pending) > 0; round++ {
		if round >= s.opts.ReplyIterationCap {
			s.log.WarnContext(ctx, "Reply reconstruction stopped at iteration cap",
				"channel_id", channelID, "cap", s.opts.ReplyIterationCap, "pending", len(pending))
			break
		}
		if ctx.Err() != nil {
			break
		}

		loaded := make(map[int64]struct{}, len(pending))

		cached, err := s.store.ListMessagesByIDs(ctx, channelID, keys(pending))
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to load reply messages from cache", "channel_id", channelID, "error", err)
		}
		for _, doc := range s.decodeMessages(ctx, cached) {
			if id, ok := add(doc); ok {
				loaded[id] = struct{}{}
			}
		}

		missing := make([]int64, 0, len(pending))
		for id := range pending {
			if _, ok := loaded[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			fetched := s.fetchMessages(ctx, channelID, missing)
			if len(fetched) > 0 {
				if _, err := s.store.UpsertMessages(ctx, channelID, fetched); err != nil {
					s.log.ErrorContext(ctx, "Failed to cache fetched reply messages", "channel_id", channelID, "error", err)
				}
			}
			for _, doc := range fetched {
				if id, ok := add(doc); ok {
					loaded[id] = struct{}{}
				}
			}
		}

		next := make(map[int64]struct{})
		for id := range loaded {
			if rid, ok := byID[id].ReplyToID(); ok {
				if _, have := byID[rid]; !have {
					next[rid] = struct{}{}
				}
			}
		}
		pending = next
	}

	sortMessages(ordered)
	return ordered
}

// fetchMessages loads ids from the platform. Failures are logged and treated
// as nothing found.
func (s *Service) fetchMessages(ctx context.Context, channelID int64, ids []int64) []payload.Document {
	entity, err := s.ChannelEntity(ctx, channelID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to resolve channel for missing replies", "channel_id", channelID, "error", err)
		return nil
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	docs, err := s.platform.GetMessages(ctx, entity.ID, ids)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch missing replies", "channel_id", channelID, "message_ids", ids, "error", err)
		return nil
	}

	out := make([]payload.Document, 0, len(docs))
	for _, doc := range docs {
		clean := payload.SanitizeDocument(doc)
		id, hasID := clean.ID()
		ts, hasDate := clean.Date()
		if !hasID || !hasDate {
			continue
		}
		clean["id"] = id
		clean.SetDate(ts)
		out = append(out, clean)
	}
	return out
}

func (s *Service) decodeMessages(ctx context.Context, messages []database.Message) []payload.Document {
	docs := make([]payload.Document, 0, len(messages))
	for _, m := range messages {
		doc, err := m.Document()
		if err != nil {
			s.log.WarnContext(ctx, "Skipping unreadable cached message", "channel_id", m.ChannelID, "message_id", m.MessageID, "error", err)
			continue
		}
		if _, ok := doc.ID(); !ok {
			doc["id"] = m.MessageID
		}
		docs = append(docs, doc)
	}
	return docs
}

// sortMessages orders by timestamp then id; messages without a date first.
func sortMessages(docs []payload.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		ti, _ := docs[i].Date()
		tj, _ := docs[j].Date()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		ii, _ := docs[i].ID()
		ij, _ := docs[j].ID()
		return ii < ij
	})
}

func keys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
