// Package mediator is the core of chanwatch: it resolves platform entities,
// keeps the message cache fresh, rebuilds reply context, renders messages for
// the model and runs chunked analyses whose findings are merged into per-user
// conclusions.
package mediator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/edgard/chanwatch/internal/analysis"
	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/coalesce"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/gemini"
	"github.com/edgard/chanwatch/internal/identifier"
	"github.com/edgard/chanwatch/internal/platform"
)

// Defaults for zero Options fields.
const (
	DefaultReplyIterationCap  = 64
	DefaultProfileConcurrency = 5
	DefaultRefreshBatchSize   = 200
)

// Options tunes the Service.
type Options struct {
	MaxChunkBytes      int
	ReplyIterationCap  int
	ProfileConcurrency int
	RefreshBatchSize   int
}

func (o Options) withDefaults() Options {
	if o.MaxChunkBytes <= 0 {
		o.MaxChunkBytes = analysis.DefaultMaxChunkBytes
	}
	if o.ReplyIterationCap <= 0 {
		o.ReplyIterationCap = DefaultReplyIterationCap
	}
	if o.ProfileConcurrency <= 0 {
		o.ProfileConcurrency = DefaultProfileConcurrency
	}
	if o.RefreshBatchSize <= 0 {
		o.RefreshBatchSize = DefaultRefreshBatchSize
	}
	return o
}

// Service exposes the core operations to the bot handlers and tasks.
type Service struct {
	store    database.Store
	platform platform.Client
	model    gemini.Client
	log      *slog.Logger
	opts     Options

	channels    *coalesce.Cache[int64, platform.Entity]
	identifiers *coalesce.Cache[identifier.Identifier, platform.Entity]
	users       *coalesce.Cache[int64, platform.Entity]
}

// NewService wires a Service.
func NewService(store database.Store, client platform.Client, model gemini.Client, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:       store,
		platform:    client,
		model:       model,
		log:         logger.With("component", "mediator"),
		opts:        opts.withDefaults(),
		channels:    coalesce.New[int64, platform.Entity](),
		identifiers: coalesce.New[identifier.Identifier, platform.Entity](),
		users:       coalesce.New[int64, platform.Entity](),
	}
}

// ChannelEntity resolves a tracked channel on the platform. Concurrent
// lookups of the same channel share one platform call and successful
// results are memoized.
func (s *Service) ChannelEntity(ctx context.Context, channelID int64) (platform.Entity, error) {
	return s.channels.Do(ctx, channelID, func(ctx context.Context) (platform.Entity, error) {
		stored, err := s.store.GetChannel(ctx, channelID)
		if err != nil {
			return platform.Entity{}, apperr.Persistence("failed to load channel", err)
		}
		if stored == nil {
			return platform.Entity{}, apperr.NotFound("channel %d not found", channelID)
		}

		if e, ok := s.tryChat(ctx, identifier.Identifier{ID: identifier.PeerID(channelID)}); ok {
			return e, nil
		}
		if channelID > 0 {
			if e, ok := s.tryChat(ctx, identifier.Identifier{ID: channelID}); ok {
				return e, nil
			}
		}

		if !stored.Username.Valid || stored.Username.String == "" {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("channel %d cannot be resolved and has no username", channelID), nil)
		}
		ident, ok := identifier.Normalize(stored.Username.String)
		if !ok {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("channel %d has an invalid username", channelID), nil)
		}
		e, err := s.platform.ResolveEntity(ctx, ident)
		if err != nil {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("failed to resolve channel %d", channelID), err)
		}
		if !e.Kind.IsChat() {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("%s is not a channel or group", ident), nil)
		}
		return e, nil
	})
}

// ResolveIdentifier resolves user input to a chat entity. Numeric ids are
// tried in chat id form first.
func (s *Service) ResolveIdentifier(ctx context.Context, ident identifier.Identifier) (platform.Entity, error) {
	return s.identifiers.Do(ctx, ident, func(ctx context.Context) (platform.Entity, error) {
		candidates := []identifier.Identifier{ident}
		if ident.IsNumeric() && ident.ID > 0 {
			candidates = []identifier.Identifier{{ID: identifier.PeerID(ident.ID)}, ident}
		}

		var lastErr error
		for _, c := range candidates {
			e, err := s.platform.ResolveEntity(ctx, c)
			if err != nil {
				lastErr = err
				continue
			}
			if e.Kind.IsChat() {
				return e, nil
			}
			lastErr = nil
		}

		switch {
		case lastErr == nil:
			return platform.Entity{}, apperr.InvalidInput("%s is not a channel or group", ident)
		case errors.Is(lastErr, platform.ErrNotFound):
			return platform.Entity{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("channel %s not found", ident), lastErr)
		default:
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("failed to resolve %s", ident), lastErr)
		}
	})
}

// UserEntity resolves a user on the platform, falling back to the stored
// username. Results are coalesced and memoized like channel lookups.
func (s *Service) UserEntity(ctx context.Context, userID int64) (platform.Entity, error) {
	return s.users.Do(ctx, userID, func(ctx context.Context) (platform.Entity, error) {
		e, err := s.platform.ResolveEntity(ctx, identifier.Identifier{ID: userID})
		if err == nil && e.Kind == platform.KindUser {
			return e, nil
		}

		stored, serr := s.store.GetUser(ctx, userID)
		if serr != nil {
			return platform.Entity{}, apperr.Persistence("failed to load user", serr)
		}
		if stored == nil || !stored.Username.Valid || stored.Username.String == "" {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("user %d cannot be resolved", userID), err)
		}
		ident, ok := identifier.Normalize(stored.Username.String)
		if !ok {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("user %d has an invalid username", userID), err)
		}
		e, err = s.platform.ResolveEntity(ctx, ident)
		if err != nil {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("failed to resolve user %d", userID), err)
		}
		if e.Kind != platform.KindUser {
			return platform.Entity{}, apperr.ExternalLookup(fmt.Sprintf("%s is not a user", ident), nil)
		}
		return e, nil
	})
}

func (s *Service) tryChat(ctx context.Context, ident identifier.Identifier) (platform.Entity, bool) {
	e, err := s.platform.ResolveEntity(ctx, ident)
	if err != nil {
		s.log.DebugContext(ctx, "Entity lookup failed", "identifier", ident.String(), "error", err)
		return platform.Entity{}, false
	}
	return e, e.Kind.IsChat()
}

func channelRow(e platform.Entity) *database.Channel {
	title := e.Title
	if title == "" {
		title = "Untitled"
	}
	return &database.Channel{
		ID:          e.ID,
		Username:    nullString(e.Username),
		Title:       title,
		ChannelType: string(e.Kind),
		Link:        nullString(e.Link()),
	}
}

func userRow(e platform.Entity) *database.User {
	return &database.User{
		ID:        e.ID,
		Username:  nullString(e.Username),
		FirstName: nullString(e.FirstName),
		LastName:  nullString(e.LastName),
		Bio:       nullString(e.Bio),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
