package mediator

import (
	"context"

	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/identifier"
)

// ChannelDetails is a stored channel plus live platform metadata.
type ChannelDetails struct {
	Channel      database.Channel
	About        string
	MembersCount int
}

// UpsertChannelFromIdentifier resolves raw (a link, @handle or id) on the
// platform and stores the channel.
func (s *Service) UpsertChannelFromIdentifier(ctx context.Context, raw string) (*database.Channel, error) {
	ident, ok := identifier.Normalize(raw)
	if !ok {
		return nil, apperr.InvalidInput("channel identifier is empty")
	}

	entity, err := s.ResolveIdentifier(ctx, ident)
	if err != nil {
		return nil, err
	}

	row := channelRow(entity)
	if err := s.store.UpsertChannel(ctx, row); err != nil {
		return nil, apperr.Persistence("failed to save channel", err)
	}
	s.log.InfoContext(ctx, "Channel added", "channel_id", row.ID, "title", row.Title, "identifier", ident.String())
	return row, nil
}

// ImportDialogs stores every chat the platform account is a member of.
func (s *Service) ImportDialogs(ctx context.Context) ([]database.Channel, error) {
	dialogs, err := s.platform.Dialogs(ctx)
	if err != nil {
		return nil, apperr.ExternalLookup("failed to list dialogs", err)
	}

	saved := make([]database.Channel, 0, len(dialogs))
	for _, d := range dialogs {
		if !d.Kind.IsChat() {
			continue
		}
		row := channelRow(d)
		if err := s.store.UpsertChannel(ctx, row); err != nil {
			return saved, apperr.Persistence("failed to save channel", err)
		}
		saved = append(saved, *row)
	}
	s.log.InfoContext(ctx, "Dialogs imported", "dialogs", len(dialogs), "saved", len(saved))
	return saved, nil
}

// ListChannels returns stored channels matching search (empty for all).
func (s *Service) ListChannels(ctx context.Context, search string) ([]database.Channel, error) {
	channels, err := s.store.ListChannels(ctx, search)
	if err != nil {
		return nil, apperr.Persistence("failed to list channels", err)
	}
	return channels, nil
}

// RemoveChannel deletes a channel with its cached data.
func (s *Service) RemoveChannel(ctx context.Context, channelID int64) error {
	deleted, err := s.store.DeleteChannel(ctx, channelID)
	if err != nil {
		return apperr.Persistence("failed to remove channel", err)
	}
	if !deleted {
		return apperr.NotFound("channel %d not found", channelID)
	}
	s.channels.Forget(channelID)
	return nil
}

// GetChannelDetails resolves a stored channel, refreshes its projection and
// returns it with the platform's description and member count.
func (s *Service) GetChannelDetails(ctx context.Context, channelID int64) (*ChannelDetails, error) {
	entity, err := s.ChannelEntity(ctx, channelID)
	if err != nil {
		return nil, err
	}

	row := channelRow(entity)
	row.ID = channelID
	if err := s.store.UpsertChannel(ctx, row); err != nil {
		return nil, apperr.Persistence("failed to refresh channel", err)
	}
	return &ChannelDetails{Channel: *row, About: entity.About, MembersCount: entity.MembersCount}, nil
}

// SetChannelMonitoring enables or disables live monitoring for channels. A
// non-nil promptID must reference an existing prompt and replaces the
// configured one.
func (s *Service) SetChannelMonitoring(ctx context.Context, channelIDs []int64, enabled bool, promptID *int64) ([]database.Channel, error) {
	ids := dedupe(channelIDs)
	if len(ids) == 0 {
		return nil, apperr.InvalidInput("no channels selected")
	}
	if promptID != nil {
		if _, _, err := s.prompt(ctx, *promptID); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.SetChannelsMonitoring(ctx, ids, enabled, promptID)
	if err != nil {
		return nil, apperr.Persistence("failed to update channel monitoring", err)
	}
	if len(updated) == 0 {
		return nil, apperr.NotFound("no matching channels")
	}

	if enabled {
		for _, ch := range updated {
			if !ch.MonitoringPromptID.Valid {
				s.log.WarnContext(ctx, "Monitoring enabled without a prompt, events will be skipped", "channel_id", ch.ID)
			}
		}
	}
	s.log.InfoContext(ctx, "Channel monitoring updated", "channels", len(updated), "enabled", enabled)
	return updated, nil
}
