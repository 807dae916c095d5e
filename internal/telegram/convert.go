package telegram

import (
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/chanwatch/internal/payload"
	"github.com/edgard/chanwatch/internal/platform"
)

// messageDocument converts a Bot API message into a sanitized document with
// a canonical "id" and RFC 3339 "date". Nested reply and forward data is
// reduced to the fields the renderer reads.
func messageDocument(m *models.Message) (payload.Document, error) {
	flat := *m
	flat.ReplyToMessage = nil
	flat.ForwardOrigin = nil
	flat.PinnedMessage = nil

	doc, err := payload.FromStruct(flat)
	if err != nil {
		return nil, err
	}
	doc["id"] = int64(m.ID)
	if m.Date > 0 {
		doc.SetDate(time.Unix(int64(m.Date), 0))
	}
	if m.ReplyToMessage != nil {
		doc["reply_to_message_id"] = int64(m.ReplyToMessage.ID)
	}
	if origin := forwardOrigin(m.ForwardOrigin); origin != nil {
		doc["forward_origin"] = origin
	}
	return doc, nil
}

func forwardOrigin(o *models.MessageOrigin) map[string]any {
	if o == nil {
		return nil
	}
	switch {
	case o.MessageOriginChannel != nil:
		c := o.MessageOriginChannel
		return map[string]any{
			"type":       "channel",
			"chat":       map[string]any{"id": c.Chat.ID, "title": c.Chat.Title, "username": c.Chat.Username},
			"message_id": int64(c.MessageID),
		}
	case o.MessageOriginChat != nil:
		c := o.MessageOriginChat
		return map[string]any{
			"type":        "chat",
			"sender_chat": map[string]any{"id": c.SenderChat.ID, "title": c.SenderChat.Title},
		}
	case o.MessageOriginUser != nil:
		u := o.MessageOriginUser
		return map[string]any{
			"type":        "user",
			"sender_user": map[string]any{"id": u.SenderUser.ID, "username": u.SenderUser.Username},
		}
	case o.MessageOriginHiddenUser != nil:
		return map[string]any{
			"type":             "hidden_user",
			"sender_user_name": o.MessageOriginHiddenUser.SenderUserName,
		}
	default:
		return map[string]any{"type": string(o.Type)}
	}
}

func chatKind(t models.ChatType) platform.Kind {
	switch t {
	case models.ChatTypeChannel:
		return platform.KindChannel
	case models.ChatTypeSupergroup:
		return platform.KindSupergroup
	case models.ChatTypeGroup:
		return platform.KindGroup
	default:
		return platform.KindUser
	}
}

func chatEntity(c models.Chat) platform.Entity {
	return platform.Entity{
		ID:        c.ID,
		Kind:      chatKind(c.Type),
		Username:  c.Username,
		Title:     c.Title,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

func fullInfoEntity(c *models.ChatFullInfo) platform.Entity {
	e := platform.Entity{
		ID:        c.ID,
		Kind:      chatKind(c.Type),
		Username:  c.Username,
		Title:     c.Title,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
	if e.Kind.IsChat() {
		e.About = c.Description
	} else {
		e.Bio = c.Bio
	}
	return e
}
