package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chanwatch/internal/identifier"
	"github.com/edgard/chanwatch/internal/payload"
	"github.com/edgard/chanwatch/internal/platform"
)

// ChatAPI is the part of the Bot API used for entity lookups. *bot.Bot
// implements it.
type ChatAPI interface {
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	GetChatMemberCount(ctx context.Context, params *bot.GetChatMemberCountParams) (int, error)
}

// Client adapts the Bot API to platform.Client. Message history comes from
// the updates the bot receives, so history reads only see messages that
// arrived while it was running.
type Client struct {
	api     ChatAPI
	log     *slog.Logger
	history *History

	mu       sync.RWMutex
	chats    map[int64]platform.Entity
	handlers []platform.EventHandler
	now      func() time.Time
}

var _ platform.Client = (*Client)(nil)

// NewClient creates a Client keeping historySize messages per chat.
func NewClient(api ChatAPI, logger *slog.Logger, historySize int) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:     api,
		log:     logger.With("component", "telegram_client"),
		history: NewHistory(historySize),
		chats:   make(map[int64]platform.Entity),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ResolveEntity looks up a chat or user by id or public username.
func (c *Client) ResolveEntity(ctx context.Context, key identifier.Identifier) (platform.Entity, error) {
	var chatID any
	switch {
	case key.IsNumeric():
		chatID = key.ID
	case key.Handle != "":
		chatID = "@" + key.Handle
	default:
		return platform.Entity{}, platform.ErrNotFound
	}

	info, err := c.api.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return platform.Entity{}, mapError(fmt.Sprintf("get chat %v", chatID), err)
	}

	e := fullInfoEntity(info)
	if e.Kind.IsChat() {
		count, err := c.api.GetChatMemberCount(ctx, &bot.GetChatMemberCountParams{ChatID: e.ID})
		if err != nil {
			c.log.DebugContext(ctx, "Failed to get member count", "chat_id", e.ID, "error", err)
		} else {
			e.MembersCount = count
		}
		c.remember(e)
	}
	return e, nil
}

// Dialogs lists the chats the bot has seen, ordered by id.
func (c *Client) Dialogs(context.Context) ([]platform.Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]platform.Entity, 0, len(c.chats))
	for _, e := range c.chats {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IterMessages walks buffered history newest first.
func (c *Client) IterMessages(ctx context.Context, chatID int64, offset time.Time, fn func(payload.Document) bool) error {
	for _, doc := range c.history.Before(chatID, offset) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(doc) {
			return nil
		}
	}
	return nil
}

// GetMessages returns the buffered subset of ids.
func (c *Client) GetMessages(_ context.Context, chatID int64, ids []int64) ([]payload.Document, error) {
	out := make([]payload.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := c.history.Get(chatID, id); ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Subscribe registers h for incoming chat messages.
func (c *Client) Subscribe(h platform.EventHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// HandleUpdate records group, supergroup and channel messages and fans them
// out to subscribers. It is meant as the bot's default handler.
func (c *Client) HandleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg, isNew := updateMessage(update)
	if msg == nil {
		return
	}
	chat := chatEntity(msg.Chat)
	if !chat.Kind.IsChat() {
		return
	}
	c.remember(chat)

	if msg.ReplyToMessage != nil {
		if parent, err := messageDocument(msg.ReplyToMessage); err == nil {
			c.history.Add(chat.ID, parent)
		}
	}
	doc, err := messageDocument(msg)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to convert message", "chat_id", chat.ID, "message_id", msg.ID, "error", err)
		return
	}
	c.history.Add(chat.ID, doc)

	if !isNew {
		return
	}
	ev := platform.Event{ChannelID: chat.ID, ReceivedAt: c.now(), Message: doc}
	c.mu.RLock()
	handlers := append([]platform.EventHandler(nil), c.handlers...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}

func (c *Client) remember(e platform.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.chats[e.ID]; ok {
		if e.About == "" {
			e.About = prev.About
		}
		if e.MembersCount == 0 {
			e.MembersCount = prev.MembersCount
		}
	}
	c.chats[e.ID] = e
}

// updateMessage picks the message carried by an update and whether it is a
// new message rather than an edit.
func updateMessage(u *models.Update) (*models.Message, bool) {
	switch {
	case u.Message != nil:
		return u.Message, true
	case u.ChannelPost != nil:
		return u.ChannelPost, true
	case u.EditedMessage != nil:
		return u.EditedMessage, false
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost, false
	default:
		return nil, false
	}
}

func mapError(op string, err error) error {
	if errors.Is(err, bot.ErrorNotFound) ||
		(errors.Is(err, bot.ErrorBadRequest) && strings.Contains(strings.ToLower(err.Error()), "not found")) {
		return fmt.Errorf("%s: %w", op, platform.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
