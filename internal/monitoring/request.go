package monitoring

import (
	"database/sql"
	"time"

	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/payload"
)

type requestPayload struct {
	Channel channelContext `json:"channel"`
	Message messageContext `json:"message"`
	Users   []userContext  `json:"users"`
}

type channelContext struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Username *string `json:"username"`
	Link     *string `json:"link"`
}

type messageContext struct {
	ID               int64  `json:"id"`
	Date             string `json:"date"`
	SenderID         *int64 `json:"sender_id"`
	ReplyToMessageID *int64 `json:"reply_to_message_id"`
	Text             string `json:"text"`
}

type userContext struct {
	ID         int64          `json:"id"`
	Conclusion map[string]any `json:"conclusion"`
}

func buildRequest(channel *database.Channel, msg payload.Document, users []database.User) requestPayload {
	req := requestPayload{
		Channel: channelContext{
			ID:       channel.ID,
			Title:    channel.Title,
			Username: optional(channel.Username),
			Link:     optional(channel.Link),
		},
		Users: make([]userContext, 0, len(users)),
	}

	req.Message.ID, _ = msg.ID()
	if ts, ok := msg.Date(); ok {
		req.Message.Date = ts.Format(time.RFC3339)
	}
	if id, ok := msg.UserID(); ok {
		req.Message.SenderID = &id
	}
	if id, ok := msg.ReplyToID(); ok {
		req.Message.ReplyToMessageID = &id
	}
	req.Message.Text = msg.Text()

	for _, u := range users {
		c, err := u.ConclusionDoc()
		if err != nil {
			continue
		}
		req.Users = append(req.Users, userContext{ID: u.ID, Conclusion: c})
	}
	return req
}

func optional(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
