package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgard/chanwatch/internal/payload"
)

// Channel types as projected from the messaging platform.
const (
	ChannelTypeChannel    = "channel"
	ChannelTypeSupergroup = "supergroup"
	ChannelTypeGroup      = "group"
	ChannelTypePrivate    = "private"
)

// Monitoring run statuses.
const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Channel is the persisted projection of a platform channel or group plus
// its monitoring configuration.
type Channel struct {
	ID          int64          `db:"id"`
	Username    sql.NullString `db:"username"`
	Title       string         `db:"title"`
	ChannelType string         `db:"channel_type"`
	Link        sql.NullString `db:"link"`

	MonitoringEnabled       bool           `db:"monitoring_enabled"`
	MonitoringPromptID      sql.NullInt64  `db:"monitoring_prompt_id"`
	MonitoringLastMessageID sql.NullInt64  `db:"monitoring_last_message_id"`
	MonitoringLastMessageAt sql.NullTime   `db:"monitoring_last_message_at"`
	MonitoringLastError     sql.NullString `db:"monitoring_last_error"`
	MonitoringUpdatedAt     sql.NullTime   `db:"monitoring_updated_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Message is a cached platform message keyed by (channel, message id).
// Payload holds the sanitized provider document as canonical JSON.
type Message struct {
	ChannelID int64     `db:"channel_id"`
	MessageID int64     `db:"message_id"`
	Timestamp time.Time `db:"timestamp"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Document decodes the stored payload.
func (m Message) Document() (payload.Document, error) {
	return payload.Decode([]byte(m.Payload))
}

// Prompt is a named instruction template for the completion service.
type Prompt struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// User is a known subject: platform profile fields plus the accumulated
// conclusion document.
type User struct {
	ID            int64          `db:"id"`
	Username      sql.NullString `db:"username"`
	FirstName     sql.NullString `db:"first_name"`
	LastName      sql.NullString `db:"last_name"`
	Bio           sql.NullString `db:"bio"`
	MessagesCount int64          `db:"messages_count"`
	Conclusion    sql.NullString `db:"conclusion"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// ConclusionDoc decodes the stored conclusion. A user without one yields an
// empty map.
func (u User) ConclusionDoc() (map[string]any, error) {
	if !u.Conclusion.Valid || u.Conclusion.String == "" {
		return map[string]any{}, nil
	}
	doc, err := payload.Decode([]byte(u.Conclusion.String))
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	return map[string]any(doc), nil
}

// ChannelUser counts one user's cached messages in one channel.
type ChannelUser struct {
	ChannelID     int64 `db:"channel_id"`
	UserID        int64 `db:"user_id"`
	MessagesCount int64 `db:"messages_count"`
}

// UserMessageStats aggregates cached message counts for one user.
type UserMessageStats struct {
	UserID   int64
	Total    int64
	Channels []ChannelUser
}

// MonitoringRun is the durable record of the latest monitoring attempt for a
// (channel, message, prompt) key.
type MonitoringRun struct {
	ID             int64          `db:"id"`
	ChannelID      int64          `db:"channel_id"`
	MessageID      int64          `db:"message_id"`
	PromptID       int64          `db:"prompt_id"`
	AttemptID      string         `db:"attempt_id"`
	Status         string         `db:"status"`
	RequestPayload string         `db:"request_payload"`
	ResponseText   sql.NullString `db:"response_text"`
	Error          sql.NullString `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// UpsertStats reports the outcome of a bulk message upsert.
type UpsertStats struct {
	Processed int `json:"processed"`
	Upserted  int `json:"upserted"`
	Modified  int `json:"modified"`
	Skipped   int `json:"skipped"`
}

// Add accumulates other into s.
func (s *UpsertStats) Add(other UpsertStats) {
	s.Processed += other.Processed
	s.Upserted += other.Upserted
	s.Modified += other.Modified
	s.Skipped += other.Skipped
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
