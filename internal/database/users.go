package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/chanwatch/internal/conclusion"
)

const userColumns = `id, username, first_name, last_name, bio, messages_count, conclusion, created_at, updated_at`

// UpsertUser inserts a user or refreshes its profile fields, keeping the
// stored conclusion and message counts.
func (s *sqlxStore) UpsertUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user")
	}
	if user.ID == 0 {
		return fmt.Errorf("user must have a non-zero id")
	}

	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (id, username, first_name, last_name, bio, messages_count, created_at, updated_at)
        VALUES (:id, :username, :first_name, :last_name, :bio, 0, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            username = excluded.username,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            bio = excluded.bio,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
	}
	return nil
}

// EnsureUsersExist creates bare rows for unknown user ids.
func (s *sqlxStore) EnsureUsersExist(ctx context.Context, ids []int64) error {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	now := s.now()
	return s.inTx(ctx, "ensure_users", func(tx *sqlx.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO users (id, messages_count, created_at, updated_at) VALUES (?, 0, ?, ?)
                ON CONFLICT (id) DO NOTHING;`, id, now, now); err != nil {
				s.logger.ErrorContext(ctx, "Error ensuring user exists", "user_id", id, "error", err)
				return fmt.Errorf("failed to ensure user %d: %w", id, err)
			}
		}
		return nil
	})
}

// GetUser returns user id, or nil, nil if unknown.
func (s *sqlxStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", id, "error", err)
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// ListUsersByIDs returns the known users among ids.
func (s *sqlxStore) ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var users []User
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?) ORDER BY id ASC;`, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build user query: %w", err)
		}
		var batch []User
		if err := s.db.SelectContext(ctx, &batch, s.db.Rebind(query), args...); err != nil {
			s.logger.ErrorContext(ctx, "Error listing users by ids", "error", err)
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		users = append(users, batch...)
	}
	return users, nil
}

// ListUsers pages through users, most active first, optionally filtered by
// username or name.
func (s *sqlxStore) ListUsers(ctx context.Context, search string, offset, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	var users []User
	search = strings.TrimSpace(search)
	var err error
	if search == "" {
		err = s.db.SelectContext(ctx, &users, `
            SELECT `+userColumns+` FROM users
            ORDER BY messages_count DESC, id ASC LIMIT ? OFFSET ?;`, limit, offset)
	} else {
		pattern := "%" + strings.ToLower(strings.TrimPrefix(search, "@")) + "%"
		err = s.db.SelectContext(ctx, &users, `
            SELECT `+userColumns+` FROM users
            WHERE lower(COALESCE(username, '')) LIKE ?
               OR lower(COALESCE(first_name, '') || ' ' || COALESCE(last_name, '')) LIKE ?
               OR CAST(id AS TEXT) LIKE ?
            ORDER BY messages_count DESC, id ASC LIMIT ? OFFSET ?;`, pattern, pattern, pattern, limit, offset)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing users", "search", search, "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListUsersWithConclusions returns up to limit users that have a conclusion,
// most recently updated first.
func (s *sqlxStore) ListUsersWithConclusions(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		return nil, nil
	}
	var users []User
	if err := s.db.SelectContext(ctx, &users, `
        SELECT `+userColumns+` FROM users
        WHERE conclusion IS NOT NULL AND conclusion != ''
        ORDER BY updated_at DESC, id ASC LIMIT ?;`, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing users with conclusions", "error", err)
		return nil, fmt.Errorf("failed to list users with conclusions: %w", err)
	}
	return users, nil
}

// GetConclusions returns the stored conclusions of the users among ids that
// have one.
func (s *sqlxStore) GetConclusions(ctx context.Context, ids []int64) (map[int64]map[string]any, error) {
	users, err := s.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]map[string]any, len(users))
	for _, u := range users {
		if !u.Conclusion.Valid || u.Conclusion.String == "" {
			continue
		}
		doc, err := u.ConclusionDoc()
		if err != nil {
			s.logger.WarnContext(ctx, "Ignoring unreadable conclusion", "user_id", u.ID, "error", err)
			continue
		}
		out[u.ID] = doc
	}
	return out, nil
}

// MergeConclusions deep-merges partials into stored conclusions, creating
// users as needed, in one transaction.
func (s *sqlxStore) MergeConclusions(ctx context.Context, partials map[int64]map[string]any) error {
	if len(partials) == 0 {
		return nil
	}

	return s.inTx(ctx, "merge_conclusions", func(tx *sqlx.Tx) error {
		now := s.now()
		for userID, partial := range partials {
			var stored sql.NullString
			err := tx.GetContext(ctx, &stored, `SELECT conclusion FROM users WHERE id = ?;`, userID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to load conclusion for user %d: %w", userID, err)
			}

			existing := User{ID: userID, Conclusion: stored}
			current, err := existing.ConclusionDoc()
			if err != nil {
				s.logger.WarnContext(ctx, "Replacing unreadable conclusion", "user_id", userID, "error", err)
				current = map[string]any{}
			}

			encoded, err := marshalJSON(conclusion.Merge(current, partial))
			if err != nil {
				return fmt.Errorf("failed to encode conclusion for user %d: %w", userID, err)
			}

			if _, err := tx.ExecContext(ctx, `
                INSERT INTO users (id, messages_count, conclusion, created_at, updated_at) VALUES (?, 0, ?, ?, ?)
                ON CONFLICT (id) DO UPDATE SET conclusion = excluded.conclusion, updated_at = excluded.updated_at;`,
				userID, encoded, now, now); err != nil {
				s.logger.ErrorContext(ctx, "Error saving conclusion", "user_id", userID, "error", err)
				return fmt.Errorf("failed to save conclusion for user %d: %w", userID, err)
			}
		}
		s.logger.DebugContext(ctx, "Conclusions merged", "count", len(partials))
		return nil
	})
}

// ReplaceUserMessageStats rewrites per-user and per-channel message counts.
func (s *sqlxStore) ReplaceUserMessageStats(ctx context.Context, stats []UserMessageStats) error {
	return s.inTx(ctx, "replace_user_stats", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM channel_users;`); err != nil {
			return fmt.Errorf("failed to clear channel users: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET messages_count = 0;`); err != nil {
			return fmt.Errorf("failed to reset message counts: %w", err)
		}

		now := s.now()
		for _, st := range stats {
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO users (id, messages_count, created_at, updated_at) VALUES (?, ?, ?, ?)
                ON CONFLICT (id) DO UPDATE SET messages_count = excluded.messages_count;`,
				st.UserID, st.Total, now, now); err != nil {
				return fmt.Errorf("failed to update message count for user %d: %w", st.UserID, err)
			}
			for _, cu := range st.Channels {
				if _, err := tx.NamedExecContext(ctx, `
                    INSERT INTO channel_users (channel_id, user_id, messages_count)
                    VALUES (:channel_id, :user_id, :messages_count);`, cu); err != nil {
					return fmt.Errorf("failed to save channel count for user %d: %w", st.UserID, err)
				}
			}
		}
		return nil
	})
}
