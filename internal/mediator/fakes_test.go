package mediator

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/identifier"
	"github.com/edgard/chanwatch/internal/payload"
	"github.com/edgard/chanwatch/internal/platform"
)

type fakePlatform struct {
	mu       sync.Mutex
	entities []platform.Entity
	history  map[int64][]payload.Document
	gate     chan struct{}

	resolveCalls int
	fetched      []int64
}

func newFakePlatform(entities ...platform.Entity) *fakePlatform {
	return &fakePlatform{entities: entities, history: make(map[int64][]payload.Document)}
}

func (f *fakePlatform) addMessages(chatID int64, docs ...payload.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[chatID] = append(f.history[chatID], docs...)
}

func (f *fakePlatform) ResolveEntity(ctx context.Context, key identifier.Identifier) (platform.Entity, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return platform.Entity{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	for _, e := range f.entities {
		if key.IsNumeric() && e.ID == key.ID {
			return e, nil
		}
		if !key.IsNumeric() && e.Username != "" && strings.EqualFold(e.Username, key.Handle) {
			return e, nil
		}
	}
	return platform.Entity{}, platform.ErrNotFound
}

func (f *fakePlatform) Dialogs(context.Context) ([]platform.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Entity(nil), f.entities...), nil
}

func (f *fakePlatform) IterMessages(_ context.Context, chatID int64, offset time.Time, fn func(payload.Document) bool) error {
	f.mu.Lock()
	docs := append([]payload.Document(nil), f.history[chatID]...)
	f.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool {
		ti, _ := docs[i].Date()
		tj, _ := docs[j].Date()
		return ti.After(tj)
	})
	for _, d := range docs {
		if ts, _ := d.Date(); ts.After(offset) {
			continue
		}
		if !fn(copyDoc(d)) {
			return nil
		}
	}
	return nil
}

func (f *fakePlatform) GetMessages(_ context.Context, chatID int64, ids []int64) ([]payload.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, ids...)
	var out []payload.Document
	for _, id := range ids {
		for _, d := range f.history[chatID] {
			if did, _ := d.ID(); did == id {
				out = append(out, copyDoc(d))
			}
		}
	}
	return out, nil
}

func (f *fakePlatform) Subscribe(platform.EventHandler) {}

func (f *fakePlatform) fetchedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.fetched...)
}

func copyDoc(d payload.Document) payload.Document {
	out := make(payload.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

type fakeModel struct {
	mu        sync.Mutex
	analyze   func(prompt string, lines []string) (string, error)
	merge     func(analysis, existing string) (string, error)
	analyzed  [][]string
	existings []string
}

func (m *fakeModel) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (m *fakeModel) AnalyzeMessages(_ context.Context, prompt string, lines []string) (string, error) {
	m.mu.Lock()
	m.analyzed = append(m.analyzed, lines)
	fn := m.analyze
	m.mu.Unlock()
	return fn(prompt, lines)
}

func (m *fakeModel) MergeConclusions(_ context.Context, _ string, analysis, existing string) (string, error) {
	m.mu.Lock()
	m.existings = append(m.existings, existing)
	fn := m.merge
	m.mu.Unlock()
	if fn == nil {
		return analysis, nil
	}
	return fn(analysis, existing)
}

func (m *fakeModel) analyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.analyzed)
}

func newTestStore(t *testing.T) database.Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "mediator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	return database.NewStore(db, nil)
}

func channelEntity(bareID int64, username, title string) platform.Entity {
	return platform.Entity{ID: identifier.PeerID(bareID), Kind: platform.KindChannel, Username: username, Title: title}
}

func message(id int64, date string, userID int64, text string) payload.Document {
	return payload.Document{"id": id, "date": date, "message": text, "from_id": map[string]any{"user_id": userID}}
}

func reply(doc payload.Document, to int64) payload.Document {
	doc["reply_to"] = map[string]any{"reply_to_msg_id": to}
	return doc
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// addChannel stores e as a tracked channel.
func addChannel(t *testing.T, s *Service, e platform.Entity) {
	t.Helper()
	require.NoError(t, s.store.UpsertChannel(context.Background(), channelRow(e)))
}

// countingStore records the message ids written through UpsertMessages.
type countingStore struct {
	database.Store

	mu       sync.Mutex
	upserted []int64
}

func (c *countingStore) UpsertMessages(ctx context.Context, channelID int64, docs []payload.Document) (database.UpsertStats, error) {
	c.mu.Lock()
	for _, doc := range docs {
		if id, ok := doc.ID(); ok {
			c.upserted = append(c.upserted, id)
		}
	}
	c.mu.Unlock()
	return c.Store.UpsertMessages(ctx, channelID, docs)
}

func (c *countingStore) upsertedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.upserted...)
}
