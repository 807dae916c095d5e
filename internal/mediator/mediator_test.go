package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/identifier"
	"github.com/edgard/chanwatch/internal/payload"
	"github.com/edgard/chanwatch/internal/platform"
	"github.com/edgard/chanwatch/internal/render"
)

func newTestService(t *testing.T, p *fakePlatform, m *fakeModel, opts Options) *Service {
	t.Helper()
	if m == nil {
		m = &fakeModel{analyze: func(string, []string) (string, error) { return "[]", nil }}
	}
	return NewService(newTestStore(t), p, m, nil, opts)
}

func TestUpsertChannelFromIdentifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := channelEntity(100, "news", "News")
	person := platform.Entity{ID: 7, Kind: platform.KindUser, Username: "someone"}

	tests := []struct {
		name     string
		raw      string
		wantID   int64
		wantKind apperr.Kind
	}{
		{name: "handle", raw: "@news", wantID: news.ID},
		{name: "link", raw: "https://t.me/news", wantID: news.ID},
		{name: "bare numeric id", raw: "100", wantID: news.ID},
		{name: "empty", raw: "   ", wantKind: apperr.KindInvalidInput},
		{name: "unknown", raw: "@missing", wantKind: apperr.KindNotFound},
		{name: "user is not a channel", raw: "@someone", wantKind: apperr.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestService(t, newFakePlatform(news, person), nil, Options{})

			ch, err := s.UpsertChannelFromIdentifier(ctx, tt.raw)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, ch.ID)
			assert.Equal(t, "News", ch.Title)
			assert.Equal(t, "https://t.me/news", ch.Link.String)

			stored, err := s.store.GetChannel(ctx, tt.wantID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, "channel", stored.ChannelType)
		})
	}
}

func TestResolveIdentifierCoalesces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := newFakePlatform(channelEntity(100, "news", "News"))
	p.gate = make(chan struct{})
	s := newTestService(t, p, nil, Options{})
	ident, ok := identifier.Normalize("@news")
	require.True(t, ok)

	var wg sync.WaitGroup
	results := make([]platform.Entity, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.ResolveIdentifier(ctx, ident)
		}(i)
	}
	close(p.gate)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, identifier.PeerID(100), results[i].ID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, p.resolveCalls)
}

func TestRefreshMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := channelEntity(100, "news", "News")
	p := newFakePlatform(news)
	p.addMessages(news.ID,
		message(1, "2024-05-01T08:00:00Z", 5, "too old"),
		message(2, "2024-05-01T10:00:00Z", 5, "first"),
		message(3, "2024-05-01T10:05:00Z", 6, "second"),
		message(4, "2024-05-01T10:10:00Z", 5, "third"),
		message(5, "2024-05-01T13:00:00Z", 6, "too new"),
	)
	s := newTestService(t, p, nil, Options{RefreshBatchSize: 2})
	addChannel(t, s, news)

	from, to := mustTime(t, "2024-05-01T09:00:00Z"), mustTime(t, "2024-05-01T12:00:00Z")

	first, err := s.RefreshMessages(ctx, nil, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 0, first.Updated)
	require.Len(t, first.Channels, 1)
	assert.Equal(t, ChannelRefreshStats{ChannelID: news.ID, ChannelTitle: "News", Total: 3, Created: 3}, first.Channels[0])

	second, err := s.RefreshMessages(ctx, []int64{news.ID, news.ID}, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Total)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)

	cached, err := s.store.ListMessagesByDate(ctx, news.ID, from, to)
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	_, err = s.RefreshMessages(ctx, nil, to, from)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestRenderMessagesReconstructsReplies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := channelEntity(100, "news", "News")
	p := newFakePlatform(news)
	p.addMessages(news.ID,
		message(1, "2024-05-01T08:00:00Z", 7, "root"),
		reply(message(2, "2024-05-01T09:00:00Z", 6, "middle"), 1),
	)
	base := newTestStore(t)
	_, err := base.UpsertMessages(ctx, news.ID, []payload.Document{
		reply(message(3, "2024-05-01T10:00:00Z", 5, "leaf"), 2),
	})
	require.NoError(t, err)
	store := &countingStore{Store: base}
	s := NewService(store, p, &fakeModel{analyze: func(string, []string) (string, error) { return "[]", nil }}, nil, Options{})
	addChannel(t, s, news)

	from, to := mustTime(t, "2024-05-01T09:30:00Z"), mustTime(t, "2024-05-01T11:00:00Z")
	lines, err := s.RenderMessages(ctx, news.ID, from, to)
	require.NoError(t, err)
	require.Equal(t, []string{
		render.FormatHint,
		"2024-05-01 08:00:00 1 7: root",
		"2024-05-01 09:00:00 2 6 -> 1: middle",
		"2024-05-01 10:00:00 3 5 -> 2: leaf",
	}, lines)
	assert.Equal(t, []int64{2, 1}, p.fetchedIDs())

	cached, err := s.store.ListMessagesByIDs(ctx, news.ID, []int64{1, 2})
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	again, err := s.RenderMessages(ctx, news.ID, from, to)
	require.NoError(t, err)
	assert.Equal(t, lines, again)
	assert.Equal(t, []int64{2, 1}, p.fetchedIDs(), "ancestors are served from the cache")
	assert.Equal(t, []int64{2, 1}, store.upsertedIDs(), "each fetched ancestor is persisted once")
}

func TestRenderMessagesUsesKnownUsernames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := channelEntity(100, "news", "News")
	s := newTestService(t, newFakePlatform(news), nil, Options{})
	addChannel(t, s, news)

	_, err := s.store.UpsertMessages(ctx, news.ID, []payload.Document{message(1, "2024-05-01T10:00:00Z", 5, "hi")})
	require.NoError(t, err)
	require.NoError(t, s.store.UpsertUser(ctx, userRow(platform.Entity{ID: 5, Kind: platform.KindUser, Username: "alice"})))

	lines, err := s.RenderMessages(ctx, news.ID, mustTime(t, "2024-05-01T00:00:00Z"), mustTime(t, "2024-05-02T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, []string{render.FormatHint, "2024-05-01 10:00:00 1 5 @alice: hi"}, lines)

	empty, err := s.RenderMessages(ctx, news.ID, mustTime(t, "2024-06-01T00:00:00Z"), mustTime(t, "2024-06-02T00:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAnalyzeRenderedEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	model := &fakeModel{
		analyze: func(prompt string, lines []string) (string, error) {
			return "```json\n[{\"id\":5,\"langs\":[\"en\"]},{\"id\":6,\"langs\":[\"es\"]}]\n```", nil
		},
		merge: func(analysis, existing string) (string, error) {
			return `[{"id":5,"langs":["en"]},{"id":6,"langs":["es"]}]`, nil
		},
	}
	s := newTestService(t, newFakePlatform(), model, Options{})

	prompt, err := s.CreatePrompt(ctx, "Languages", "count languages used")
	require.NoError(t, err)
	merge, err := s.CreatePrompt(ctx, "Merge", "merge conclusions")
	require.NoError(t, err)

	lines := []string{"FORMAT: ...", "10:00:00 m1 u5: Hello", "10:01:00 m2 u6: Hola"}
	result, err := s.AnalyzeRendered(ctx, prompt.ID, merge.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, prompt.ID, result.PromptID)
	assert.Equal(t, "Languages", result.PromptTitle)
	assert.Contains(t, result.Analysis, `"langs":["en"]`)
	assert.JSONEq(t, `[{"id":5,"langs":["en"]},{"id":6,"langs":["es"]}]`, result.MergeResult)

	require.Equal(t, 1, model.analyzeCalls(), "single chunk")
	assert.Equal(t, lines, model.analyzed[0])
	assert.Equal(t, []string{"[]"}, model.existings)

	for id, want := range map[int64]string{5: `{"langs":["en"]}`, 6: `{"langs":["es"]}`} {
		u, err := s.store.GetUser(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.JSONEq(t, want, u.Conclusion.String)
	}

	// A second run sends the stored conclusions back to the merge step.
	_, err = s.AnalyzeRendered(ctx, prompt.ID, merge.ID, lines)
	require.NoError(t, err)
	require.Len(t, model.existings, 2)
	var existing []map[string]any
	require.NoError(t, json.Unmarshal([]byte(model.existings[1]), &existing))
	assert.Len(t, existing, 2)
	assert.Contains(t, model.existings[1], "\n  ")
}

func TestAnalyzeRenderedChunksLargeInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	model := &fakeModel{analyze: func(_ string, lines []string) (string, error) {
		return `[{"id":5,"seen":true}]`, nil
	}}
	s := newTestService(t, newFakePlatform(), model, Options{MaxChunkBytes: 80})
	prompt, err := s.CreatePrompt(ctx, "P", "analyze")
	require.NoError(t, err)

	lines := []string{render.FormatHint}
	for i := 0; i < 4; i++ {
		lines = append(lines, strings.Repeat("x", 40))
	}
	result, err := s.AnalyzeRendered(ctx, prompt.ID, prompt.ID, lines)
	require.NoError(t, err)
	assert.Greater(t, model.analyzeCalls(), 1)
	assert.Contains(t, result.Analysis, "--- CHUNK 1/")
	for _, chunk := range model.analyzed {
		assert.Equal(t, render.FormatHint, chunk[0])
	}
}

func TestAnalyzeRenderedErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		lines    []string
		analyze  func(string, []string) (string, error)
		promptID int64
		wantKind apperr.Kind
		wantMsg  string
	}{
		{
			name:     "missing prompt",
			lines:    []string{"a"},
			promptID: 999,
			wantKind: apperr.KindNotFound,
		},
		{
			name:     "nothing to analyze",
			lines:    []string{" ", ""},
			wantKind: apperr.KindInvalidInput,
		},
		{
			name:     "model failure",
			lines:    []string{"a"},
			analyze:  func(string, []string) (string, error) { return "", errors.New("boom") },
			wantKind: apperr.KindModel,
			wantMsg:  "analysis request failed",
		},
		{
			name:     "empty answer",
			lines:    []string{"a"},
			analyze:  func(string, []string) (string, error) { return "  ", nil },
			wantKind: apperr.KindModel,
		},
		{
			name:     "unparseable answer",
			lines:    []string{"a"},
			analyze:  func(string, []string) (string, error) { return "no json here", nil },
			wantKind: apperr.KindModel,
			wantMsg:  "could not be understood",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			analyze := tt.analyze
			if analyze == nil {
				analyze = func(string, []string) (string, error) { return `[{"id":1}]`, nil }
			}
			s := newTestService(t, newFakePlatform(), &fakeModel{analyze: analyze}, Options{})
			prompt, err := s.CreatePrompt(ctx, "P", "analyze")
			require.NoError(t, err)

			id := prompt.ID
			if tt.promptID != 0 {
				id = tt.promptID
			}
			_, err = s.AnalyzeRendered(ctx, id, prompt.ID, tt.lines)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestAnalyzeSelectedChannels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	from, to := mustTime(t, "2024-05-01T00:00:00Z"), mustTime(t, "2024-05-02T00:00:00Z")

	news := channelEntity(100, "news", "News")
	chat := channelEntity(200, "chat", "Chat")
	quiet := channelEntity(300, "quiet", "Quiet")

	setup := func(t *testing.T) (*Service, int64) {
		model := &fakeModel{analyze: func(_ string, lines []string) (string, error) {
			if strings.Contains(strings.Join(lines, "\n"), "hola") {
				return `[{"id":6,"langs":["es"]}]`, nil
			}
			return `[{"id":5,"langs":["en"]}]`, nil
		}}
		s := newTestService(t, newFakePlatform(news, chat, quiet), model, Options{})
		for _, e := range []platform.Entity{news, chat, quiet} {
			addChannel(t, s, e)
		}
		_, err := s.store.UpsertMessages(ctx, news.ID, []payload.Document{message(1, "2024-05-01T10:00:00Z", 5, "hello")})
		require.NoError(t, err)
		_, err = s.store.UpsertMessages(ctx, chat.ID, []payload.Document{message(1, "2024-05-01T11:00:00Z", 6, "hola")})
		require.NoError(t, err)
		prompt, err := s.CreatePrompt(ctx, "Languages", "count languages used")
		require.NoError(t, err)
		return s, prompt.ID
	}

	t.Run("single channel is returned verbatim", func(t *testing.T) {
		t.Parallel()
		s, promptID := setup(t)
		result, err := s.AnalyzeSelectedChannels(ctx, promptID, promptID, []int64{news.ID, quiet.ID}, from, to)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":5,"langs":["en"]}]`, result.Analysis)
		assert.NotContains(t, result.Analysis, "### Channel")
	})

	t.Run("several channels are sectioned", func(t *testing.T) {
		t.Parallel()
		s, promptID := setup(t)
		result, err := s.AnalyzeSelectedChannels(ctx, promptID, promptID, []int64{news.ID, chat.ID, news.ID}, from, to)
		require.NoError(t, err)
		assert.Equal(t,
			"### Channel "+itoa(news.ID)+"\n"+`[{"id":5,"langs":["en"]}]`+"\n\n"+
				"### Channel "+itoa(chat.ID)+"\n"+`[{"id":6,"langs":["es"]}]`,
			result.Analysis)
		assert.Contains(t, result.MergeResult, "### Channel "+itoa(chat.ID))

		u, err := s.store.GetUser(ctx, 6)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.JSONEq(t, `{"langs":["es"]}`, u.Conclusion.String)
	})

	t.Run("no channels", func(t *testing.T) {
		t.Parallel()
		s, promptID := setup(t)
		_, err := s.AnalyzeSelectedChannels(ctx, promptID, promptID, nil, from, to)
		require.Error(t, err)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "no channels selected for analysis")
	})

	t.Run("nothing rendered", func(t *testing.T) {
		t.Parallel()
		s, promptID := setup(t)
		_, err := s.AnalyzeSelectedChannels(ctx, promptID, promptID, []int64{quiet.ID}, from, to)
		require.Error(t, err)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "no rendered messages to analyze for selected channels")
	})
}

func TestSetChannelMonitoring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := channelEntity(100, "news", "News")
	s := newTestService(t, newFakePlatform(news), nil, Options{})
	addChannel(t, s, news)
	prompt, err := s.CreatePrompt(ctx, "P", "watch")
	require.NoError(t, err)

	updated, err := s.SetChannelMonitoring(ctx, []int64{news.ID}, true, &prompt.ID)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.True(t, updated[0].MonitoringEnabled)
	assert.Equal(t, prompt.ID, updated[0].MonitoringPromptID.Int64)

	missing := int64(999)
	_, err = s.SetChannelMonitoring(ctx, []int64{news.ID}, true, &missing)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.SetChannelMonitoring(ctx, nil, true, nil)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	_, err = s.SetChannelMonitoring(ctx, []int64{42}, false, nil)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	disabled, err := s.SetChannelMonitoring(ctx, []int64{news.ID}, false, nil)
	require.NoError(t, err)
	assert.False(t, disabled[0].MonitoringEnabled)
}

func TestChannelLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := channelEntity(100, "news", "News")
	news.About, news.MembersCount = "daily news", 42
	person := platform.Entity{ID: 7, Kind: platform.KindUser}
	p := newFakePlatform(news, person)
	s := newTestService(t, p, nil, Options{})

	imported, err := s.ImportDialogs(ctx)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, news.ID, imported[0].ID)

	details, err := s.GetChannelDetails(ctx, news.ID)
	require.NoError(t, err)
	assert.Equal(t, "daily news", details.About)
	assert.Equal(t, 42, details.MembersCount)

	_, err = s.GetChannelDetails(ctx, 12345)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	listed, err := s.ListChannels(ctx, "new")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, s.RemoveChannel(ctx, news.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(s.RemoveChannel(ctx, news.ID)))
}

func TestPromptOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, newFakePlatform(), nil, Options{})

	_, err := s.CreatePrompt(ctx, " ", "text")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	p, err := s.CreatePrompt(ctx, "Title", " text ")
	require.NoError(t, err)
	assert.Equal(t, "text", p.Text)

	updated, err := s.UpdatePrompt(ctx, p.ID, "New", "other")
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)

	_, err = s.UpdatePrompt(ctx, 999, "New", "other")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	all, err := s.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeletePrompt(ctx, p.ID))
	_, err = s.GetPrompt(ctx, p.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(s.DeletePrompt(ctx, p.ID)))
}

func TestRefreshUserProfiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := newFakePlatform(
		platform.Entity{ID: 5, Kind: platform.KindUser, Username: "alice", FirstName: "Alice", Bio: "hi"},
		platform.Entity{ID: 6, Kind: platform.KindUser, Username: "bob"},
	)
	s := newTestService(t, p, nil, Options{ProfileConcurrency: 2})

	result, err := s.RefreshUserProfiles(ctx, []int64{5, 7, 6, 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "user 7: "))

	u, err := s.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username.String)
	assert.Equal(t, "Alice", u.FirstName.String)
	assert.Equal(t, "hi", u.Bio.String)

	_, err = s.GetUser(ctx, 7)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRefreshUserMessageStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news, chat := channelEntity(100, "news", "News"), channelEntity(200, "chat", "Chat")
	s := newTestService(t, newFakePlatform(news, chat), nil, Options{})
	addChannel(t, s, news)
	addChannel(t, s, chat)

	_, err := s.store.UpsertMessages(ctx, news.ID, []payload.Document{
		message(1, "2024-05-01T10:00:00Z", 5, "a"),
		message(2, "2024-05-01T10:01:00Z", 5, "b"),
		message(3, "2024-05-01T10:02:00Z", 6, "c"),
	})
	require.NoError(t, err)
	_, err = s.store.UpsertMessages(ctx, chat.ID, []payload.Document{message(1, "2024-05-01T10:00:00Z", 5, "d")})
	require.NoError(t, err)

	result, err := s.RefreshUserMessageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.UsersUpdated)
	assert.Equal(t, 2, result.ChannelsWithMessages)
	assert.Equal(t, int64(4), result.MessagesTotal)
	assert.Empty(t, result.Errors)

	users, err := s.ListUsers(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(5), users[0].ID)
	assert.Equal(t, int64(3), users[0].MessagesCount)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
