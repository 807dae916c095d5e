// Package monitoring analyzes live channel messages as they arrive, one
// completion call per (channel, message, prompt), and records every attempt
// as a run so that redelivered events are not analyzed twice.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/chanwatch/internal/analysis"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/gemini"
	"github.com/edgard/chanwatch/internal/payload"
	"github.com/edgard/chanwatch/internal/platform"
)

// Users context window bounds.
const (
	DefaultUsersLimit = 50
	MaxUsersLimit     = 200
)

// recordTimeout bounds the writes that record a failed attempt, which run
// detached from the attempt's own context.
const recordTimeout = 10 * time.Second

// Outcome describes what happened to one event.
type Outcome int

const (
	// OutcomeSkipped means the channel is not monitored or the event
	// carries no usable message.
	OutcomeSkipped Outcome = iota
	// OutcomeDuplicate means another attempt for the same key is in flight.
	OutcomeDuplicate
	// OutcomeReplayed means the key already has a successful run.
	OutcomeReplayed
	OutcomeSuccess
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeReplayed:
		return "replayed"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ChannelRegistrar stores a channel given a user-supplied identifier.
type ChannelRegistrar interface {
	UpsertChannelFromIdentifier(ctx context.Context, raw string) (*database.Channel, error)
}

// Options tunes the Pipeline.
type Options struct {
	// UsersLimit is how many users with conclusions are sent along with
	// each message. Zero means DefaultUsersLimit; values above
	// MaxUsersLimit are capped.
	UsersLimit int
	// DefaultChannels are registered by Bootstrap.
	DefaultChannels []string
	// DefaultPromptID is used for monitored channels without a prompt of
	// their own. Zero skips such channels.
	DefaultPromptID int64
}

type runKey struct {
	channelID int64
	messageID int64
	promptID  int64
}

// Pipeline processes live message events.
type Pipeline struct {
	store    database.Store
	model    gemini.Client
	channels ChannelRegistrar
	log      *slog.Logger
	opts     Options

	newAttemptID func() string
	now          func() time.Time

	mu       sync.Mutex
	inflight map[runKey]struct{}
	closed   bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Pipeline. Events submitted to it run until Close.
func New(store database.Store, model gemini.Client, channels ChannelRegistrar, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch {
	case opts.UsersLimit <= 0:
		opts.UsersLimit = DefaultUsersLimit
	case opts.UsersLimit > MaxUsersLimit:
		opts.UsersLimit = MaxUsersLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:        store,
		model:        model,
		channels:     channels,
		log:          logger.With("component", "monitoring"),
		opts:         opts,
		newAttemptID: uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
		inflight:     make(map[runKey]struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Bootstrap registers the configured default channels. Channels that cannot
// be resolved are logged and skipped. It returns how many were registered.
func (p *Pipeline) Bootstrap(ctx context.Context) int {
	registered := 0
	for _, raw := range p.opts.DefaultChannels {
		ch, err := p.channels.UpsertChannelFromIdentifier(ctx, raw)
		if err != nil {
			p.log.ErrorContext(ctx, "Failed to bootstrap monitoring channel", "identifier", raw, "error", err)
			continue
		}
		registered++
		p.log.InfoContext(ctx, "Bootstrapped monitoring channel", "identifier", raw, "channel_id", ch.ID)
	}
	return registered
}

// HandleEvent submits ev for background processing. It matches
// platform.EventHandler.
func (p *Pipeline) HandleEvent(_ context.Context, ev platform.Event) {
	p.Submit(ev)
}

// Submit processes ev on a tracked goroutine. It reports false once the
// pipeline is closed.
func (p *Pipeline) Submit(ev platform.Event) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		_, _ = p.Process(p.ctx, ev)
	}()
	return true
}

// Close stops accepting events, cancels the ones in progress and waits for
// them until ctx is done.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.InfoContext(ctx, "Monitoring pipeline stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for monitoring tasks: %w", ctx.Err())
	}
}

// Process handles one event synchronously. The error is non-nil only for
// OutcomeError and for lookups that fail before an attempt is claimed.
// The channel configuration is read before the run key is claimed because
// the key includes the resolved prompt id; that read has no side effects.
func (p *Pipeline) Process(ctx context.Context, ev platform.Event) (Outcome, error) {
	channel, err := p.store.GetChannel(ctx, ev.ChannelID)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to load monitored channel", "channel_id", ev.ChannelID, "error", err)
		return OutcomeSkipped, err
	}
	if channel == nil || !channel.MonitoringEnabled {
		return OutcomeSkipped, nil
	}
	promptID := p.opts.DefaultPromptID
	if channel.MonitoringPromptID.Valid {
		promptID = channel.MonitoringPromptID.Int64
	}
	if promptID <= 0 {
		return OutcomeSkipped, nil
	}

	msg := payload.SanitizeDocument(ev.Message)
	messageID, ok := msg.ID()
	if !ok {
		p.log.DebugContext(ctx, "Skipping event without message id", "channel_id", channel.ID)
		return OutcomeSkipped, nil
	}
	msg["id"] = messageID
	messageAt, ok := msg.Date()
	if !ok {
		messageAt = ev.ReceivedAt
		if messageAt.IsZero() {
			messageAt = p.now()
		}
	}
	messageAt = messageAt.UTC().Truncate(time.Second)
	msg.SetDate(messageAt)

	key := runKey{channelID: channel.ID, messageID: messageID, promptID: promptID}
	if !p.claim(key) {
		p.log.DebugContext(ctx, "Skipping message already in flight", "channel_id", key.channelID, "message_id", key.messageID, "prompt_id", key.promptID)
		return OutcomeDuplicate, nil
	}
	defer p.release(key)

	done, err := p.store.HasSuccessfulRun(ctx, key.channelID, key.messageID, key.promptID)
	if err != nil {
		p.recordError(ctx, key, "", fmt.Errorf("failed to check previous runs: %w", err))
		return OutcomeError, err
	}
	if done {
		p.log.DebugContext(ctx, "Skipping already analyzed message", "channel_id", key.channelID, "message_id", key.messageID, "prompt_id", key.promptID)
		return OutcomeReplayed, nil
	}

	request, err := p.analyze(ctx, key, channel, msg, messageAt)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to process monitored message",
			"channel_id", key.channelID, "message_id", key.messageID, "prompt_id", key.promptID, "error", err)
		p.recordError(ctx, key, request, err)
		return OutcomeError, err
	}
	p.log.InfoContext(ctx, "Monitored message analyzed", "channel_id", key.channelID, "message_id", key.messageID, "prompt_id", key.promptID)
	return OutcomeSuccess, nil
}

// analyze runs one claimed attempt. It returns the encoded request payload
// once it has been built, also on later failures.
func (p *Pipeline) analyze(ctx context.Context, key runKey, channel *database.Channel, msg payload.Document, messageAt time.Time) (string, error) {
	if _, err := p.store.UpsertMessages(ctx, key.channelID, []payload.Document{msg}); err != nil {
		return "", fmt.Errorf("failed to cache message: %w", err)
	}
	if senderID, ok := msg.UserID(); ok && senderID != 0 {
		if err := p.store.EnsureUsersExist(ctx, []int64{senderID}); err != nil {
			return "", fmt.Errorf("failed to register sender: %w", err)
		}
	}

	prompt, err := p.store.GetPrompt(ctx, key.promptID)
	if err != nil {
		return "", fmt.Errorf("failed to load prompt: %w", err)
	}
	if prompt == nil || strings.TrimSpace(prompt.Text) == "" {
		return "", fmt.Errorf("monitoring prompt %d is not found or empty", key.promptID)
	}

	users, err := p.store.ListUsersWithConclusions(ctx, p.opts.UsersLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load user context: %w", err)
	}
	request, err := encodeCompact(buildRequest(channel, msg, users))
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	response, err := p.model.AnalyzeMessages(ctx, strings.TrimSpace(prompt.Text), []string{request})
	if err != nil {
		return request, fmt.Errorf("monitoring request failed: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return request, errors.New("the model returned an empty monitoring response")
	}

	if err := p.store.SaveRun(ctx, &database.MonitoringRun{
		ChannelID:      key.channelID,
		MessageID:      key.messageID,
		PromptID:       key.promptID,
		AttemptID:      p.newAttemptID(),
		Status:         database.RunStatusSuccess,
		RequestPayload: request,
		ResponseText:   nullString(response),
	}); err != nil {
		return request, err
	}

	if conclusions := analysis.Conclusions(response); len(conclusions) > 0 {
		if err := p.store.MergeConclusions(ctx, conclusions); err != nil {
			p.log.ErrorContext(ctx, "Failed to persist conclusions from monitoring output", "channel_id", key.channelID, "error", err)
		}
	}

	if err := p.store.SetMonitoringSuccess(ctx, key.channelID, key.messageID, messageAt); err != nil {
		return request, err
	}
	return request, nil
}

// recordError saves an error run with the best payload available and marks
// the channel. It uses a detached context so cancelled attempts are still
// recorded.
func (p *Pipeline) recordError(ctx context.Context, key runKey, request string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if request == "" {
		fallback, err := encodeCompact(map[string]int64{
			"channel_id": key.channelID,
			"message_id": key.messageID,
			"prompt_id":  key.promptID,
		})
		if err == nil {
			request = fallback
		}
	}
	errText := strings.TrimSpace(cause.Error())

	if err := p.store.SaveRun(ctx, &database.MonitoringRun{
		ChannelID:      key.channelID,
		MessageID:      key.messageID,
		PromptID:       key.promptID,
		AttemptID:      p.newAttemptID(),
		Status:         database.RunStatusError,
		RequestPayload: request,
		Error:          nullString(errText),
	}); err != nil {
		p.log.ErrorContext(ctx, "Failed to persist monitoring error",
			"channel_id", key.channelID, "message_id", key.messageID, "prompt_id", key.promptID, "error", err)
	}
	if err := p.store.SetMonitoringError(ctx, key.channelID, errText); err != nil {
		p.log.ErrorContext(ctx, "Failed to record channel monitoring error", "channel_id", key.channelID, "error", err)
	}
}

func (p *Pipeline) claim(key runKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[key]; busy {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Pipeline) release(key runKey) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

// inFlight returns the number of claimed keys.
func (p *Pipeline) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func encodeCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
