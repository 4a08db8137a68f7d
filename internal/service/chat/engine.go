package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

var (
	ErrEmptyInput       = errors.New("message content is empty")
	ErrAlreadyStreaming = errors.New("a response is already streaming")
	ErrSourceRequired   = errors.New("stream source is required")
	ErrSessionClosed    = errors.New("stream session is no longer active")
)

// Source produces the assistant reply for a prompt one fragment at a time.
// A nil return is success no matter how many fragments were delivered.
type Source interface {
	Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error
}

// Options tunes an Engine. Zero values are usable.
type Options struct {
	// Timeout bounds a single stream. Zero means no bound.
	Timeout time.Duration
	// EventBuffer is the default per-subscriber channel capacity.
	EventBuffer int
	Logger      logrus.FieldLogger
}

// Engine owns the conversation transcript and drives at most one stream at a
// time into it.
type Engine struct {
	source  Source
	timeout time.Duration
	log     logrus.FieldLogger
	broker  *broker

	mu       sync.RWMutex
	messages []chat.Message
	index    map[string]int
	state    chat.State
	active   *chat.StreamSession
	version  uint64
}

// NewEngine returns an idle engine with an empty transcript.
func NewEngine(source Source, opts Options) (*Engine, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Engine{
		source:   source,
		timeout:  opts.Timeout,
		log:      log.WithField("component", "transcript"),
		broker:   newBroker(opts.EventBuffer),
		messages: make([]chat.Message, 0, 16),
		index:    make(map[string]int),
		state:    chat.StateIdle,
	}, nil
}

// Submit appends the user message and its empty assistant reply, then
// streams the reply into it. It blocks until the engine is idle again.
// ErrEmptyInput and ErrAlreadyStreaming mean nothing changed; stream
// failures are not returned, they show up as the assistant content.
func (e *Engine) Submit(ctx context.Context, text string) error {
	session, err := e.begin(text)
	if err != nil {
		return err
	}
	e.run(ctx, session)
	return nil
}

// SubmitAsync is Submit with the streaming half moved to a goroutine.
// The returned channel is closed once the session has been finalized.
func (e *Engine) SubmitAsync(ctx context.Context, text string) (chat.StreamSession, <-chan struct{}, error) {
	session, err := e.begin(text)
	if err != nil {
		return chat.StreamSession{}, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.run(ctx, session)
	}()
	return session, done, nil
}

// Transcript returns a copy of the ordered transcript.
func (e *Engine) Transcript() []chat.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// State reports whether a stream is in flight.
func (e *Engine) State() chat.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Streaming is shorthand for State() == chat.StateStreaming.
func (e *Engine) Streaming() bool {
	return e.State() == chat.StateStreaming
}

// Active returns the in-flight session, if any.
func (e *Engine) Active() (chat.StreamSession, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return chat.StreamSession{}, false
	}
	return *e.active, true
}

// Subscribe registers for transcript changes. The subscription's Snapshot
// is taken atomically with registration, so no change is missed or repeated.
// A buffer of zero or less uses the engine default.
func (e *Engine) Subscribe(buffer int) *Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sub := e.broker.add(buffer)
	sub.Snapshot = chat.Event{
		Kind:     chat.EventSnapshot,
		Version:  e.version,
		State:    e.state,
		Messages: e.snapshotLocked(),
	}
	if e.active != nil {
		sub.Snapshot.SessionID = e.active.ID
	}
	return sub
}

func (e *Engine) begin(text string) (chat.StreamSession, error) {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return chat.StreamSession{}, ErrEmptyInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == chat.StateStreaming {
		return chat.StreamSession{}, ErrAlreadyStreaming
	}

	now := time.Now().UTC()
	user := chat.Message{
		ID:        e.newIDLocked(chat.RoleUser),
		Role:      chat.RoleUser,
		Content:   prompt,
		CreatedAt: now,
	}
	e.appendLocked(user)

	assistant := chat.Message{
		ID:        e.newIDLocked(chat.RoleAssistant),
		Role:      chat.RoleAssistant,
		CreatedAt: now,
	}
	e.appendLocked(assistant)

	session := chat.StreamSession{
		ID:                 uuid.NewString(),
		UserMessageID:      user.ID,
		AssistantMessageID: assistant.ID,
		Prompt:             prompt,
		StartedAt:          now,
	}
	e.state = chat.StateStreaming
	e.active = &session

	e.publishLocked(chat.Event{
		Kind:      chat.EventAppended,
		SessionID: session.ID,
		MessageID: assistant.ID,
		Messages:  []chat.Message{user, assistant},
	})

	e.log.WithField("session", session.ID).Debug("[transcript] session started")
	return session, nil
}

func (e *Engine) run(ctx context.Context, session chat.StreamSession) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := e.stream(ctx, session)
	e.finish(session, err)
}

func (e *Engine) stream(ctx context.Context, session chat.StreamSession) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream source panicked: %v", r)
		}
	}()

	return e.source.Stream(ctx, session.Prompt, func(chunk string) error {
		return e.appendChunk(session, chunk)
	})
}

// appendChunk folds one fragment into the session's assistant entry. Calls
// arriving after the session was finalized are dropped.
func (e *Engine) appendChunk(session chat.StreamSession, chunk string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil || e.active.ID != session.ID {
		return ErrSessionClosed
	}
	if chunk == "" {
		return nil
	}

	idx := e.index[session.AssistantMessageID]
	e.messages[idx].Content += chunk

	e.publishLocked(chat.Event{
		Kind:      chat.EventDelta,
		SessionID: session.ID,
		MessageID: session.AssistantMessageID,
		Delta:     chunk,
		Content:   e.messages[idx].Content,
	})
	return nil
}

func (e *Engine) finish(session chat.StreamSession, streamErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.log.WithField("session", session.ID)
	idx := e.index[session.AssistantMessageID]
	failed := streamErr != nil

	if failed {
		log.WithError(streamErr).Warn("[transcript] stream failed, replacing reply with error marker")
		e.messages[idx].Content = chat.ErrorMarker
		e.publishLocked(chat.Event{
			Kind:      chat.EventReplaced,
			SessionID: session.ID,
			MessageID: session.AssistantMessageID,
			Content:   chat.ErrorMarker,
			Failed:    true,
		})
	}

	e.state = chat.StateIdle
	e.active = nil

	e.publishLocked(chat.Event{
		Kind:      chat.EventIdle,
		SessionID: session.ID,
		MessageID: session.AssistantMessageID,
		Content:   e.messages[idx].Content,
		Failed:    failed,
	})

	log.WithFields(logrus.Fields{
		"length":  len(e.messages[idx].Content),
		"elapsed": time.Since(session.StartedAt).Round(time.Millisecond),
	}).Info("[transcript] session finished")
}

func (e *Engine) newIDLocked(role chat.Role) string {
	for {
		id := string(role) + "-" + uuid.NewString()
		if _, taken := e.index[id]; !taken {
			return id
		}
	}
}

func (e *Engine) appendLocked(msg chat.Message) {
	e.index[msg.ID] = len(e.messages)
	e.messages = append(e.messages, msg)
}

func (e *Engine) publishLocked(ev chat.Event) {
	e.version++
	ev.Version = e.version
	ev.State = e.state
	e.broker.publish(ev)
}

func (e *Engine) snapshotLocked() []chat.Message {
	copied := make([]chat.Message, len(e.messages))
	copy(copied, e.messages)
	return copied
}
