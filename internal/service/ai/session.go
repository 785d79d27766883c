package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"gymchat/internal/models"
	"gymchat/internal/redis"
	"gymchat/internal/worker"
)

var (
	ErrAIDisabled    = errors.New("ai service disabled: api key missing")
	ErrAIUnavailable = errors.New("ai service unavailable: backend failed to initialize")
	ErrEmptyTurn     = errors.New("turn has no parts")
	ErrEmptyReply    = errors.New("model returned an empty reply")
	ErrSessionBusy   = errors.New("session busy")
)

// ChatModel is the part of an eino chat model the session needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type ManagerConfig struct {
	Model             ChatModel
	SystemInstruction string
	Workers           *worker.Manager
	Cache             *redis.Client
	CacheTTL          time.Duration
}

// session is one logical conversation. history is only appended to from the
// worker goroutine that owns the session id.
type session struct {
	mu         sync.RWMutex
	id         string
	createdAt  time.Time
	updatedAt  time.Time
	history    []*schema.Message
	transcript []models.TranscriptEntry
}

// Manager owns conversations keyed by session id. Sends for one session run
// one at a time on that session's worker, so turns never interleave.
// Every caller using the same id shares one conversation.
type Manager struct {
	model   ChatModel
	system  string
	workers *worker.Manager
	cache   *historyCache

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Model == nil {
		return nil, errors.New("chat model required")
	}
	workers := cfg.Workers
	if workers == nil {
		workers = worker.NewManager(worker.DefaultQueueLen)
	}
	var cache *historyCache
	if cfg.Cache != nil {
		cache = newHistoryCache(cfg.Cache, cfg.CacheTTL)
	}
	return &Manager{
		model:    cfg.Model,
		system:   strings.TrimSpace(cfg.SystemInstruction),
		workers:  workers,
		cache:    cache,
		sessions: make(map[string]*session),
	}, nil
}

// Ready reports whether sends can succeed.
func (m *Manager) Ready() error {
	return nil
}

// Send submits turn to the conversation identified by sessionID and returns
// the reply. On success both the turn and the reply join the history.
func (m *Manager) Send(ctx context.Context, sessionID string, turn *models.ChatTurn) (string, error) {
	if turn.Empty() {
		return "", ErrEmptyTurn
	}
	if sessionID == "" {
		sessionID = models.DefaultSessionID
	}

	var (
		reply   string
		sendErr error
	)
	err := m.workers.Do(ctx, sessionID, func(ctx context.Context) {
		// once started, a send finishes even if the caller goes away
		reply, sendErr = m.send(context.WithoutCancel(ctx), m.session(sessionID), turn)
	})
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			return "", fmt.Errorf("%w: %w", ErrSessionBusy, err)
		}
		return "", err
	}
	return reply, sendErr
}

func (m *Manager) send(ctx context.Context, se *session, turn *models.ChatTurn) (string, error) {
	msg, err := turnToMessage(turn)
	if err != nil {
		return "", err
	}

	se.mu.RLock()
	input := make([]*schema.Message, 0, len(se.history)+2)
	if m.system != "" {
		input = append(input, schema.SystemMessage(m.system))
	}
	input = append(input, se.history...)
	se.mu.RUnlock()
	input = append(input, msg)

	resp, err := m.model.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	reply := resp.Content

	now := time.Now().UTC()
	se.mu.Lock()
	se.history = append(se.history, msg, schema.AssistantMessage(reply, nil))
	se.transcript = append(se.transcript,
		models.TranscriptEntry{Role: models.RoleUser, Text: turn.Text(), Files: turn.FileNames(), CreatedAt: now},
		models.TranscriptEntry{Role: models.RoleAssistant, Text: reply, CreatedAt: now},
	)
	se.updatedAt = now
	se.mu.Unlock()

	m.cache.cacheSession(ctx, se.info())
	return reply, nil
}

// History returns the transcript of sessionID, falling back to the redis
// mirror when the session is not held in memory.
func (m *Manager) History(ctx context.Context, sessionID string) (*models.SessionInfo, bool) {
	if sessionID == "" {
		sessionID = models.DefaultSessionID
	}
	m.mu.Lock()
	se, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return se.info(), true
	}
	return m.cache.loadSession(ctx, sessionID)
}

// Reset drops the conversation for sessionID. It is queued behind any
// in-flight sends for the same session.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = models.DefaultSessionID
	}
	err := m.workers.Do(ctx, sessionID, func(context.Context) {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
	})
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			return fmt.Errorf("%w: %w", ErrSessionBusy, err)
		}
		return err
	}
	m.cache.invalidate(ctx, sessionID)
	return nil
}

// Close stops the session workers.
func (m *Manager) Close() {
	m.workers.StopAll()
}

func (m *Manager) session(sessionID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if se, ok := m.sessions[sessionID]; ok {
		return se
	}
	now := time.Now().UTC()
	se := &session{id: sessionID, createdAt: now, updatedAt: now}
	m.sessions[sessionID] = se
	return se
}

func (s *session) info() *models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]models.TranscriptEntry, len(s.transcript))
	copy(entries, s.transcript)
	return &models.SessionInfo{
		ID:        s.id,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
		Entries:   entries,
	}
}

// DisabledSession stands in for the manager when no AI backend is available.
// Err is the reason reported to callers and defaults to ErrAIDisabled.
type DisabledSession struct {
	Err error
}

func (s DisabledSession) Ready() error {
	if s.Err == nil {
		return ErrAIDisabled
	}
	return s.Err
}

func (s DisabledSession) Send(context.Context, string, *models.ChatTurn) (string, error) {
	return "", s.Ready()
}

func (DisabledSession) History(context.Context, string) (*models.SessionInfo, bool) {
	return nil, false
}

func (DisabledSession) Reset(context.Context, string) error {
	return nil
}
