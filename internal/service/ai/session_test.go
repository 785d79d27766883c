package ai

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymchat/internal/config"
	"gymchat/internal/models"
	"gymchat/internal/redis"
	"gymchat/internal/worker"
)

type fakeModel struct {
	mu     sync.Mutex
	calls  [][]*schema.Message
	reply  func(call int, input []*schema.Message) (string, error)
	active int
	peak   int
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, input)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.reply == nil {
		return schema.AssistantMessage("reply "+strconv.Itoa(call), nil), nil
	}
	text, err := f.reply(call, input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

func textTurn(text string) *models.ChatTurn {
	turn := &models.ChatTurn{}
	turn.AddText(text)
	return turn
}

func newTestManager(t *testing.T, fm *fakeModel) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{Model: fm, SystemInstruction: "be a trainer"})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestSendCarriesHistory(t *testing.T) {
	fm := &fakeModel{}
	m := newTestManager(t, fm)
	ctx := context.Background()

	reply, err := m.Send(ctx, "s1", textTurn("hello"))
	require.NoError(t, err)
	assert.Equal(t, "reply 0", reply)

	reply, err = m.Send(ctx, "s1", textTurn("again"))
	require.NoError(t, err)
	assert.Equal(t, "reply 1", reply)

	require.Len(t, fm.calls, 2)
	second := fm.calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, schema.System, second[0].Role)
	assert.Equal(t, "be a trainer", second[0].Content)
	assert.Equal(t, "hello", second[1].Content)
	assert.Equal(t, schema.Assistant, second[2].Role)
	assert.Equal(t, "reply 0", second[2].Content)
	assert.Equal(t, "again", second[3].Content)

	info, ok := m.History(ctx, "s1")
	require.True(t, ok)
	require.Len(t, info.Entries, 4)
	assert.Equal(t, models.RoleUser, info.Entries[0].Role)
	assert.Equal(t, "again", info.Entries[2].Text)
	assert.Equal(t, models.RoleAssistant, info.Entries[3].Role)
}

func TestSessionsAreIsolated(t *testing.T) {
	fm := &fakeModel{}
	m := newTestManager(t, fm)
	ctx := context.Background()

	_, err := m.Send(ctx, "a", textTurn("one"))
	require.NoError(t, err)
	_, err = m.Send(ctx, "b", textTurn("two"))
	require.NoError(t, err)

	// system + user only; nothing from session a leaks into b
	require.Len(t, fm.calls[1], 2)
	assert.Equal(t, "two", fm.calls[1][1].Content)
}

func TestEmptySessionIDUsesDefault(t *testing.T) {
	m := newTestManager(t, &fakeModel{})
	_, err := m.Send(context.Background(), "", textTurn("hi"))
	require.NoError(t, err)

	info, ok := m.History(context.Background(), models.DefaultSessionID)
	require.True(t, ok)
	assert.Len(t, info.Entries, 2)
}

func TestSendEmptyTurn(t *testing.T) {
	fm := &fakeModel{}
	m := newTestManager(t, fm)

	_, err := m.Send(context.Background(), "s", &models.ChatTurn{})
	assert.ErrorIs(t, err, ErrEmptyTurn)
	assert.Empty(t, fm.calls)
}

func TestFailedSendLeavesHistoryUntouched(t *testing.T) {
	boom := errors.New("quota exceeded")
	fm := &fakeModel{reply: func(call int, _ []*schema.Message) (string, error) {
		switch call {
		case 0:
			return "", boom
		case 1:
			return "   ", nil
		}
		return "ok", nil
	}}
	m := newTestManager(t, fm)
	ctx := context.Background()

	_, err := m.Send(ctx, "s", textTurn("first"))
	assert.ErrorIs(t, err, boom)
	_, err = m.Send(ctx, "s", textTurn("second"))
	assert.ErrorIs(t, err, ErrEmptyReply)

	reply, err := m.Send(ctx, "s", textTurn("third"))
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	// only the system instruction precedes the third turn
	assert.Len(t, fm.calls[2], 2)
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	fm := &fakeModel{reply: func(int, []*schema.Message) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	}}
	m := newTestManager(t, fm)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Send(context.Background(), "shared", textTurn("msg "+strconv.Itoa(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fm.peak)
	info, ok := m.History(context.Background(), "shared")
	require.True(t, ok)
	require.Len(t, info.Entries, 16)
	for i := 0; i < len(info.Entries); i += 2 {
		assert.Equal(t, models.RoleUser, info.Entries[i].Role)
		assert.Equal(t, models.RoleAssistant, info.Entries[i+1].Role)
	}
	// each call saw every earlier pair
	for i, call := range fm.calls {
		assert.Len(t, call, 2+2*i)
	}
}

func TestSendBusySession(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fm := &fakeModel{reply: func(int, []*schema.Message) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "ok", nil
	}}
	m, err := NewManager(ManagerConfig{Model: fm, Workers: worker.NewManager(1)})
	require.NoError(t, err)
	defer m.Close()

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "s", textTurn("first"))
		done <- err
	}()
	<-started

	// the first attempt takes the only queue slot and times out waiting;
	// later attempts find the queue full
	var busy error
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, busy = m.Send(ctx, "s", textTurn("overflow"))
		return errors.Is(busy, ErrSessionBusy)
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, busy, worker.ErrQueueFull)

	close(release)
	assert.NoError(t, <-done)
	assert.Len(t, fm.calls, 1)
}

func TestSendWithFileParts(t *testing.T) {
	fm := &fakeModel{}
	m := newTestManager(t, fm)

	turn := &models.ChatTurn{}
	turn.AddText("check my form")
	turn.AddFile(&models.FileReference{Name: "files/1", URI: "https://example/files/1", MIMEType: "image/png", DisplayName: "squat.png"})

	_, err := m.Send(context.Background(), "s", turn)
	require.NoError(t, err)

	msg := fm.calls[0][1]
	require.Len(t, msg.MultiContent, 2)
	assert.Equal(t, schema.ChatMessagePartTypeText, msg.MultiContent[0].Type)
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, msg.MultiContent[1].Type)

	info, _ := m.History(context.Background(), "s")
	assert.Equal(t, []string{"squat.png"}, info.Entries[0].Files)
}

func TestReset(t *testing.T) {
	m := newTestManager(t, &fakeModel{})
	ctx := context.Background()

	_, err := m.Send(ctx, "s", textTurn("hi"))
	require.NoError(t, err)
	require.NoError(t, m.Reset(ctx, "s"))

	_, ok := m.History(ctx, "s")
	assert.False(t, ok)
}

func TestNewManagerRequiresModel(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	assert.Error(t, err)
}

func TestDisabledSession(t *testing.T) {
	var s DisabledSession
	assert.ErrorIs(t, s.Ready(), ErrAIDisabled)
	_, err := s.Send(context.Background(), "s", textTurn("hi"))
	assert.ErrorIs(t, err, ErrAIDisabled)
	_, ok := s.History(context.Background(), "s")
	assert.False(t, ok)
}

func TestDisabledSessionReportsReason(t *testing.T) {
	s := DisabledSession{Err: ErrAIUnavailable}
	assert.ErrorIs(t, s.Ready(), ErrAIUnavailable)
	assert.NotErrorIs(t, s.Ready(), ErrAIDisabled)
	_, err := s.Send(context.Background(), "s", textTurn("hi"))
	assert.ErrorIs(t, err, ErrAIUnavailable)
}

func TestNewBackendDisabled(t *testing.T) {
	_, err := NewBackend(context.Background(), config.AIConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, ErrAIDisabled)
}

func TestNewBackendUnknownProvider(t *testing.T) {
	_, err := NewBackend(context.Background(), config.AIConfig{Provider: "llama", APIKey: "k"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid provider"))
}

func TestHistoryMirroredToRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	host, portStr, ok := strings.Cut(addr, ":")
	require.True(t, ok, "TEST_REDIS_ADDR must be host:port")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := redis.NewRedisClient(config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	sessionID := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	m, err := NewManager(ManagerConfig{Model: &fakeModel{}, Cache: client, CacheTTL: time.Minute})
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	_, err = m.Send(ctx, sessionID, textTurn("hi"))
	require.NoError(t, err)

	// a fresh manager only sees the redis copy
	other, err := NewManager(ManagerConfig{Model: &fakeModel{}, Cache: client})
	require.NoError(t, err)
	defer other.Close()

	info, ok := other.History(ctx, sessionID)
	require.True(t, ok)
	require.Len(t, info.Entries, 2)
	assert.Equal(t, "hi", info.Entries[0].Text)

	require.NoError(t, m.Reset(ctx, sessionID))
	_, ok = other.History(ctx, sessionID)
	assert.False(t, ok)
}
