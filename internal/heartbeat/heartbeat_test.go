package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slacklog/internal/eventbus"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

type countingSender struct {
	mu  sync.Mutex
	n   int
	err error
}

func (c *countingSender) Send(context.Context, slacklog.Payload, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.err
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestFireSendsThroughPipeline(t *testing.T) {
	t.Parallel()
	sender := &countingSender{}
	p := &slacklog.Pipeline{Formatter: slacklog.Plain(), Sender: sender}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	s := New(func() *slacklog.Pipeline { return p }, bus, logx.Nop())
	require.NoError(t, s.Start(context.Background(), Config{Message: "alive", Level: slacklog.LevelWarn}))

	require.NoError(t, s.Fire(context.Background()))
	assert.Equal(t, 1, sender.count())
	assert.Equal(t, eventbus.TypeHeartbeat, (<-ch).Type)

	r := s.Record(time.Now())
	assert.Equal(t, "alive", r.Message)
	assert.Equal(t, slacklog.LevelWarn, r.Level)
	assert.Equal(t, "heartbeat", r.Logger)
	assert.Contains(t, r.ExtraFields, "uptime")
}

func TestFireDefaultsAndErrors(t *testing.T) {
	t.Parallel()
	s := New(func() *slacklog.Pipeline { return nil }, nil, logx.Nop())
	r := s.Record(time.Now())
	assert.Equal(t, slacklog.LevelInfo, r.Level)
	assert.Equal(t, "slackrelay heartbeat", r.Message)
	assert.Error(t, s.Fire(context.Background()))

	boom := errors.New("status 500")
	p := &slacklog.Pipeline{Sender: &countingSender{err: boom}}
	s = New(func() *slacklog.Pipeline { return p }, nil, logx.Nop())
	assert.ErrorIs(t, s.Fire(context.Background()), boom)
}

func TestStartValidatesAndSchedules(t *testing.T) {
	t.Parallel()
	sender := &countingSender{}
	p := &slacklog.Pipeline{Sender: sender}
	s := New(func() *slacklog.Pipeline { return p }, nil, logx.Nop())
	defer s.Stop()

	assert.Error(t, s.Start(context.Background(), Config{Enabled: true, Schedule: "whenever"}))
	assert.Error(t, s.Start(context.Background(), Config{Enabled: true, Schedule: "@daily", Timezone: "Mars/Olympus"}))

	require.NoError(t, s.Start(context.Background(), Config{Enabled: true, Schedule: "@every 1s"}))
	require.Eventually(t, func() bool { return sender.count() > 0 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Start(context.Background(), Config{Enabled: false}))
	n := sender.count()
	time.Sleep(1500 * time.Millisecond)
	assert.LessOrEqual(t, sender.count(), n+1)
}
