package slacklog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	payload Payload
	target  string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *recordingSender) Send(_ context.Context, p Payload, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{payload: p, target: target})
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestPipelineTextPayloadWithoutFormatter(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	p := &Pipeline{Sender: s, Target: "https://hooks.example/x", MinLevel: LevelWarn}

	o, err := p.Process(context.Background(), Record{Level: LevelInfo, Message: "quiet"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, o)

	o, err = p.Process(context.Background(), Record{Level: LevelError, Message: "loud"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, o)
	require.Equal(t, 1, s.count())
	assert.Equal(t, Payload{Text: "loud"}, s.sent[0].payload)
	assert.Equal(t, "https://hooks.example/x", s.sent[0].target)
}

func TestPipelineRecordFilterContext(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	p := &Pipeline{
		Sender:  s,
		Filters: []Filter{NewFilter(FilterConfig{Environment: "test"}, AnyAllowList)},
	}
	ctx := context.Background()

	o, _ := p.Process(ctx, Record{Level: LevelWarn, Message: "a", Filter: map[string]string{"environment": "test"}})
	assert.Equal(t, OutcomeDelivered, o)
	o, _ = p.Process(ctx, Record{Level: LevelWarn, Message: "b", Filter: map[string]string{"environment": "dev"}})
	assert.Equal(t, OutcomeFiltered, o)
	o, _ = p.Process(ctx, Record{Level: LevelWarn, Message: "c"})
	assert.Equal(t, OutcomeDelivered, o, "records without a filter context are not filtered")
	assert.Equal(t, 2, s.count())
}

func TestPipelineFiltersOnFormatterConfiguration(t *testing.T) {
	t.Parallel()
	allowTest := []Filter{NewFilter(FilterConfig{Environment: "test"}, AnyAllowList)}

	inTest, err := Default(NewConfiguration(WithService("testrunner"), WithEnvironment("test")))
	require.NoError(t, err)
	inDev, err := Default(NewConfiguration(WithService("testrunner"), WithEnvironment("dev")))
	require.NoError(t, err)

	s := &recordingSender{}
	rec := Record{Level: LevelWarn, Message: "hello"}

	o, err := (&Pipeline{Formatter: inTest, Filters: allowTest, Sender: s}).Process(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, o)

	o, err = (&Pipeline{Formatter: inDev, Filters: allowTest, Sender: s}).Process(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFiltered, o)
	assert.Equal(t, 1, s.count())
}

func TestPipelineReturnsDeliveryErrorUnchanged(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var observed []Outcome
	p := &Pipeline{
		Formatter: Plain(),
		Sender:    &recordingSender{err: boom},
		Observer: func(_ Record, o Outcome, err error) {
			observed = append(observed, o)
		},
	}
	o, err := p.Process(context.Background(), Record{Level: LevelError, Message: "x"})
	assert.Same(t, boom, err)
	assert.Equal(t, OutcomeFailed, o)
	assert.Equal(t, []Outcome{OutcomeFailed}, observed)
}

func TestPipelineFormattingErrorsAreRaised(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	_, err := (&Pipeline{Formatter: Plain(), Sender: s}).Process(context.Background(), Record{Level: -5})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = (&Pipeline{Sender: s}).Process(context.Background(), Record{Level: -5})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, s.count())

	_, err = (&Pipeline{}).Process(context.Background(), Record{Level: LevelError, Message: "x"})
	assert.ErrorIs(t, err, ErrNoSender)

	o, err := (&Pipeline{Sender: s}).Process(context.Background(), Record{Level: LevelError})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, OutcomeFailed, o)
	assert.Zero(t, s.count())
}

func TestPipelineNegativeLevelIsNotSkipped(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	var observed []Outcome
	p := &Pipeline{
		Formatter: Plain(),
		Sender:    s,
		MinLevel:  LevelWarn,
		Observer:  func(_ Record, o Outcome, _ error) { observed = append(observed, o) },
	}
	o, err := p.Process(context.Background(), Record{Level: Level(-1), Message: "x"})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, OutcomeFailed, o)
	assert.Equal(t, []Outcome{OutcomeFailed}, observed)
	assert.Zero(t, s.count())
}

func TestPipelineConcurrentUse(t *testing.T) {
	t.Parallel()
	f, err := Default(NewConfiguration(WithService("svc"), WithExtraField("k", "v")))
	require.NoError(t, err)
	s := &recordingSender{}
	p := &Pipeline{Formatter: f, Sender: s, Filters: []Filter{HideByFields(map[string]string{"drop": "yes"})}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := Record{Level: LevelError, Message: "concurrent"}
			if i%2 == 0 {
				rec.Filter = map[string]string{"drop": "yes"}
			}
			_, _ = p.Process(context.Background(), rec)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, s.count())
}
