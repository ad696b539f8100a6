package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

func TestClientPostsBlocks(t *testing.T) {
	t.Parallel()
	var (
		gotBody        map[string]any
		gotType, gotUA string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{UserAgent: "tests"})
	defer c.Close()

	p := slacklog.Payload{Blocks: []slacklog.Block{slacklog.Header("h"), slacklog.Divider()}}
	require.NoError(t, c.Send(context.Background(), p, srv.URL+"/services/T/B/X"))

	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "tests", gotUA)
	blocks, ok := gotBody["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 2)
}

func TestClientNonSuccessStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid_blocks"))
	}))
	defer srv.Close()

	err := New(Config{}).Send(context.Background(), slacklog.Payload{Text: "x"}, srv.URL+"/secret/path")
	require.Error(t, err)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindStatus, de.Kind)
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)
	assert.Equal(t, "invalid_blocks", de.Body)
	assert.NotContains(t, err.Error(), "secret")
}

func TestClientNetworkFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := New(Config{Timeout: 20 * time.Millisecond}).Send(context.Background(), slacklog.Payload{Text: "x"}, srv.URL)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestClientRejectsBadTargets(t *testing.T) {
	t.Parallel()
	c := New(Config{})
	for _, target := range []string{"", "   ", "hooks.slack.com/services/x", "ftp://example.com/x", "https://"} {
		err := c.Send(context.Background(), slacklog.Payload{Text: "x"}, target)
		assert.Equal(t, KindDestination, KindOf(err), "target %q", target)
	}
	assert.ErrorIs(t, c.Send(context.Background(), slacklog.Payload{}, ""), ErrEmptyTarget)
}

func TestDummyRecordsPayloads(t *testing.T) {
	t.Parallel()
	d := NewDummy(logx.Nop())
	for i := 0; i < dummyKeep+3; i++ {
		require.NoError(t, d.Send(context.Background(), slacklog.Payload{Text: "n"}, ""))
	}
	sent := d.Sent()
	assert.Len(t, sent, dummyKeep)
	assert.True(t, strings.Contains(sent[0], `"text":"n"`))
}
