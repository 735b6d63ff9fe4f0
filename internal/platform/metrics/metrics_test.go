package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simple-chat/internal/channel"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ChannelCalls(t *testing.T) {
	m := New()
	m.ObserveChannelCall("send_message", nil, time.Millisecond)
	m.ObserveChannelCall("send_message", channel.ErrUnavailable, time.Millisecond)
	m.ObserveChannelCall("send_message", context.DeadlineExceeded, time.Millisecond)
	m.ObserveChannelCall("send_message", errors.New("boom"), time.Millisecond)

	for _, result := range []string{"ok", "unavailable", "timeout", "error"} {
		got := testutil.ToFloat64(m.channelCalls.WithLabelValues("send_message", result))
		assert.Equal(t, 1.0, got, "result=%s", result)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.PersistFailure()
	m.Reconciled(3)
	m.Reconciled(0)
	m.ObserveHTTP(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconciled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.PersistFailure()
	m.Reconciled(1)
	m.ObserveHTTP("GET", "/x", 200, time.Second)
	m.ObserveChannelCall("op", nil, time.Second)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PersistFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "simple_chat_message_persist_failures_total 1"))
}
