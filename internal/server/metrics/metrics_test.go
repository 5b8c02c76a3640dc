package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndServe(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.Record(ctx, "login", OutcomeSuccess, 20*time.Millisecond)
	m.Record(ctx, "login", OutcomeSuccess, 30*time.Millisecond)
	m.Record(ctx, "login", OutcomeFailure, 3*time.Second)

	var dropped uint64 = 4
	require.NoError(t, m.ObserveAuditDropped(func() uint64 { return dropped }))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	body := rec.Body.String()
	assert.Contains(t, body, "# TYPE sso_operations_total counter")
	assert.Contains(t, body, `sso_operations_total{operation="login",outcome="success"} 2`)
	assert.Contains(t, body, `sso_operations_total{operation="login",outcome="failure"} 1`)
	assert.Contains(t, body, "# TYPE sso_operation_duration_seconds histogram")
	assert.Contains(t, body, `sso_operation_duration_seconds_bucket{operation="login",le="0.025"} 1`)
	assert.Contains(t, body, `sso_operation_duration_seconds_bucket{operation="login",le="+Inf"} 3`)
	assert.Contains(t, body, `sso_operation_duration_seconds_count{operation="login"} 3`)
	assert.Contains(t, body, "sso_audit_dropped_total 4")
}

func TestRecord_NilSafe(t *testing.T) {
	var m *Metrics
	m.Record(context.Background(), "login", OutcomeSuccess, time.Millisecond)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `a\\b\nc`, escapeHelp("a\\b\nc"))
	assert.Equal(t, `say \"hi\"`, escapeLabel(`say "hi"`))
}
