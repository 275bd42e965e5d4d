package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionMetricsExposed(t *testing.T) {
	tel, err := Setup(Options{ServiceName: "adichat-test"})
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(context.Background()) }()

	tel.Metrics.RecordCompletion(context.Background(), OutcomeOK, 120*time.Millisecond)
	tel.Metrics.RecordCompletion(context.Background(), OutcomeFailed, time.Second)

	w := httptest.NewRecorder()
	tel.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "chat_completions_total")
	assert.Contains(t, body, `outcome="ok"`)
	assert.Contains(t, body, "chat_completion_duration_seconds")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCompletion(context.Background(), OutcomeOK, time.Second)
	})
}
