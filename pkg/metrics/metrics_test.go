package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observer(t *testing.T) {
	m := New()
	ctx := context.Background()

	started := time.Now().UTC()
	finished := started.Add(2 * time.Second)

	execution := &models.Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     models.ExecutionStatusPartial,
		StepResults: []models.StepResult{
			{ActionKind: "send_email", Outcome: models.StepOutcomeSuccess},
			{ActionKind: "create_task", Outcome: models.StepOutcomeFailed},
		},
	}

	m.ExecutionStarted(ctx, execution)
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeExecutions), 0)

	m.ExecutionFinished(ctx, execution)

	assert.InDelta(t, 0, testutil.ToFloat64(m.activeExecutions), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executionsStarted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executionsFinished.WithLabelValues("PARTIAL")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stepsTotal.WithLabelValues("create_task", "FAILED")), 0)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ExecutionStarted(context.Background(), &models.Execution{})

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "matterflow_executions_started_total 1")
}
