package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/matterflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer

	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestAction_Metadata(t *testing.T) {
	action := NewAction(slog.Default())

	assert.Equal(t, Kind, action.Kind())
	assert.Equal(t, "Log", action.Name())
	assert.NotEmpty(t, action.Description())
	assert.Equal(t, []string{"message"}, action.Schema()["required"])
}

func TestAction_Invoke(t *testing.T) {
	tests := []struct {
		name          string
		params        map[string]any
		expectedLevel string
	}{
		{"default level", map[string]any{"message": "matter created"}, "INFO"},
		{"error level", map[string]any{"message": "matter created", "level": "error"}, "ERROR"},
		{"debug level", map[string]any{"message": "matter created", "level": "DEBUG"}, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			action := NewAction(logger)

			outcome, err := action.Invoke(context.Background(), tt.params, &protocol.ActionContext{
				ExecutionID: "exec-1",
				WorkflowID:  "wf-1",
			})
			require.NoError(t, err)
			assert.True(t, outcome.Success)
			assert.Equal(t, "matter created", outcome.Output["message"])
			assert.Equal(t, tt.expectedLevel, outcome.Output["level"])

			assert.Contains(t, buf.String(), "matter created")
			assert.Contains(t, buf.String(), "execution_id=exec-1")
		})
	}
}

func TestAction_Invoke_PrefersContextLogger(t *testing.T) {
	fallback, fallbackBuf := newBufferedLogger()
	scoped, scopedBuf := newBufferedLogger()

	_, err := NewAction(fallback).Invoke(context.Background(), map[string]any{"message": "hello"}, &protocol.ActionContext{Logger: scoped})
	require.NoError(t, err)

	assert.Empty(t, fallbackBuf.String())
	assert.Contains(t, scopedBuf.String(), "hello")
}

func TestAction_Invoke_MissingMessage(t *testing.T) {
	_, err := NewAction(slog.Default()).Invoke(context.Background(), map[string]any{}, &protocol.ActionContext{})
	require.ErrorIs(t, err, ErrMessageRequired)
}
