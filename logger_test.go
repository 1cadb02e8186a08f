package cthyb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	l.WithRun("run-1").WithChain(2).LogChainDone(ctx, 10, 0.5, true, nil)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "chain completed", rec["msg"])
	assert.Equal(t, "run-1", rec["run"])
	assert.Equal(t, 2.0, rec["chain"])
	assert.Equal(t, true, rec["interrupted"])

	buf.Reset()
	l.LogSolveDone(ctx, 0, 0, time.Second, errors.New("boom"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["error"])

	buf.Reset()
	NoopLogger().LogSolveStart(ctx, 1, 1, 1, 1)
	assert.Zero(t, buf.Len())
}
