package sweep

import (
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCronLogger_PanicsGoToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := cronLogger{zap.New(core).Sugar()}

	job := cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(func() { panic("boom") }))
	require.NotPanics(t, job.Run)

	entries := logs.FilterMessage("panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["error"], "boom")
}
