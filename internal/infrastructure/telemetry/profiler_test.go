package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartProfiler_Disabled(t *testing.T) {
	p, err := StartProfiler(ProfilerConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Running())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())

	var none *Profiler
	assert.False(t, none.Running())
	assert.NoError(t, none.Stop())
}

func TestStartProfiler_RequiresTarget(t *testing.T) {
	_, err := StartProfiler(ProfilerConfig{Enabled: true, ApplicationName: "webhook-gateway"}, zap.NewNop())
	assert.ErrorContains(t, err, "server address")

	_, err = StartProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, zap.NewNop())
	assert.ErrorContains(t, err, "application name")
}

func labelsOf(ctx context.Context) map[string]string {
	got := map[string]string{}
	pprof.ForLabels(ctx, func(k, v string) bool {
		got[k] = v
		return true
	})
	return got
}

func TestLabeled(t *testing.T) {
	long := strings.Repeat("x", maxLabelValue+10)
	var got map[string]string

	Labeled(context.Background(), func(ctx context.Context) { got = labelsOf(ctx) },
		LabelHandler, "order.create",
		LabelSender, long,
		LabelRoute, "",
		"dangling",
	)

	assert.Equal(t, "order.create", got[LabelHandler])
	assert.Len(t, got[LabelSender], maxLabelValue)
	assert.NotContains(t, got, LabelRoute)
	assert.NotContains(t, got, "dangling")
}

func TestLabeled_NoLabels(t *testing.T) {
	called := false
	Labeled(context.Background(), func(ctx context.Context) {
		called = true
		assert.Empty(t, labelsOf(ctx))
	})
	assert.True(t, called)
}
