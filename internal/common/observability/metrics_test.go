package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teed-waitlist/internal/common/logger"
)

func TestObservability_RecordsAdminRequests(t *testing.T) {
	reg := promclient.NewRegistry()
	o := New("waitlist-test", reg, logger.NewTestLogger(t))
	defer o.Shutdown()

	o.RecordAdminRequest(context.Background(), "simulate", 200, 15*time.Millisecond)
	o.RecordAdminRequest(context.Background(), "simulate", 200, 5*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "admin_requests") {
			found = true
			require.NotEmpty(t, mf.GetMetric())
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "admin request counter exported")
}

func TestObservability_NoopIsSafe(t *testing.T) {
	o := NewNoop()
	assert.NotPanics(t, func() {
		o.RecordAdminRequest(context.Background(), "get", 500, time.Second)
		o.Shutdown()
	})
}
