package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncOtpIssued("success")
	m.IncOtpIssued("success")
	m.IncVerification("mismatch")
	m.IncCaptcha()
	m.IncEscalation("locked")
	m.IncLogin("failure")
	m.IncAuditDropped()
	m.ObserveUpstream("identity", time.Now().Add(-time.Second))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OtpIssued.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OtpVerifications.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEventsDropped))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["portal_upstream_duration_seconds"])
	assert.True(t, names["portal_escalations_total"])
}

func TestNilRegistererDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		a := New(nil)
		b := New(nil)
		a.IncCaptcha()
		b.IncCaptcha()
	})
}
