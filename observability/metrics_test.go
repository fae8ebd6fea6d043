package observability

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestFactoringObserveCall(t *testing.T) {
	m := Factoring()
	before := testutil.ToFloat64(m.calls.WithLabelValues("completeBill", "ok"))
	m.ObserveCall("completeBill", "", 5*time.Millisecond)
	m.ObserveCall("completeBill", "insufficient_funds", time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.calls.WithLabelValues("completeBill", "ok")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.calls.WithLabelValues("completeBill", "insufficient_funds")), 1.0)
}

func TestFactoringPoolGauge(t *testing.T) {
	m := Factoring()
	m.SetPoolBalance(" usdc ", big.NewInt(360))
	require.Equal(t, 360.0, testutil.ToFloat64(m.pool.WithLabelValues("USDC")))

	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	m.SetPoolBalance("USDT", huge)
	require.Equal(t, math.MaxFloat64, testutil.ToFloat64(m.pool.WithLabelValues("USDT")))
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	beforeErr := testutil.ToFloat64(m.errors.WithLabelValues("factoring_acceptOffer", "-32001"))
	m.Observe("factoring_acceptOffer", -32001, time.Millisecond)
	m.Observe("factoring_acceptOffer", 0, time.Millisecond)
	require.Equal(t, beforeErr+1, testutil.ToFloat64(m.errors.WithLabelValues("factoring_acceptOffer", "-32001")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("factoring_acceptOffer", "success")), 1.0)

	m.RecordThrottle("")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")), 1.0)
}

func TestEventMetrics(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.published.WithLabelValues("factoring.bill.completed"))
	m.RecordPublished("factoring.bill.completed")
	require.Equal(t, before+1, testutil.ToFloat64(m.published.WithLabelValues("factoring.bill.completed")))
	m.SetSubscribers(3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.subscribers))
}
