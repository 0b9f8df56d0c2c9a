package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPromIndicators(t *testing.T) {
	reg := prometheus.NewRegistry()
	ind := NewPromIndicators(reg)

	ind.ObserveOperation("usdc", "DEPOSIT", nil, time.Millisecond)
	ind.ObserveOperation("usdc", "DEPOSIT", errors.New("boom"), time.Millisecond)
	ind.ObserveOperation("usdc", "DEPOSIT", nil, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(ind.operationsTotal.WithLabelValues("usdc", "DEPOSIT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ind.operationsTotal.WithLabelValues("usdc", "DEPOSIT", "error")))

	ind.SetTotalSupply("usdc", 1000)
	assert.Equal(t, 1000.0, testutil.ToFloat64(ind.totalSupply.WithLabelValues("usdc")))

	ind.ObserveYield("usdc", "price", 0.05)
	assert.Equal(t, 0.05, testutil.ToFloat64(ind.lastYield.WithLabelValues("usdc", "price")))

	ind.IncrementCycles("ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(ind.cyclesTotal.WithLabelValues("ok")))
}
