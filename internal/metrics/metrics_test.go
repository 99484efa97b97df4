package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || blockedRecoveriesTotal == nil ||
		runsTotal == nil || itemsTotal == nil || runDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestAccessorsLazyInit(t *testing.T) {
	Fetches().WithLabelValues("ok").Add(0)
	Runs().WithLabelValues("complete").Add(0)
	Items().WithLabelValues("active").Add(0)
	BlockedRecoveries().Add(0)
	ActiveFetches().Set(0)

	if val := testutil.ToFloat64(ActiveFetches()); val != 0 {
		t.Errorf("expected gauge 0, got %f", val)
	}
}
