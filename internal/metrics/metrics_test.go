package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || recordsTotal == nil || fallbacksTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetchLabelsStatus(t *testing.T) {
	before := testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics-test", "static", "error"))
	ObserveFetch("metrics-test", "static", true, time.Second)
	after := testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics-test", "static", "error"))
	if after-before != 1 {
		t.Fatalf("expected error fetch counter to grow by 1, got %f", after-before)
	}
}

func TestObserveRecordsAndFallback(t *testing.T) {
	ObserveRecords("metrics-records", 7)
	if val := testutil.ToFloat64(recordsTotal.WithLabelValues("metrics-records")); val != 7 {
		t.Errorf("expected 7 records, got %f", val)
	}

	before := testutil.ToFloat64(fallbacksTotal.WithLabelValues("category"))
	ObserveFallback("category")
	if val := testutil.ToFloat64(fallbacksTotal.WithLabelValues("category")); val-before != 1 {
		t.Errorf("expected fallback counter to grow by 1, got %f", val-before)
	}
}

func TestObserveCommit(t *testing.T) {
	ObserveCommit(42, nil)
	if val := testutil.ToFloat64(knowledgeBaseJobs); val != 42 {
		t.Errorf("expected gauge 42, got %f", val)
	}

	before := testutil.ToFloat64(commitsTotal.WithLabelValues("error"))
	ObserveCommit(0, errors.New("disk full"))
	if val := testutil.ToFloat64(commitsTotal.WithLabelValues("error")); val-before != 1 {
		t.Errorf("expected error commit counter to grow by 1, got %f", val-before)
	}
	if val := testutil.ToFloat64(knowledgeBaseJobs); val != 42 {
		t.Errorf("failed commit must not move the gauge, got %f", val)
	}
}
