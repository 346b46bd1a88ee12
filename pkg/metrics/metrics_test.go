package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestIngestMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)
	m.IncProcessed("visual")
	m.IncProcessed("visual")
	m.IncFailed("audio")
	m.ObserveJobDuration("completed", 3*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ingest_units_processed", "modality", "visual"); err != nil {
		t.Fatalf("fetch processed: %v", err)
	} else if got != 2 {
		t.Fatalf("expected processed=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "ingest_units_failed", "modality", "audio"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "ingest_job_duration_seconds", "outcome", "completed"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestModelCallMetricsNormalizesEmptyLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewModelCallMetrics(reg)
	m.ObserveDuration("", 100*time.Millisecond)
	m.IncFailure("vlm")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if _, err := fetchHistogramSum(mfs, "model_call_duration_seconds", "collaborator", "unknown"); err != nil {
		t.Fatalf("empty collaborator should map to unknown: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "model_call_failure", "collaborator", "vlm"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
}

func TestSearchMetricsNilReceiverIsNoop(t *testing.T) {
	var m *SearchMetrics
	m.ObserveSearch("global", time.Second, 5)

	unregistered := &SearchMetrics{}
	unregistered.ObserveSearch("video", time.Second, 3)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
