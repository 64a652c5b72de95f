package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	finished := time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)

	metrics.ObserveJob("seller-payouts", 250*time.Millisecond, finished, nil)
	metrics.ObserveJob("seller-payouts", time.Second, finished.Add(time.Hour), errors.New("transfer declined"))
	metrics.ObserveJob("", time.Millisecond, finished, nil)
	metrics.IncLockSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := runCount(mfs, "seller-payouts", "succeeded"); got != 1 {
		t.Fatalf("expected one succeeded seller-payouts run, got %f", got)
	}
	if got := runCount(mfs, "seller-payouts", "failed"); got != 1 {
		t.Fatalf("expected one failed seller-payouts run, got %f", got)
	}
	if got := runCount(mfs, "unknown", "succeeded"); got != 1 {
		t.Fatalf("expected empty job name to be labelled unknown, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "escrow_cron_job_duration_seconds", "job", "seller-payouts"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f", got)
	}
	if got, err := fetchGaugeValue(mfs, "escrow_cron_job_last_success_timestamp_seconds", "job", "seller-payouts"); err != nil {
		t.Fatalf("fetch last success: %v", err)
	} else if int64(got) != finished.Unix() {
		t.Fatalf("failed run must not move the last success gauge, got %f", got)
	}
	if _, err := fetchGaugeValue(mfs, "escrow_cron_job_last_success_timestamp_seconds", "job", "unknown"); err != nil {
		t.Fatalf("empty job names should be labelled unknown: %v", err)
	}
	if mf := findMetricFamily(mfs, "escrow_cron_lock_skipped_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one lock skip")
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var metrics *CronJobMetrics
	metrics.ObserveJob("settlement-close", time.Second, time.Now(), nil)
	metrics.IncLockSkipped()
	NewCronJobMetrics(nil).ObserveJob("settlement-close", time.Second, time.Now(), nil)
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

func runCount(mfs []*dto.MetricFamily, job, outcome string) float64 {
	mf := findMetricFamily(mfs, "escrow_cron_job_runs_total")
	if mf == nil {
		return 0
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "job", job) && matchesLabel(metric.GetLabel(), "outcome", outcome) {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetGauge().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("gauge %q missing label %s=%s", name, label, value)
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
