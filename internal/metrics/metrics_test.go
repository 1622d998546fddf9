package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue はレジストリから指定メトリクスのカウンタ値を取得する。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected 1 metric for %s, got %d", name, len(mf.GetMetric()))
			}
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordIngestSuccess_IncrementsCounter は取り込み成功カウンタが増加することを検証する。
func TestRecordIngestSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestSuccess("source-1")
	c.RecordIngestSuccess("source-1")

	if val := counterValue(t, reg, "sheetgate_ingest_success_total"); val != 2 {
		t.Errorf("ingest_success_total = %v, want 2", val)
	}
}

// TestRecordIngestFailure_IncrementsCounterWithReason は取り込み失敗カウンタが
// 原因ラベル付きで増加することを検証する。
func TestRecordIngestFailure_IncrementsCounterWithReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestFailure("source-1", "NETWORK_ERROR")
	c.RecordIngestFailure("source-2", "NETWORK_ERROR")
	c.RecordIngestFailure("source-3", "NOT_SPREADSHEET")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "sheetgate_ingest_fail_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "NETWORK_ERROR":
					if val != 2 {
						t.Errorf("ingest_fail_total{reason=NETWORK_ERROR} = %v, want 2", val)
					}
				case "NOT_SPREADSHEET":
					if val != 1 {
						t.Errorf("ingest_fail_total{reason=NOT_SPREADSHEET} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("sheetgate_ingest_fail_total metric not found")
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "sheetgate_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("sheetgate_http_status_total metric not found")
	}
}

// TestRecordIngestLatency_ObservesHistogram は取り込みレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordIngestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestLatency(100 * time.Millisecond)
	c.RecordIngestLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "sheetgate_ingest_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("sheetgate_ingest_latency_seconds metric not found")
	}
}

// TestRecordRowsIngested_IncrementsCounter は取り込み行数カウンタが増加することを検証する。
func TestRecordRowsIngested_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRowsIngested(10)
	c.RecordRowsIngested(5)

	if val := counterValue(t, reg, "sheetgate_rows_ingested_total"); val != 15 {
		t.Errorf("rows_ingested_total = %v, want 15", val)
	}
}

// TestRecordAuthCounters は認証成功・失敗・ロックアウトの各カウンタが増加することを検証する。
func TestRecordAuthCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthSuccess("gate-1")
	c.RecordAuthFailure("gate-1")
	c.RecordAuthFailure("gate-1")
	c.RecordAuthFailure("gate-2")
	c.RecordLockout("gate-1")

	if val := counterValue(t, reg, "sheetgate_auth_success_total"); val != 1 {
		t.Errorf("auth_success_total = %v, want 1", val)
	}
	if val := counterValue(t, reg, "sheetgate_auth_fail_total"); val != 3 {
		t.Errorf("auth_fail_total = %v, want 3", val)
	}
	if val := counterValue(t, reg, "sheetgate_auth_lockout_total"); val != 1 {
		t.Errorf("auth_lockout_total = %v, want 1", val)
	}
}
