package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"quill/internal/quill"
)

func TestCollector_BackupFinished(t *testing.T) {
	c := NewCollector()

	c.BackupFinished(quill.Result{Kind: quill.KindStage, Success: true, Filename: "backup_stage_x.zip", Size: 2048, Duration: time.Second})
	c.BackupFinished(quill.Result{Kind: quill.KindStage, Success: true, Skipped: true})
	c.BackupFinished(quill.Result{Kind: quill.KindArchive})

	tests := []struct {
		kind, result string
		want         float64
	}{
		{"stage", "success", 1},
		{"stage", "skipped", 1},
		{"archive", "failure", 1},
		{"snapshot", "success", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.backupsTotal.WithLabelValues(tt.kind, tt.result))
		if got != tt.want {
			t.Errorf("backups_total{%s,%s} = %v, want %v", tt.kind, tt.result, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(c.artifactBytes.WithLabelValues("stage")); got != 2048 {
		t.Errorf("artifact_bytes{stage} = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(c.lastSuccess.WithLabelValues("stage")); got == 0 {
		t.Error("last_success{stage} not set")
	}
}

func TestCollector_RestoreFinished(t *testing.T) {
	c := NewCollector()

	c.RestoreFinished(quill.RestoreResult{Success: true, Rollback: quill.RollbackNone, ChaptersRestored: 3})
	c.RestoreFinished(quill.RestoreResult{Rollback: quill.RollbackFull})
	c.RestoreFinished(quill.RestoreResult{})

	if got := testutil.ToFloat64(c.restoresTotal.WithLabelValues("success", "none")); got != 1 {
		t.Errorf("restores_total{success,none} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.restoresTotal.WithLabelValues("failure", "full")); got != 1 {
		t.Errorf("restores_total{failure,full} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.restoresTotal.WithLabelValues("failure", "none")); got != 1 {
		t.Errorf("restores_total{failure,none} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.chaptersRestored); got != 3 {
		t.Errorf("chapters_restored_total = %v, want 3", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.BackupFinished(quill.Result{Kind: quill.KindSnapshot, Success: true, Filename: "s.json", Size: 10})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`quill_backups_total{kind="snapshot",result="success"} 1`,
		`quill_backup_artifact_bytes{kind="snapshot"} 10`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
