package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"shadow-index-lab/internal/domain"
)

func TestMetrics_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordRun(domain.RunResult{
		StrategyID: "fixed",
		Timeframe:  "3M",
		Stats: domain.RunStats{
			FinalValue:     11500,
			TotalReturnPct: 15,
			Entered:        3,
			ScaledIn:       1,
			Skipped:        map[string]int{domain.SkipInsufficientCash: 2},
			ForcedExits:    map[string]int{"TIME_LIMIT": 1},
			QuoteLookups:   7,
		},
	}, 50*time.Millisecond)
	m.RecordRun(domain.RunResult{StrategyID: "fixed", Timeframe: "6M", Err: errors.New("boom")}, time.Millisecond)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("fixed", "3M", "ok")); got != 1 {
		t.Errorf("expected 1 ok run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("fixed", "6M", "error")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.EventsReplayed); got != 4 {
		t.Errorf("expected 4 replayed entries, got %v", got)
	}
	if got := testutil.ToFloat64(m.EntriesSkipped.WithLabelValues(domain.SkipInsufficientCash)); got != 2 {
		t.Errorf("expected 2 skips, got %v", got)
	}
	if got := testutil.ToFloat64(m.PortfolioValue.WithLabelValues("fixed", "3M")); got != 11500 {
		t.Errorf("expected portfolio value 11500, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRun(domain.RunResult{}, time.Second)
	m.RecordIngest(1, 1, nil)
	m.RecordPollPass(nil, time.Second, time.Now())
	m.RecordDBQuery("postgres", "insert", time.Second, nil)
	m.RecordQuoteCache(1, 2, 3)
	m.RecordFetchError("activity")
	m.RecordFeedUpdate()
}

func TestMetrics_PollAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	finished := time.Unix(1704067200, 0)
	m.RecordPollPass(nil, 2*time.Second, finished)
	m.RecordPollPass(errors.New("fail"), time.Second, finished.Add(time.Hour))
	m.RecordIngest(100, 40, map[string]int{"noise": 5, "duplicate": 0})
	m.RecordFeedUpdate()
	m.RecordFeedUpdate()

	if got := testutil.ToFloat64(m.LastSuccessfulPoll); got != 1704067200 {
		t.Errorf("failed pass must not move last success, got %v", got)
	}

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`test_poll_passes_total{status="error"} 1`,
		`test_ingestion_rows_dropped_total{reason="noise"} 5`,
		`test_ingestion_events_stored_total 40`,
		`test_quotes_feed_updates_total 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(body, `reason="duplicate"`) {
		t.Error("zero drop counts should not create series")
	}
}
