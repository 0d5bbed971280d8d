package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestCollectorsCountQueries 验证查询计数按 outcome 区分。
func TestCollectorsCountQueries(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveQuery("drafts", "reload", nil)
	c.ObserveQuery("drafts", "reload", errors.New("boom"))
	c.ObserveQuery("drafts", "reload", nil)

	if got := testutil.ToFloat64(c.queries.WithLabelValues("drafts", "reload", "ok")); got != 2 {
		t.Fatalf("expected 2 ok queries, got %v", got)
	}
	if got := testutil.ToFloat64(c.queries.WithLabelValues("drafts", "reload", "error")); got != 1 {
		t.Fatalf("expected 1 failed query, got %v", got)
	}
}

// TestNilCollectorsAreNoop 验证 nil Collectors 的方法不会 panic。
func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	c.ObserveQuery("drafts", "reload", nil)
	c.GuardRejected("drafts", "reload")
	c.EventApplied("drafts", "draft.updated")
	c.SetRecords("drafts", 3)
	c.HubConnected()
	c.HubDisconnected()
	c.HubPublished()
	c.HubDropped()
	c.Write("draft", "upsert")
	c.RetentionPurged(2)
}
