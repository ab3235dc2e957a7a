package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepos/internal/infra"
	"cinepos/internal/model"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)

func rawOrder(id, number, payStatus string, created time.Time) model.Order {
	return model.Order{
		ID:            id,
		Number:        number,
		Status:        "confirmed",
		Source:        "qr_code",
		PaymentStatus: payStatus,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestBuildSnapshotFiltersUnpaid(t *testing.T) {
	snap := BuildSnapshot([]model.Order{
		rawOrder("a1", "ORD-1", "paid", now),
		rawOrder("a2", "ORD-2", "pending", now),
		rawOrder("a3", "ORD-3", "completed", now),
	}, nil)

	require.Len(t, snap.Orders, 2)
	assert.Equal(t, "ORD-1", snap.Orders[0].Identity.Number)
	assert.Equal(t, "ORD-3", snap.Orders[1].Identity.Number)
}

func TestBuildSnapshotDedupesKeepingFreshestRevision(t *testing.T) {
	old := rawOrder("a1", "ORD-1", "paid", now.Add(-time.Hour))
	old.PaymentMethod = "cash"
	newer := rawOrder("a1", "", "paid", now.Add(-time.Hour))
	newer.UpdatedAt = now
	newer.PaymentMethod = "upi"

	snap := BuildSnapshot([]model.Order{old, newer}, nil)

	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "upi", snap.Orders[0].PaymentMethod)
}

func TestBuildSnapshotMergesAliasChain(t *testing.T) {
	// One order delivered three ways: id only, id+number, number only. The
	// id+number record links the two forms, so all three collapse.
	snap := BuildSnapshot([]model.Order{
		rawOrder("a1", "", "paid", now),
		rawOrder("a1", "ORD-1", "paid", now),
		rawOrder("", "ORD-1", "paid", now),
	}, nil)

	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "a1", snap.Orders[0].Identity.ID)
	assert.Equal(t, "ORD-1", snap.Orders[0].Identity.Number)
}

func TestBuildSnapshotSortsNewestFirst(t *testing.T) {
	snap := BuildSnapshot([]model.Order{
		rawOrder("a1", "ORD-1", "paid", now.Add(-2*time.Hour)),
		rawOrder("a2", "ORD-2", "paid", now),
		rawOrder("a3", "ORD-3", "paid", now.Add(-time.Hour)),
	}, nil)

	require.Len(t, snap.Orders, 3)
	assert.Equal(t, "ORD-2", snap.Orders[0].Identity.Number)
	assert.Equal(t, "ORD-1", snap.Orders[2].Identity.Number)
}

func TestBuildSnapshotDerivesSummaryWhenAbsent(t *testing.T) {
	snap := BuildSnapshot([]model.Order{rawOrder("a1", "ORD-1", "paid", now)}, nil)
	assert.Equal(t, 1, snap.Summary.TotalOrders)

	server := model.Summary{TotalOrders: 42}
	snap = BuildSnapshot(nil, &server)
	assert.Equal(t, 42, snap.Summary.TotalOrders)
}

func orderServer(t *testing.T, hits *atomic.Int32, orders []model.Order) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "qr_code,online", r.URL.Query().Get("source"))
		json.NewEncoder(w).Encode(map[string]any{"orders": orders})
	}))
}

func startPoller(t *testing.T, p *Poller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	return cancel
}

func TestRunEmitsInitialSnapshot(t *testing.T) {
	var hits atomic.Int32
	srv := orderServer(t, &hits, []model.Order{rawOrder("a1", "ORD-1", "paid", now)})
	defer srv.Close()

	p := New("thr-1", infra.NewOrdersClient(srv.URL), infra.NewCircuitBreaker(infra.DefaultCBConfig()), time.Minute, model.Day(now))
	cancel := startPoller(t, p)
	defer cancel()

	select {
	case r := <-p.Results():
		require.NoError(t, r.Err)
		require.Len(t, r.Snapshot.Orders, 1)
		assert.Equal(t, "ORD-1", r.Snapshot.Orders[0].Identity.Number)
	case <-time.After(2 * time.Second):
		t.Fatal("no result from initial refresh")
	}
}

func TestRunEmitsErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New("thr-1", infra.NewOrdersClient(srv.URL), infra.NewCircuitBreaker(infra.DefaultCBConfig()), time.Minute, model.Day(now))
	cancel := startPoller(t, p)
	defer cancel()

	select {
	case r := <-p.Results():
		assert.ErrorIs(t, r.Err, infra.ErrNetworkUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("no error result")
	}
}

func TestForceRefreshTriggersExtraFetch(t *testing.T) {
	var hits atomic.Int32
	srv := orderServer(t, &hits, nil)
	defer srv.Close()

	p := New("thr-1", infra.NewOrdersClient(srv.URL), infra.NewCircuitBreaker(infra.DefaultCBConfig()), time.Hour, model.Day(now))
	cancel := startPoller(t, p)
	defer cancel()

	<-p.Results()
	p.ForceRefresh()
	<-p.Results()
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestPauseSuppressesRefreshes(t *testing.T) {
	var hits atomic.Int32
	srv := orderServer(t, &hits, nil)
	defer srv.Close()

	p := New("thr-1", infra.NewOrdersClient(srv.URL), infra.NewCircuitBreaker(infra.DefaultCBConfig()), 30*time.Millisecond, model.Day(now))
	p.Pause()
	cancel := startPoller(t, p)
	defer cancel()

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, hits.Load())

	p.Resume()
	select {
	case r := <-p.Results():
		require.NoError(t, r.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("resume did not trigger a refresh")
	}
}

func TestSetWindowChangesQueryBounds(t *testing.T) {
	starts := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		starts <- r.URL.Query().Get("startDate")
		json.NewEncoder(w).Encode(map[string]any{"orders": []model.Order{}})
	}))
	defer srv.Close()

	p := New("thr-1", infra.NewOrdersClient(srv.URL), infra.NewCircuitBreaker(infra.DefaultCBConfig()), time.Hour, model.Day(now))
	cancel := startPoller(t, p)
	defer cancel()

	first := <-starts
	<-p.Results()

	yesterday := model.Day(now.AddDate(0, 0, -1))
	p.SetWindow(yesterday)
	second := <-starts
	<-p.Results()

	assert.NotEqual(t, first, second)
	wantStart, _ := yesterday.QueryRange()
	assert.Equal(t, wantStart, second)
}
