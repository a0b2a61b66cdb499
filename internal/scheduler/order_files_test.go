package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/orderfiles/internal/domain"
	"github.com/MrSnakeDoc/orderfiles/internal/fetcher"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/resilience"
)

type fakeQueue struct {
	mu        sync.Mutex
	links     []domain.FileLink
	processed map[int64]bool
	loads     int
	loadErr   error
	markCtxOK []bool
}

func newFakeQueue(links ...domain.FileLink) *fakeQueue {
	return &fakeQueue{links: links, processed: map[int64]bool{}}
}

func (q *fakeQueue) UnprocessedFileLinks(context.Context) ([]domain.FileLink, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loads++
	if q.loadErr != nil {
		return nil, q.loadErr
	}
	var pending []domain.FileLink
	for _, l := range q.links {
		if !q.processed[l.ID] {
			pending = append(pending, l)
		}
	}
	return pending, nil
}

func (q *fakeQueue) ProcessFileLink(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.markCtxOK = append(q.markCtxOK, ctx.Err() == nil)
	q.processed[id] = true
	return nil
}

func (q *fakeQueue) isProcessed(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed[id]
}

func (q *fakeQueue) loadCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loads
}

type saverFunc func(ctx context.Context, link domain.FileLink, dest string) domain.SaveResult

func (f saverFunc) Save(ctx context.Context, link domain.FileLink, dest string) domain.SaveResult {
	return f(ctx, link, dest)
}

func succeed(_ context.Context, link domain.FileLink, dest string) domain.SaveResult {
	return domain.SaveResult{Status: domain.SaveSuccess, OrderID: link.OrderID, URL: link.URL, LocalPath: dest}
}

type waiterFunc func(ctx context.Context) error

func (f waiterFunc) Wait(ctx context.Context) error { return f(ctx) }

// blockingWaiter waits until ctx is done.
var blockingWaiter = waiterFunc(func(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
})

func links(n int) []domain.FileLink {
	out := make([]domain.FileLink, n)
	for i := range out {
		out[i] = domain.FileLink{
			ID:      int64(i + 1),
			OrderID: 42,
			URL:     "https://cdn.example.com/file.pdf",
			Brand:   "Acme",
			Variant: "Citrus",
		}
	}
	return out
}

func newWorker(q LinkQueue, s Saver, w Waiter, parallelism int) *OrderFiles {
	return NewOrderFiles(q, s, w, OrderFilesConfig{BaseDir: "/data", MaxParallelism: parallelism}, logger.Nop())
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	q := newFakeQueue(links(5)...)
	s := saverFunc(func(ctx context.Context, link domain.FileLink, dest string) domain.SaveResult {
		if link.ID == 3 {
			return domain.SaveResult{Status: domain.SaveFailure, ErrorMessage: "The file was not found on the server."}
		}
		return succeed(ctx, link, dest)
	})

	require.NoError(t, newWorker(q, s, blockingWaiter, 2).RunCycle(context.Background()))

	for _, l := range links(5) {
		assert.Equal(t, l.ID != 3, q.isProcessed(l.ID), "link %d", l.ID)
	}
}

func TestRunCycleWithoutWork(t *testing.T) {
	q := newFakeQueue()
	var saves atomic.Int32
	s := saverFunc(func(ctx context.Context, link domain.FileLink, dest string) domain.SaveResult {
		saves.Add(1)
		return succeed(ctx, link, dest)
	})

	require.NoError(t, newWorker(q, s, blockingWaiter, 2).RunCycle(context.Background()))
	assert.Zero(t, saves.Load())
}

func TestRunCycleReportsQueueFailure(t *testing.T) {
	q := newFakeQueue()
	q.loadErr = errors.New("connection refused")

	err := newWorker(q, saverFunc(succeed), blockingWaiter, 2).RunCycle(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunCycleRespectsParallelism(t *testing.T) {
	const limit = 3
	var active, peak atomic.Int32
	s := saverFunc(func(ctx context.Context, link domain.FileLink, dest string) domain.SaveResult {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return succeed(ctx, link, dest)
	})

	q := newFakeQueue(links(20)...)
	require.NoError(t, newWorker(q, s, blockingWaiter, limit).RunCycle(context.Background()))

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestProcessMarksAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := saverFunc(func(_ context.Context, link domain.FileLink, dest string) domain.SaveResult {
		// the download finishes just as shutdown starts
		cancel()
		return succeed(ctx, link, dest)
	})
	q := newFakeQueue(links(1)...)

	err := newWorker(q, s, blockingWaiter, 1).RunCycle(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, q.isProcessed(1))
	assert.Equal(t, []bool{true}, q.markCtxOK)
}

func TestRunCycleStopsDispatchOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var saves atomic.Int32
	s := saverFunc(func(c context.Context, link domain.FileLink, dest string) domain.SaveResult {
		saves.Add(1)
		cancel()
		return domain.SaveResult{Status: domain.SaveFailure, ErrorMessage: c.Err().Error()}
	})
	q := newFakeQueue(links(10)...)

	_ = newWorker(q, s, blockingWaiter, 1).RunCycle(ctx)

	assert.Less(t, saves.Load(), int32(10))
}

func TestDestination(t *testing.T) {
	w := newWorker(newFakeQueue(), saverFunc(succeed), blockingWaiter, 1)

	got := w.Destination(domain.FileLink{OrderID: 7, Brand: "Acme/Beta", Variant: "CON"})

	assert.Equal(t, filepath.Join("/data", SubsystemDir, "7", "Acme_Beta", "_CON"), got)
}

func TestRunSkipsFirstWait(t *testing.T) {
	q := newFakeQueue(links(2)...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadsAtFirstWait := -1
	w := waiterFunc(func(ctx context.Context) error {
		if loadsAtFirstWait < 0 {
			loadsAtFirstWait = q.loadCount()
		}
		cancel()
		return ctx.Err()
	})

	newWorker(q, saverFunc(succeed), w, 2).Run(ctx)

	assert.Equal(t, 1, loadsAtFirstWait, "first cycle runs before any wait")
	assert.True(t, q.isProcessed(1))
	assert.True(t, q.isProcessed(2))
}

func TestRunSurvivesCycleErrors(t *testing.T) {
	q := newFakeQueue()
	q.loadErr = errors.New("database unreachable")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits atomic.Int32
	w := waiterFunc(func(ctx context.Context) error {
		if waits.Add(1) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	})

	newWorker(q, saverFunc(succeed), w, 2).Run(ctx)

	assert.Equal(t, 3, q.loadCount())
}

func TestRunSurvivesWaiterErrors(t *testing.T) {
	q := newFakeQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits atomic.Int32
	w := waiterFunc(func(ctx context.Context) error {
		if waits.Add(1) == 3 {
			cancel()
			return ctx.Err()
		}
		return errors.New("signal backend down")
	})

	worker := newWorker(q, saverFunc(succeed), w, 1)
	worker.waitErrDelay = time.Millisecond
	worker.Run(ctx)

	assert.Equal(t, int32(3), waits.Load())
	assert.Equal(t, 3, q.loadCount(), "a failed wait still leads to a cycle")
}

func TestStartStop(t *testing.T) {
	q := newFakeQueue(links(1)...)
	w := newWorker(q, saverFunc(succeed), blockingWaiter, 1)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return q.isProcessed(1) }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRunCycleWithFetcher(t *testing.T) {
	body := []byte("label artwork")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	base := t.TempDir()
	f, err := fetcher.New(server.Client(), base, fetcher.WithRetry(resilience.Retry{Retries: 1}))
	require.NoError(t, err)

	q := newFakeQueue(
		domain.FileLink{ID: 1, OrderID: 9, URL: server.URL + "/front.pdf", Brand: "Acme", Variant: "Citrus"},
		domain.FileLink{ID: 2, OrderID: 9, URL: server.URL + "/missing.pdf", Brand: "Acme", Variant: "Citrus"},
	)
	w := NewOrderFiles(q, f, blockingWaiter, OrderFilesConfig{BaseDir: base, MaxParallelism: 2}, logger.Nop())

	require.NoError(t, w.RunCycle(context.Background()))

	assert.True(t, q.isProcessed(1))
	assert.False(t, q.isProcessed(2), "404 keeps the link pending")

	path := filepath.Join(base, SubsystemDir, "9", "Acme", "Citrus",
		"front_"+fetcher.URLHash(server.URL+"/front.pdf")+".pdf")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// a second cycle only retries the pending link
	require.NoError(t, w.RunCycle(context.Background()))
	assert.False(t, q.isProcessed(2))
}
