package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/kalambet/ragdesk/internal/storage"
)

type mockIngester struct {
	mu       sync.Mutex
	calls    []Payload
	ingestFn func(ctx context.Context, userID string, texts []string) (string, error)
}

func (m *mockIngester) Ingest(ctx context.Context, userID string, texts []string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Payload{UserID: userID, Texts: texts})
	m.mu.Unlock()
	if m.ingestFn != nil {
		return m.ingestFn(ctx, userID, texts)
	}
	return "/vectorstores/" + userID + "/vector_index", nil
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) ([]string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) ([]string, error) {
	return m.fetchFn(ctx, rawURL)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, p Payload) string {
	t.Helper()
	job, err := NewJob(p)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := store.EnqueueJob(context.Background(), job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return job.ID
}

// resetRunAfter makes the job immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = '1970-01-01T00:00:00.000000000Z' WHERE id = ?`, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func getJob(t *testing.T, store *storage.Store, id string) storage.Job {
	t.Helper()
	j, err := store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return j
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, Payload{UserID: "u1", Texts: []string{"Hello world"}})

	ing := &mockIngester{}
	w := NewWorker(store, ing, nil, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	if len(ing.calls) != 1 || ing.calls[0].UserID != "u1" || ing.calls[0].Texts[0] != "Hello world" {
		t.Fatalf("ingest calls = %+v", ing.calls)
	}

	j := getJob(t, store, id)
	if j.Status != "completed" {
		t.Errorf("status = %q, want completed", j.Status)
	}
	if j.Result != "/vectorstores/u1/vector_index" {
		t.Errorf("result = %q", j.Result)
	}
}

func TestWorker_NoJobs(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockIngester{}, nil, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if didWork {
		t.Error("RunOnce reported work on an empty queue")
	}
}

func TestWorker_FetchesURLs(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, Payload{UserID: "u1", Texts: []string{"inline"}, URLs: []string{"https://example.com/a"}})

	ing := &mockIngester{}
	f := &mockFetcher{fetchFn: func(_ context.Context, u string) ([]string, error) {
		return []string{"fetched from " + u}, nil
	}}
	w := NewWorker(store, ing, f, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := ing.calls[0].Texts
	if len(got) != 2 || got[0] != "inline" || got[1] != "fetched from https://example.com/a" {
		t.Errorf("texts = %v", got)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, Payload{UserID: "u1", Texts: []string{"retry content"}})

	var calls atomic.Int32
	w := NewWorker(store, &mockIngester{
		ingestFn: func(_ context.Context, userID string, _ []string) (string, error) {
			n := calls.Add(1)
			if n <= 2 {
				return "", fmt.Errorf("transient error %d", n)
			}
			return "/done", nil
		},
	}, nil, 0)

	ctx := context.Background()

	// 1st attempt fails and is rescheduled.
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 1 error: %v", err)
	}
	j := getJob(t, store, id)
	if j.Status != "pending" || j.Attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", j.Status, j.Attempts)
	}
	if j.LastError != "transient error 1" {
		t.Errorf("last_error = %q", j.LastError)
	}

	resetRunAfter(t, store, id)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 2 error: %v", err)
	}
	if j := getJob(t, store, id); j.Attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", j.Attempts)
	}

	resetRunAfter(t, store, id)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 3 error: %v", err)
	}
	if j := getJob(t, store, id); j.Status != "completed" || j.Result != "/done" {
		t.Errorf("after 3rd attempt: status=%q result=%q, want completed//done", j.Status, j.Result)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, Payload{UserID: "u1", Texts: []string{"x"}})

	w := NewWorker(store, &mockIngester{
		ingestFn: func(context.Context, string, []string) (string, error) {
			return "", fmt.Errorf("embedding backend down")
		},
	}, nil, 0)

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, id)
		}
	}

	if j := getJob(t, store, id); j.Status != "failed" {
		t.Errorf("final status = %q, want failed", j.Status)
	}
}

func TestWorker_InvalidInputFailsImmediately(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, Payload{UserID: "u1"})

	w := NewWorker(store, &mockIngester{
		ingestFn: func(context.Context, string, []string) (string, error) {
			return "", errs.InvalidInput("no documents to index")
		},
	}, nil, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	j := getJob(t, store, id)
	if j.Status != "failed" || j.Attempts != 1 {
		t.Errorf("status=%q attempts=%d, want failed/1", j.Status, j.Attempts)
	}
}

func TestWorker_URLsWithoutFetcher(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, Payload{UserID: "u1", URLs: []string{"https://example.com"}})

	ing := &mockIngester{}
	w := NewWorker(store, ing, nil, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(ing.calls) != 0 {
		t.Error("ingester should not run")
	}
	if j := getJob(t, store, id); j.Status != "failed" {
		t.Errorf("status = %q, want failed", j.Status)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockIngester{}, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorker_ConcurrentEnqueue(t *testing.T) {
	store := openTestStore(t)

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				job, err := NewJob(Payload{UserID: fmt.Sprintf("u-%d-%d", g, j), Texts: []string{"content"}})
				if err != nil {
					t.Errorf("NewJob: %v", err)
					return
				}
				if err := store.EnqueueJob(context.Background(), job); err != nil {
					t.Errorf("EnqueueJob: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	ing := &mockIngester{}
	w := NewWorker(store, ing, nil, 0)

	deadline := time.After(5 * time.Second)
	processed := 0
	for processed < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after processing %d/%d jobs", processed, total)
		default:
		}
		didWork, err := w.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce error at job %d: %v", processed, err)
		}
		if didWork {
			processed++
		}
	}

	seen := make(map[string]bool)
	for _, c := range ing.calls {
		seen[c.UserID] = true
	}
	if len(seen) != total {
		t.Errorf("ingested %d distinct users, want %d", len(seen), total)
	}
}

func TestNewJob(t *testing.T) {
	j, err := NewJob(Payload{UserID: "u1", Texts: []string{"a"}})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if j.ID == "" || j.Type != JobTypeIngest {
		t.Errorf("job = %+v", j)
	}
	if j.PayloadJSON != `{"user_id":"u1","texts":["a"]}` {
		t.Errorf("payload = %s", j.PayloadJSON)
	}
}
