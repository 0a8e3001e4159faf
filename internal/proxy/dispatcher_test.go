package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tapehub/tapehub/internal/recording"
	"github.com/tapehub/tapehub/internal/tape"
)

func TestDispatchRecordsThenPlaysBack(t *testing.T) {
	upstream, hits := newCountingUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"id":42}`)
	})
	store := newTestStore(t)
	dispatcher := NewDispatcher(store, NewForwarder(upstream.Client(), upstream.URL), false)
	ctx := context.Background()
	in := Inbound{Method: "GET", PathAndQuery: "/users/42", Header: http.Header{}}

	first, err := dispatcher.Dispatch(ctx, in)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	recorded, ok := first.(Recorded)
	if !ok {
		t.Fatalf("expected Recorded, got %T", first)
	}
	if recorded.Response.StatusCode != http.StatusOK || string(recorded.Response.Body) != `{"id":42}` {
		t.Fatalf("unexpected recorded response %+v", recorded.Response)
	}

	key := tape.NewKey("/users/42", "GET")
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("read tape: %v", err)
	}
	if !bytes.Equal(data, recording.Encode(recorded.Response)) {
		t.Fatalf("tape bytes differ from encoded response:\n%q", data)
	}

	second, err := dispatcher.Dispatch(ctx, in)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	playback, ok := second.(Playback)
	if !ok {
		t.Fatalf("expected Playback, got %T", second)
	}
	if !bytes.Equal(playback.Response.Body, recorded.Response.Body) {
		t.Fatalf("playback body mismatch: %q", playback.Response.Body)
	}
	if got := playback.Response.Values("Content-Type"); len(got) != 1 || got[0] != "application/json" {
		t.Fatalf("unexpected playback content type %v", got)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected a single upstream call, got %d", n)
	}
}

func TestDispatchKeyIgnoresRequestBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	upstream, hits := newCountingUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		_, _ = io.WriteString(w, "token-a")
	})
	dispatcher := NewDispatcher(newTestStore(t), NewForwarder(upstream.Client(), upstream.URL), false)
	ctx := context.Background()

	first, err := dispatcher.Dispatch(ctx, Inbound{Method: "POST", PathAndQuery: "/login", Body: []byte("user=a")})
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := dispatcher.Dispatch(ctx, Inbound{Method: "POST", PathAndQuery: "/login", Body: []byte("user=b")})
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	if _, ok := first.(Recorded); !ok {
		t.Fatalf("expected first Recorded, got %T", first)
	}
	playback, ok := second.(Playback)
	if !ok {
		t.Fatalf("expected second Playback, got %T", second)
	}
	if string(playback.Response.Body) != "token-a" {
		t.Fatalf("unexpected playback body %q", playback.Response.Body)
	}
	if hits.Load() != 1 || len(bodies) != 1 || bodies[0] != "user=a" {
		t.Fatalf("expected upstream to see only the first body, got %v", bodies)
	}
}

func TestDispatchUpstreamUnavailableWritesNothing(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	store := newTestStore(t)
	dispatcher := NewDispatcher(store, NewForwarder(&http.Client{Timeout: 2 * time.Second}, deadURL), false)
	ctx := context.Background()

	out, err := dispatcher.Dispatch(ctx, Inbound{Method: "GET", PathAndQuery: "/anything"})
	if err == nil {
		t.Fatalf("expected error, got outcome %T", out)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) || upstreamErr.URL != deadURL+"/anything" {
		t.Fatalf("expected UpstreamError for %s, got %v", deadURL, err)
	}

	exists, err := store.Exists(ctx, tape.NewKey("/anything", "GET"))
	if err != nil || exists {
		t.Fatalf("expected no tape after upstream failure, exists=%v err=%v", exists, err)
	}
}

func TestDispatchReplayOnlyMiss(t *testing.T) {
	upstream, hits := newCountingUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	store := newTestStore(t)
	dispatcher := NewDispatcher(store, NewForwarder(upstream.Client(), upstream.URL), true)

	header := http.Header{}
	header.Add("Accept", "application/json")
	header.Add("Accept", "text/plain")
	out, err := dispatcher.Dispatch(context.Background(), Inbound{Method: "GET", PathAndQuery: "/missing", Header: header})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	notImpl, ok := out.(NotImplemented)
	if !ok {
		t.Fatalf("expected NotImplemented, got %T", out)
	}
	if notImpl.Status() != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", notImpl.Status())
	}
	if len(notImpl.Accept) != 2 || notImpl.Accept[0] != "application/json" || notImpl.Accept[1] != "text/plain" {
		t.Fatalf("unexpected accept values %v", notImpl.Accept)
	}
	if hits.Load() != 0 {
		t.Fatalf("replay-only miss must not reach upstream")
	}
	path, _ := store.Path(tape.NewKey("/missing", "GET"))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no tape file, stat err=%v", err)
	}
}

func TestDispatchReplayOnlyHit(t *testing.T) {
	store := newTestStore(t)
	key := tape.NewKey("/cached", "GET")
	raw := recording.Encode(recording.Response{StatusCode: 203, Reason: "Non-Authoritative Information", Body: []byte("hi")})
	if err := store.Write(context.Background(), key, raw); err != nil {
		t.Fatalf("seed tape: %v", err)
	}

	dispatcher := NewDispatcher(store, failingUpstream{t: t}, true)
	out, err := dispatcher.Dispatch(context.Background(), Inbound{Method: "GET", PathAndQuery: "/cached"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	playback, ok := out.(Playback)
	if !ok || playback.Status() != 203 || string(playback.Response.Body) != "hi" {
		t.Fatalf("unexpected outcome %#v", out)
	}
}

func TestDispatchMalformedTapeDoesNotForward(t *testing.T) {
	store := newTestStore(t)
	key := tape.NewKey("/broken", "GET")
	if err := store.Write(context.Background(), key, []byte("not a recording")); err != nil {
		t.Fatalf("seed tape: %v", err)
	}

	dispatcher := NewDispatcher(store, failingUpstream{t: t}, false)
	_, err := dispatcher.Dispatch(context.Background(), Inbound{Method: "GET", PathAndQuery: "/broken"})
	if !errors.Is(err, recording.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDispatchDistinguishesQueryAndMethod(t *testing.T) {
	upstream, hits := newCountingUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Method+" "+r.URL.RequestURI())
	})
	dispatcher := NewDispatcher(newTestStore(t), NewForwarder(upstream.Client(), upstream.URL), false)
	ctx := context.Background()

	requests := []Inbound{
		{Method: "GET", PathAndQuery: "/items?page=1"},
		{Method: "GET", PathAndQuery: "/items?page=2"},
		{Method: "HEAD", PathAndQuery: "/items?page=1"},
		{Method: "GET", PathAndQuery: "/items"},
	}
	for _, in := range requests {
		out, err := dispatcher.Dispatch(ctx, in)
		if err != nil {
			t.Fatalf("%s %s: %v", in.Method, in.PathAndQuery, err)
		}
		if _, ok := out.(Recorded); !ok {
			t.Fatalf("%s %s: expected Recorded, got %T", in.Method, in.PathAndQuery, out)
		}
	}
	if n := hits.Load(); n != int64(len(requests)) {
		t.Fatalf("expected %d upstream calls, got %d", len(requests), n)
	}
}

func TestDispatchConcurrentMissesForwardOnce(t *testing.T) {
	release := make(chan struct{})
	upstream, hits := newCountingUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, "shared")
	})
	dispatcher := NewDispatcher(newTestStore(t), NewForwarder(upstream.Client(), upstream.URL), false)

	const workers = 8
	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = dispatcher.Dispatch(context.Background(), Inbound{Method: "GET", PathAndQuery: "/slow"})
		}(i)
	}

	// 等待第一个请求到达上游后再放行，确保其余请求都在排队。
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	recorded := 0
	for i := range outcomes {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		switch o := outcomes[i].(type) {
		case Recorded:
			recorded++
		case Playback:
			if string(o.Response.Body) != "shared" {
				t.Fatalf("unexpected playback body %q", o.Response.Body)
			}
		default:
			t.Fatalf("unexpected outcome %T", o)
		}
	}
	if recorded != 1 {
		t.Fatalf("expected exactly one recording, got %d", recorded)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
}

func TestDispatchStorageFailureIsReported(t *testing.T) {
	store := newTestStore(t)
	// 在目录位置放一个普通文件，使 EnsureContainer 失败。
	blocker, err := store.Path(tape.NewKey("/blocked", "GET"))
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if err := os.WriteFile(filepath.Dir(blocker), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}

	dispatcher := NewDispatcher(store, failingUpstream{t: t}, false)
	_, err = dispatcher.Dispatch(context.Background(), Inbound{Method: "GET", PathAndQuery: "/blocked/inner"})
	var storageErr *tape.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Op != "mkdir" {
		t.Fatalf("expected mkdir failure, got %s", storageErr.Op)
	}
}

func newTestStore(t *testing.T) tape.Store {
	t.Helper()
	store, err := tape.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newCountingUpstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	hits := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

// failingUpstream marks the test failed if the dispatcher ever forwards.
type failingUpstream struct {
	t *testing.T
}

func (f failingUpstream) BuildOutbound(ctx context.Context, in Inbound) (*http.Request, error) {
	f.t.Errorf("unexpected forward of %s %s", in.Method, in.PathAndQuery)
	return nil, errors.New("unexpected forward")
}

func (f failingUpstream) Dispatch(*http.Request) (recording.Response, error) {
	f.t.Errorf("unexpected upstream dispatch")
	return recording.Response{}, errors.New("unexpected dispatch")
}
