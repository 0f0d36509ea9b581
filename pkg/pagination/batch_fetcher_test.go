package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/internal/testutil"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/client"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/ratelimit"
)

// fakeSource serves total posts with ids "p0".."p<total-1>" in offset order.
type fakeSource struct {
	mu       sync.Mutex
	total    int
	calls    []PageSpec
	delays   map[int]time.Duration
	failures map[int]error
	short    map[int]int
	oversize map[int]int
	inFlight int
	maxSeen  int

	// barrier, when set, holds every call until n calls are in flight.
	barrier *barrier
}

type barrier struct {
	n       int
	arrived int
	ch      chan struct{}
}

func newFakeSource(total int) *fakeSource {
	return &fakeSource{
		total:    total,
		delays:   map[int]time.Duration{},
		failures: map[int]error{},
		short:    map[int]int{},
		oversize: map[int]int{},
	}
}

func (f *fakeSource) FetchPage(ctx context.Context, _ url.Values, offset, count int) (*corpus.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, PageSpec{Offset: offset, Size: count})
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	delay := f.delays[offset]
	failure := f.failures[offset]
	drop := f.short[offset]
	extra := f.oversize[offset]
	b := f.barrier
	if b != nil {
		b.arrived++
		if b.arrived == b.n {
			close(b.ch)
		}
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if b != nil {
		select {
		case <-b.ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failure != nil {
		return nil, failure
	}

	page := &corpus.Page{Total: f.total}
	for i := offset; i < offset+count-drop+extra && i < f.total+extra; i++ {
		page.Items = append(page.Items, corpus.RawPost{ID: fmt.Sprintf("p%d", i)})
	}
	return page, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() Config {
	return Config{PageCap: 100, MaxConcurrency: 10, Timeout: 2 * time.Second}
}

func assertSequential(t *testing.T, items []corpus.RawPost, count int) {
	t.Helper()
	if len(items) != count {
		t.Fatalf("len(items) = %d, want %d", len(items), count)
	}
	for i, it := range items {
		if want := fmt.Sprintf("p%d", i); it.ID != want {
			t.Fatalf("items[%d].ID = %q, want %q", i, it.ID, want)
		}
	}
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(newFakeSource(0), Config{PageCap: 500})
	cfg := bf.Config()

	if cfg.PageCap != MaxPageCap {
		t.Errorf("PageCap = %d, want %d", cfg.PageCap, MaxPageCap)
	}
	if cfg.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", cfg.MaxConcurrency)
	}
	if cfg.Timeout != 25*time.Second {
		t.Errorf("Timeout = %v, want 25s", cfg.Timeout)
	}
}

func TestFetch_ThreeConcurrentPages(t *testing.T) {
	src := newFakeSource(300)
	src.barrier = &barrier{n: 3, ch: make(chan struct{})}

	bf := NewBatchFetcher(src, testConfig())

	items, err := bf.Fetch(context.Background(), url.Values{}, 250)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	assertSequential(t, items, 250)

	got := map[PageSpec]bool{}
	for _, c := range src.calls {
		got[c] = true
	}
	want := []PageSpec{{Offset: 0, Size: 100}, {Offset: 100, Size: 100}, {Offset: 200, Size: 50}}
	if len(src.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", src.calls, want)
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing request %+v in %v", w, src.calls)
		}
	}
	if src.maxSeen != 3 {
		t.Errorf("max in flight = %d, want 3", src.maxSeen)
	}
}

func TestFetch_OrderIndependentOfCompletion(t *testing.T) {
	src := newFakeSource(500)
	// Earlier pages finish last.
	src.delays[0] = 120 * time.Millisecond
	src.delays[100] = 80 * time.Millisecond
	src.delays[200] = 40 * time.Millisecond

	bf := NewBatchFetcher(src, testConfig())

	items, err := bf.Fetch(context.Background(), url.Values{}, 430)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	assertSequential(t, items, 430)
}

func TestFetch_Counts(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		wantCalls int
	}{
		{name: "zero makes no calls", count: 0, wantCalls: 0},
		{name: "single item", count: 1, wantCalls: 1},
		{name: "exact page", count: 100, wantCalls: 1},
		{name: "one over page", count: 101, wantCalls: 2},
		{name: "many pages", count: 1000, wantCalls: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(2000)
			bf := NewBatchFetcher(src, testConfig())

			items, err := bf.Fetch(context.Background(), url.Values{}, tt.count)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			assertSequential(t, items, tt.count)
			if n := src.callCount(); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestFetch_NegativeCount(t *testing.T) {
	bf := NewBatchFetcher(newFakeSource(10), testConfig())
	if _, err := bf.Fetch(context.Background(), url.Values{}, -1); err == nil {
		t.Error("Fetch(-1) error = nil, want error")
	}
}

func TestFetch_RespectsConcurrencyLimit(t *testing.T) {
	src := newFakeSource(1000)
	for off := 0; off < 1000; off += 100 {
		src.delays[off] = 20 * time.Millisecond
	}

	cfg := testConfig()
	cfg.MaxConcurrency = 2
	bf := NewBatchFetcher(src, cfg)

	if _, err := bf.Fetch(context.Background(), url.Values{}, 1000); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if src.maxSeen > 2 {
		t.Errorf("max in flight = %d, want <= 2", src.maxSeen)
	}
}

func TestFetch_AllOrNothing(t *testing.T) {
	upstream := &client.UpstreamError{StatusCode: 500, ErrorClass: client.ErrorClassServer, Message: "boom"}

	src := newFakeSource(1000)
	src.failures[100] = upstream
	// Other pages are slow; they must be cancelled, not awaited.
	for _, off := range []int{0, 200, 300} {
		src.delays[off] = 5 * time.Second
	}

	bf := NewBatchFetcher(src, Config{PageCap: 100, MaxConcurrency: 10, Timeout: 10 * time.Second})

	start := time.Now()
	items, err := bf.Fetch(context.Background(), url.Values{}, 400)
	if err == nil {
		t.Fatalf("Fetch() = %d items, want error", len(items))
	}
	if items != nil {
		t.Errorf("Fetch() returned partial items: %d", len(items))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() took %v, in-flight pages were not cancelled", elapsed)
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *FetchError: %v", err, err)
	}
	if fe.Page.Offset != 100 || fe.Page.Sequence != 1 {
		t.Errorf("failed page = %+v, want offset 100 sequence 1", fe.Page)
	}
	if !errors.Is(err, upstream) {
		t.Error("FetchError does not wrap the upstream error")
	}
}

func TestFetch_PageTimeout(t *testing.T) {
	src := newFakeSource(200)
	src.delays[100] = time.Second

	bf := NewBatchFetcher(src, Config{PageCap: 100, MaxConcurrency: 2, Timeout: 50 * time.Millisecond})

	_, err := bf.Fetch(context.Background(), url.Values{}, 200)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Page.Offset != 100 {
		t.Errorf("error = %v, want FetchError for offset 100", err)
	}
}

func TestFetch_ParentCancelled(t *testing.T) {
	src := newFakeSource(200)
	bf := NewBatchFetcher(src, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bf.Fetch(ctx, url.Values{}, 200)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context canceled", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Errorf("error %T is not *FetchError", err)
	}
}

func TestFetch_PageShape(t *testing.T) {
	tests := []struct {
		name       string
		configure  func(*fakeSource)
		allowShort bool
		wantErr    error
		wantItems  int
	}{
		{
			name:      "short page fails",
			configure: func(f *fakeSource) { f.short[100] = 10 },
			wantErr:   ErrShortPage,
		},
		{
			name:       "short page allowed",
			configure:  func(f *fakeSource) { f.short[100] = 10 },
			allowShort: true,
			wantItems:  140,
		},
		{
			name:      "oversize page fails",
			configure: func(f *fakeSource) { f.oversize[0] = 5 },
			wantErr:   client.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(1000)
			tt.configure(src)

			cfg := testConfig()
			cfg.AllowShortPages = tt.allowShort
			bf := NewBatchFetcher(src, cfg)

			items, err := bf.Fetch(context.Background(), url.Values{}, 150)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(items) != tt.wantItems {
				t.Errorf("len(items) = %d, want %d", len(items), tt.wantItems)
			}
		})
	}
}

func TestProbeTotal(t *testing.T) {
	src := newFakeSource(90)
	bf := NewBatchFetcher(src, testConfig())

	total, err := bf.ProbeTotal(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("ProbeTotal() error = %v", err)
	}
	if total != 90 {
		t.Errorf("ProbeTotal() = %d, want 90", total)
	}
	if len(src.calls) != 1 || src.calls[0] != (PageSpec{Offset: 0, Size: 1}) {
		t.Errorf("calls = %v, want one request of size 1", src.calls)
	}
}

func TestProbeTotal_EmptySource(t *testing.T) {
	bf := NewBatchFetcher(newFakeSource(0), testConfig())

	total, err := bf.ProbeTotal(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("ProbeTotal() error = %v", err)
	}
	if total != 0 {
		t.Errorf("ProbeTotal() = %d, want 0", total)
	}
}

func TestProbeTotal_Errors(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*fakeSource)
		wantClass client.ErrorClass
	}{
		{
			name: "upstream error passes through",
			configure: func(f *fakeSource) {
				f.failures[0] = &client.UpstreamError{ErrorClass: client.ErrorClassAPI, Code: 5}
			},
			wantClass: client.ErrorClassAPI,
		},
		{
			name:      "other error becomes upstream error",
			configure: func(f *fakeSource) { f.failures[0] = errors.New("weird") },
			wantClass: client.ErrorClassProtocol,
		},
		{
			name:      "unexpected shape",
			configure: func(f *fakeSource) { f.oversize[0] = 3 },
			wantClass: client.ErrorClassProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(50)
			tt.configure(src)
			bf := NewBatchFetcher(src, testConfig())

			_, err := bf.ProbeTotal(context.Background(), url.Values{})
			var ue *client.UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want *client.UpstreamError", err)
			}
			if ue.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", ue.ErrorClass, tt.wantClass)
			}
		})
	}
}

func TestFetch_AgainstMockVK(t *testing.T) {
	mock := testutil.NewMockVK()
	defer mock.Close()
	mock.SetPosts(testutil.GeneratePosts(230, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	mock.SetDelay(0, 60*time.Millisecond)

	cfg := client.DefaultConfig("token")
	cfg.BaseURL = mock.BaseURL()
	cfg.RateLimit = ratelimit.Config{}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	bf := NewBatchFetcher(c, testConfig())

	total, err := bf.ProbeTotal(context.Background(), url.Values{"domain": {"news"}})
	if err != nil {
		t.Fatalf("ProbeTotal() error = %v", err)
	}
	if total != 230 {
		t.Fatalf("total = %d, want 230", total)
	}

	items, err := bf.Fetch(context.Background(), url.Values{"domain": {"news"}}, total)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(items) != 230 {
		t.Fatalf("len(items) = %d, want 230", len(items))
	}
	// Newest first: ids 230 down to 1.
	for i, it := range items {
		if want := fmt.Sprintf("-1_%d", 230-i); it.ID != want {
			t.Fatalf("items[%d].ID = %q, want %q", i, it.ID, want)
		}
	}
	if mock.MaxInFlight() < 2 {
		t.Errorf("MaxInFlight() = %d, want concurrent pages", mock.MaxInFlight())
	}
}
