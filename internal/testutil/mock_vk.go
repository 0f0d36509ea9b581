// Package testutil provides testing utilities for the bilingual corpus crawler.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPost is one wall post served by the mock.
type MockPost struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Date    int64  `json:"date"`
	Text    string `json:"text"`
}

// MockFailure defines how the mock fails a request for a given offset.
type MockFailure struct {
	// StatusCode, when not 0 or 200, is returned with Body.
	StatusCode int
	Body       string
	// ErrorCode, when set, returns a VK error envelope with HTTP 200.
	ErrorCode int
	ErrorMsg  string
}

// MockRequest records one request received by the mock.
type MockRequest struct {
	Offset int
	Count  int
	Query  url.Values
}

// MockVK is a configurable mock of the VK wall.search method.
type MockVK struct {
	server *httptest.Server
	mu     sync.Mutex

	posts    []MockPost // newest first, like wall.search
	total    int        // reported count; -1 means len(posts)
	delays   map[int]time.Duration
	failures map[int]MockFailure
	extra    map[int]int // offset -> items to drop from the window

	// Tracking
	requests    []MockRequest
	inFlight    int
	maxInFlight int
}

// MethodPath is the path served by the mock.
const MethodPath = "/method/wall.search"

// NewMockVK creates a new mock VK server.
func NewMockVK() *MockVK {
	mock := &MockVK{
		total:    -1,
		delays:   make(map[int]time.Duration),
		failures: make(map[int]MockFailure),
		extra:    make(map[int]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(MethodPath, mock.handle)
	mock.server = httptest.NewServer(mux)

	return mock
}

// BaseURL returns the API root to configure the client with.
func (m *MockVK) BaseURL() string {
	return m.server.URL + "/method"
}

// Close shuts down the mock server.
func (m *MockVK) Close() {
	m.server.Close()
}

// Reset clears tracking and failure injection, keeping the posts.
func (m *MockVK) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.maxInFlight = 0
	m.delays = make(map[int]time.Duration)
	m.failures = make(map[int]MockFailure)
	m.extra = make(map[int]int)
}

// SetPosts replaces the wall. posts must be newest first.
func (m *MockVK) SetPosts(posts []MockPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append([]MockPost(nil), posts...)
}

// Publish adds posts on top of the wall, as newly published items.
func (m *MockVK) Publish(newest ...MockPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(append([]MockPost(nil), newest...), m.posts...)
}

// SetTotal overrides the reported result count. Negative restores len(posts).
func (m *MockVK) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// SetDelay delays the response for requests starting at offset.
func (m *MockVK) SetDelay(offset int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[offset] = d
}

// SetFailure fails requests starting at offset.
func (m *MockVK) SetFailure(offset int, f MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[offset] = f
}

// SetShortPage drops n items from the window served at offset.
func (m *MockVK) SetShortPage(offset, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra[offset] = n
}

// Requests returns the requests received so far.
func (m *MockVK) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockVK) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (m *MockVK) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func (m *MockVK) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	count, _ := strconv.Atoi(q.Get("count"))

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{Offset: offset, Count: count, Query: q})
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delays[offset]
	failure, failing := m.failures[offset]
	drop := m.extra[offset]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if q.Get("access_token") == "" {
		writeAPIError(w, 5, "User authorization failed: no access_token passed.")
		return
	}

	if failing {
		if failure.ErrorCode != 0 {
			writeAPIError(w, failure.ErrorCode, failure.ErrorMsg)
			return
		}
		w.WriteHeader(failure.StatusCode)
		if failure.Body != "" {
			w.Write([]byte(failure.Body))
		}
		return
	}

	m.mu.Lock()
	total := m.total
	if total < 0 {
		total = len(m.posts)
	}
	window := []MockPost{}
	if offset < len(m.posts) {
		end := offset + count
		if end > len(m.posts) {
			end = len(m.posts)
		}
		window = append(window, m.posts[offset:end]...)
	}
	m.mu.Unlock()

	if drop > 0 && drop <= len(window) {
		window = window[:len(window)-drop]
	}

	json.NewEncoder(w).Encode(map[string]any{
		"response": map[string]any{
			"count": total,
			"items": window,
		},
	})
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"error_code": code,
			"error_msg":  msg,
		},
	})
}

// NewsText builds the text of a well-formed bilingual news post: marker line,
// then each pair in source order (Chinese first, like the community posts).
func NewsText(pairs ...[2]string) string {
	lines := []string{"#Новости_на_двух_языках"}
	for _, p := range pairs {
		lines = append(lines, p[0], p[1])
	}
	return strings.Join(lines, "\n")
}

// GeneratePosts returns n well-formed posts, newest first, with ids n..1 and
// one day between consecutive posts.
func GeneratePosts(n int, start time.Time) []MockPost {
	posts := make([]MockPost, 0, n)
	for i := n; i >= 1; i-- {
		posts = append(posts, MockPost{
			ID:      int64(i),
			OwnerID: -1,
			Date:    start.Add(time.Duration(i) * 24 * time.Hour).Unix(),
			Text: NewsText(
				[2]string{"新闻" + strconv.Itoa(i), "Новость " + strconv.Itoa(i)},
				[2]string{"正文" + strconv.Itoa(i), "Текст " + strconv.Itoa(i)},
			),
		})
	}
	return posts
}
