//go:build functional
// +build functional

package functional

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// RecordedRequest captures what a mock backend saw.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Host     string
	Header   http.Header
	Body     []byte
}

// MockBackend is a backend server recording the requests it receives.
type MockBackend struct {
	Name   string
	Server *httptest.Server
	URL    string

	mu       sync.Mutex
	status   int
	body     string
	delay    time.Duration
	requests []RecordedRequest
}

// NewMockBackend starts a recording backend answering 200 "ok" until
// configured otherwise.
func NewMockBackend(name string) *MockBackend {
	b := &MockBackend{
		Name:   name,
		status: http.StatusOK,
		body:   "ok",
	}

	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	b.URL = b.Server.URL
	return b
}

func (b *MockBackend) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Host:     r.Host,
		Header:   r.Header.Clone(),
		Body:     body,
	})
	status := b.status
	response := b.body
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("X-Backend", b.Name)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response)
}

// Respond configures the status and body of subsequent responses.
func (b *MockBackend) Respond(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.body = body
}

// Delay makes the backend sleep before answering.
func (b *MockBackend) Delay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// LastRequest returns the most recent request, or nil when none arrived.
func (b *MockBackend) LastRequest() *RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return nil
	}
	req := b.requests[len(b.requests)-1]
	return &req
}

// RequestCount returns how many requests the backend received.
func (b *MockBackend) RequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Close shuts the backend down.
func (b *MockBackend) Close() {
	b.Server.Close()
}
