package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestForwardingTransport(t *testing.T) {
	tests := []struct {
		name     string
		ctxToken string
		preset   string
		want     string
	}{
		{"token in context", "tok-A", "", "Bearer tok-A"},
		{"no token", "", "", ""},
		{"no token keeps caller header", "", "Bearer preset", "Bearer preset"},
		{"context token replaces header", "tok-A", "Bearer preset", "Bearer tok-A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent string
			tr := &ForwardingTransport{Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				sent = r.Header.Get("Authorization")
				return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
			})}

			ctx := WithToken(context.Background(), tt.ctxToken)
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://tools.test/mcp", nil)
			if tt.preset != "" {
				req.Header.Set("Authorization", tt.preset)
			}

			if _, err := tr.RoundTrip(req); err != nil {
				t.Fatalf("RoundTrip() error = %v", err)
			}
			if sent != tt.want {
				t.Errorf("Authorization = %q, want %q", sent, tt.want)
			}
			if got := req.Header.Get("Authorization"); got != tt.preset {
				t.Errorf("caller request mutated: Authorization = %q", got)
			}
		})
	}
}

// Every in-flight request reaches the server before any is answered, so
// requests on the shared client are fully interleaved.
func TestDispatcher_ConcurrentRequestsKeepTheirOwnToken(t *testing.T) {
	const n = 16

	var arrived sync.WaitGroup
	arrived.Add(n)
	allIn := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allIn)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived.Done()
		select {
		case <-allIn:
		case <-time.After(5 * time.Second):
		}
		_, _ = io.WriteString(w, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	client := NewDispatcher(DispatcherOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("token-%d", i)
			ctx := WithToken(context.Background(), token)
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(resp.Body)
			if got := string(body); got != "Bearer "+token {
				errs <- fmt.Errorf("request %d saw %q", i, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestNewDispatcher_Defaults(t *testing.T) {
	client := NewDispatcher(DispatcherOptions{})
	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", client.Timeout)
	}
	if _, ok := client.Transport.(*ForwardingTransport); !ok {
		t.Errorf("Transport = %T, want *ForwardingTransport", client.Transport)
	}
}

func TestNewDispatcher_Instrumented(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	metrics := newRecordingMetrics()
	client := NewDispatcher(DispatcherOptions{Timeout: time.Second, Metrics: metrics})

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if len(metrics.dispatches) != 1 || metrics.dispatches[0] != http.StatusAccepted {
		t.Errorf("dispatches = %v, want [202]", metrics.dispatches)
	}
}
