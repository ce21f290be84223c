package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"closed net conn", net.ErrClosed, true},
		{"wrapped closed conn", fmt.Errorf("cdp: %w", net.ErrClosed), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"other", errors.New("no such element"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isConnectionError(tc.err); got != tc.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestNavigationErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	nerr := &NavigationError{URL: "http://127.0.0.1:1", Err: cause}

	if !errors.Is(nerr, cause) {
		t.Errorf("errors.Is should reach the cause through Unwrap")
	}

	var target *NavigationError
	wrapped := fmt.Errorf("open page: %w", nerr)
	if !errors.As(wrapped, &target) {
		t.Errorf("errors.As should find NavigationError through wrapping")
	}
}

func TestDefaultPageOptions(t *testing.T) {
	opts := DefaultPageOptions()

	if opts.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", opts.Timeout)
	}
	if !opts.WaitForLoad {
		t.Errorf("WaitForLoad should default to true")
	}
	if opts.Viewport != nil {
		t.Errorf("Viewport should default to nil")
	}
}

func startTestManager(t *testing.T) *Manager {
	t.Helper()

	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser binary installed")
	}

	mgr := NewManager("")
	if err := mgr.Start(); err != nil {
		t.Fatalf("Failed to start browser: %v", err)
	}
	t.Cleanup(func() {
		if err := mgr.Stop(); err != nil {
			t.Logf("Failed to stop browser: %v", err)
		}
	})

	return mgr
}

func TestOpenPage(t *testing.T) {
	mgr := startTestManager(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>hello</p></body></html>`))
	}))
	defer srv.Close()

	page, err := mgr.OpenPage(context.Background(), srv.URL, PageOptions{
		Timeout:     10 * time.Second,
		WaitForLoad: true,
		UserAgent:   "pagecheck-test",
		Viewport:    &Viewport{Width: 800, Height: 600},
	})
	if err != nil {
		t.Fatalf("OpenPage failed: %v", err)
	}
	defer page.Close()

	obj, err := page.Eval(`() => navigator.userAgent`)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if obj.Value.Str() != "pagecheck-test" {
		t.Errorf("UserAgent = %q, want pagecheck-test", obj.Value.Str())
	}

	obj, err = page.Eval(`() => window.innerWidth`)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if obj.Value.Int() != 800 {
		t.Errorf("Viewport width = %d, want 800", obj.Value.Int())
	}
}

func TestOpenPageNavigationError(t *testing.T) {
	mgr := startTestManager(t)

	// Grab a port with nothing listening on it
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	deadURL := "http://" + l.Addr().String()
	l.Close()

	_, err = mgr.OpenPage(context.Background(), deadURL, PageOptions{
		Timeout:     5 * time.Second,
		WaitForLoad: true,
	})
	if err == nil {
		t.Fatalf("Expected error for unreachable target")
	}

	var nerr *NavigationError
	if !errors.As(err, &nerr) {
		t.Errorf("Expected NavigationError, got %T: %v", err, err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser binary installed")
	}

	mgr := NewManager("")

	if mgr.IsRunning() {
		t.Fatalf("New manager should not be running")
	}
	if mgr.GetEndpoint() != "" {
		t.Fatalf("New manager should have no endpoint")
	}

	if err := mgr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !mgr.IsRunning() {
		t.Errorf("Manager should be running after Start")
	}
	if mgr.GetEndpoint() == "" {
		t.Errorf("Endpoint should be set after Start")
	}

	// Start is idempotent
	if err := mgr.Start(); err != nil {
		t.Errorf("Second Start failed: %v", err)
	}

	page, err := mgr.NewPage(context.Background())
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	if err := page.Close(); err != nil {
		t.Errorf("Page close failed: %v", err)
	}

	if err := mgr.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if mgr.IsRunning() {
		t.Errorf("Manager should not be running after Stop")
	}

	// Stop is idempotent
	if err := mgr.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}
