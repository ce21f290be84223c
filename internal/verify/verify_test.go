package verify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/rdanvers/pagecheck/internal/browser"
)

// newTestVerifier starts a shared headless browser for a test, skipping when
// no browser binary is installed on the host.
func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()

	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser binary installed")
	}

	mgr := browser.NewManager("")
	if err := mgr.Start(); err != nil {
		t.Fatalf("Failed to start browser: %v", err)
	}
	t.Cleanup(func() {
		if err := mgr.Stop(); err != nil {
			t.Logf("Failed to stop browser: %v", err)
		}
	})

	return NewVerifier(mgr)
}

func testServer(t *testing.T, html string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stubBrowser fails page opening with a fixed error.
type stubBrowser struct {
	err error
}

func (b stubBrowser) OpenPage(ctx context.Context, url string, opts browser.PageOptions) (*rod.Page, error) {
	return nil, b.err
}

func TestVerifyClassifiesOpenFailures(t *testing.T) {
	req := Request{
		TargetURL:     "http://127.0.0.1:1",
		ReadySelector: "body",
		OutputPath:    filepath.Join(t.TempDir(), "shot.png"),
	}

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"navigation failure", &browser.NavigationError{URL: req.TargetURL, Err: errors.New("connection refused")}, KindNavigation},
		{"page setup failure", errors.New("failed to create new page"), KindLaunch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewVerifier(stubBrowser{err: tc.err})

			result := v.Verify(context.Background(), req)
			if result.Succeeded {
				t.Fatalf("Expected failure")
			}
			if result.Kind != tc.want {
				t.Errorf("Kind = %q, want %q", result.Kind, tc.want)
			}
		})
	}
}

func TestVerifySuccess(t *testing.T) {
	v := newTestVerifier(t)
	srv := testServer(t, `<html><body><div id="ready">loaded</div></body></html>`)

	out := filepath.Join(t.TempDir(), "shot.png")
	result := v.Verify(context.Background(), Request{
		TargetURL:     srv.URL,
		ReadySelector: "#ready",
		OutputPath:    out,
		SettleDelay:   10 * time.Millisecond,
	})

	if !result.Succeeded {
		t.Fatalf("Verification failed: %s (%s)", result.Error, result.Kind)
	}
	if result.ScreenshotPath != out {
		t.Errorf("ScreenshotPath = %q, want %q", result.ScreenshotPath, out)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Screenshot not written: %v", err)
	}
	if info.Size() == 0 {
		t.Errorf("Screenshot file is empty")
	}
}

func TestVerifyWithViewportAndMoves(t *testing.T) {
	v := newTestVerifier(t)
	srv := testServer(t, `<html><body><button id="go">go</button></body></html>`)

	out := filepath.Join(t.TempDir(), "shot.png")
	result := v.Verify(context.Background(), Request{
		TargetURL:         srv.URL,
		ReadySelector:     "#go",
		OutputPath:        out,
		Viewport:          &Viewport{Width: 800, Height: 600},
		InteractionPoints: []Point{{X: 10, Y: 10}, {X: 50, Y: 50}},
		SettleDelay:       10 * time.Millisecond,
		MoveDelay:         10 * time.Millisecond,
	})

	if !result.Succeeded {
		t.Fatalf("Verification failed: %s (%s)", result.Error, result.Kind)
	}
}

func TestVerifyWritesThumbnail(t *testing.T) {
	v := newTestVerifier(t)
	srv := testServer(t, `<html><body><div id="ready">ok</div></body></html>`)

	out := filepath.Join(t.TempDir(), "shot.png")
	result := v.Verify(context.Background(), Request{
		TargetURL:      srv.URL,
		ReadySelector:  "#ready",
		OutputPath:     out,
		SettleDelay:    10 * time.Millisecond,
		ThumbnailWidth: 100,
	})

	if !result.Succeeded {
		t.Fatalf("Verification failed: %s (%s)", result.Error, result.Kind)
	}
	if result.ThumbnailPath == "" {
		t.Fatalf("Thumbnail path not set")
	}
	if _, err := os.Stat(result.ThumbnailPath); err != nil {
		t.Errorf("Thumbnail not written: %v", err)
	}
}

func TestVerifyOverwritesExisting(t *testing.T) {
	v := newTestVerifier(t)
	srv := testServer(t, `<html><body><div id="ready">ok</div></body></html>`)

	out := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(out, []byte("stale"), 0644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	result := v.Verify(context.Background(), Request{
		TargetURL:     srv.URL,
		ReadySelector: "#ready",
		OutputPath:    out,
		SettleDelay:   10 * time.Millisecond,
	})

	if !result.Succeeded {
		t.Fatalf("Verification failed: %s (%s)", result.Error, result.Kind)
	}

	data, _ := os.ReadFile(out)
	if string(data) == "stale" {
		t.Errorf("Existing file was not overwritten")
	}
}

func TestVerifyNavigationError(t *testing.T) {
	v := newTestVerifier(t)

	// Grab a port with nothing listening on it
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	deadURL := "http://" + l.Addr().String()
	l.Close()

	out := filepath.Join(t.TempDir(), "shot.png")
	result := v.Verify(context.Background(), Request{
		TargetURL:     deadURL,
		ReadySelector: "body",
		OutputPath:    out,
		NavTimeout:    5 * time.Second,
	})

	if result.Succeeded {
		t.Fatalf("Expected navigation failure")
	}
	if result.Kind != KindNavigation {
		t.Errorf("Kind = %q, want %q", result.Kind, KindNavigation)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("No screenshot should be written on failure")
	}
}

func TestVerifyElementNotFound(t *testing.T) {
	v := newTestVerifier(t)
	srv := testServer(t, `<html><body><div id="other">no match here</div></body></html>`)

	out := filepath.Join(t.TempDir(), "shot.png")
	result := v.Verify(context.Background(), Request{
		TargetURL:       srv.URL,
		ReadySelector:   "#missing",
		OutputPath:      out,
		SelectorTimeout: 2 * time.Second,
	})

	if result.Succeeded {
		t.Fatalf("Expected selector failure")
	}
	if result.Kind != KindElementNotFound {
		t.Errorf("Kind = %q, want %q", result.Kind, KindElementNotFound)
	}
}

// Validation runs before any browser work, so these need no browser.
func TestVerifyValidation(t *testing.T) {
	v := NewVerifier(nil)

	cases := []struct {
		name string
		req  Request
		want Kind
	}{
		{"empty url", Request{ReadySelector: "body", OutputPath: "out.png"}, KindNavigation},
		{"empty selector", Request{TargetURL: "https://example.com", OutputPath: "out.png"}, KindElementNotFound},
		{"empty output", Request{TargetURL: "https://example.com", ReadySelector: "body"}, KindCapture},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Verify(context.Background(), tc.req)
			if result.Succeeded {
				t.Fatalf("Expected validation failure")
			}
			if result.Kind != tc.want {
				t.Errorf("Kind = %q, want %q", result.Kind, tc.want)
			}
		})
	}
}

func TestRequestDefaults(t *testing.T) {
	req := Request{}.withDefaults()

	if req.NavTimeout != DefaultNavTimeout {
		t.Errorf("NavTimeout = %v", req.NavTimeout)
	}
	if req.SelectorTimeout != DefaultSelectorTimeout {
		t.Errorf("SelectorTimeout = %v", req.SelectorTimeout)
	}
	if req.MoveDelay != DefaultMoveDelay {
		t.Errorf("MoveDelay = %v", req.MoveDelay)
	}
	if req.SettleDelay != DefaultSettleDelay {
		t.Errorf("SettleDelay = %v, want default %v", req.SettleDelay, DefaultSettleDelay)
	}

	// Explicit values survive
	req = Request{NavTimeout: time.Second, SelectorTimeout: 2 * time.Second, SettleDelay: 100 * time.Millisecond}.withDefaults()
	if req.NavTimeout != time.Second || req.SelectorTimeout != 2*time.Second {
		t.Errorf("Explicit timeouts overridden: %v / %v", req.NavTimeout, req.SelectorTimeout)
	}
	if req.SettleDelay != 100*time.Millisecond {
		t.Errorf("Explicit settle overridden: %v", req.SettleDelay)
	}

	// Negative settle disables the pause
	req = Request{SettleDelay: -1}.withDefaults()
	if req.SettleDelay >= 0 {
		t.Errorf("Negative settle should be kept, got %v", req.SettleDelay)
	}
}

func TestOnceReleasesBrowser(t *testing.T) {
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser binary installed")
	}

	srv := testServer(t, `<html><body><div id="ready">ok</div></body></html>`)

	// Success path
	mgr := browser.NewManager("")
	result := onceWith(context.Background(), Request{
		TargetURL:     srv.URL,
		ReadySelector: "#ready",
		OutputPath:    filepath.Join(t.TempDir(), "shot.png"),
		SettleDelay:   10 * time.Millisecond,
	}, mgr)

	if !result.Succeeded {
		t.Fatalf("Verification failed: %s (%s)", result.Error, result.Kind)
	}
	if mgr.IsRunning() {
		t.Errorf("Browser still running after a successful run")
	}

	// Failure path
	mgr = browser.NewManager("")
	result = onceWith(context.Background(), Request{
		TargetURL:       srv.URL,
		ReadySelector:   "#missing",
		OutputPath:      filepath.Join(t.TempDir(), "shot.png"),
		SelectorTimeout: 2 * time.Second,
	}, mgr)

	if result.Succeeded {
		t.Fatalf("Expected selector failure")
	}
	if mgr.IsRunning() {
		t.Errorf("Browser still running after a failed run")
	}
}
