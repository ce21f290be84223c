package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rdanvers/pagecheck/internal/browser"
)

// Default timeouts and delays for a verification run
const (
	DefaultNavTimeout      = 30 * time.Second
	DefaultSelectorTimeout = 30 * time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultMoveDelay       = time.Second
)

// Point is a pointer coordinate on the page.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Viewport is the rendering surface size, applied before navigation.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Request describes a single page verification: where to navigate, what DOM
// condition marks the page as ready, and where to write the screenshot.
type Request struct {
	TargetURL         string    `json:"target_url"`
	ReadySelector     string    `json:"ready_selector"`
	OutputPath        string    `json:"output_path"`
	Viewport          *Viewport `json:"viewport,omitempty"`
	InteractionPoints []Point   `json:"interaction_points,omitempty"`
	FullPage          bool      `json:"full_page,omitempty"`

	// SettleDelay zero selects the default; a negative value disables the
	// settle pause entirely.
	SettleDelay     time.Duration `json:"-"`
	MoveDelay       time.Duration `json:"-"`
	NavTimeout      time.Duration `json:"-"`
	SelectorTimeout time.Duration `json:"-"`

	// ThumbnailWidth, when positive, also writes a resized copy of the
	// screenshot next to OutputPath.
	ThumbnailWidth int `json:"thumbnail_width,omitempty"`
}

// Result is the outcome of a verification run. ScreenshotPath is set iff the
// run succeeded; Kind and Error describe the failure otherwise.
type Result struct {
	Succeeded      bool   `json:"succeeded"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	ThumbnailPath  string `json:"thumbnail_path,omitempty"`
	Kind           Kind   `json:"error_kind,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Browser is the browser surface the verifier drives.
type Browser interface {
	OpenPage(ctx context.Context, url string, opts browser.PageOptions) (*rod.Page, error)
}

// Verifier drives a browser through a fixed navigate / wait / interact /
// capture sequence. It is safe for sequential reuse across requests; each
// Verify call owns exactly one page.
type Verifier struct {
	browser Browser
}

// NewVerifier creates a verifier on top of a running browser.
func NewVerifier(b Browser) *Verifier {
	return &Verifier{browser: b}
}

// withDefaults fills zero-valued timeouts and delays.
func (r Request) withDefaults() Request {
	if r.NavTimeout <= 0 {
		r.NavTimeout = DefaultNavTimeout
	}
	if r.SelectorTimeout <= 0 {
		r.SelectorTimeout = DefaultSelectorTimeout
	}
	if r.SettleDelay == 0 {
		r.SettleDelay = DefaultSettleDelay
	}
	if r.MoveDelay <= 0 {
		r.MoveDelay = DefaultMoveDelay
	}
	return r
}

// validate checks the request invariants before any browser work starts.
func (r Request) validate() *Error {
	if r.TargetURL == "" {
		return newError(KindNavigation, r, errors.New("target URL is required"))
	}
	if r.ReadySelector == "" {
		return newError(KindElementNotFound, r, errors.New("ready selector is required"))
	}
	if r.OutputPath == "" {
		return newError(KindCapture, r, errors.New("output path is required"))
	}
	return nil
}

// Verify runs the verification sequence. All failures are classified and
// returned inside the Result; the page is closed on every exit path. No step
// is retried.
func (v *Verifier) Verify(ctx context.Context, req Request) Result {
	req = req.withDefaults()

	if verr := req.validate(); verr != nil {
		return failure(verr)
	}

	opts := browser.PageOptions{
		Timeout:     req.NavTimeout,
		WaitForLoad: true,
	}
	if req.Viewport != nil {
		opts.Viewport = &browser.Viewport{
			Width:  req.Viewport.Width,
			Height: req.Viewport.Height,
		}
	}

	page, err := v.browser.OpenPage(ctx, req.TargetURL, opts)
	if err != nil {
		var nerr *browser.NavigationError
		if errors.As(err, &nerr) {
			return failure(newError(KindNavigation, req, err))
		}
		return failure(newError(KindLaunch, req, err))
	}
	defer page.Close()

	if _, err := page.Timeout(req.SelectorTimeout).Element(req.ReadySelector); err != nil {
		return failure(newError(KindElementNotFound, req, err))
	}

	// Best-effort pause so animations triggered by the selector appearing
	// have a chance to settle before capture.
	if req.SettleDelay > 0 {
		if err := sleep(ctx, req.SettleDelay); err != nil {
			return failure(newError(KindCapture, req, err))
		}
	}

	for _, pt := range req.InteractionPoints {
		if err := page.Mouse.MoveTo(proto.Point{X: float64(pt.X), Y: float64(pt.Y)}); err != nil {
			return failure(newError(KindCapture, req, fmt.Errorf("pointer move to (%d,%d) failed: %w", pt.X, pt.Y, err)))
		}
		if err := sleep(ctx, req.MoveDelay); err != nil {
			return failure(newError(KindCapture, req, err))
		}
	}

	shot, err := page.Screenshot(req.FullPage, nil)
	if err != nil {
		return failure(newError(KindCapture, req, err))
	}

	if err := writeScreenshot(req.OutputPath, shot); err != nil {
		return failure(newError(KindCapture, req, err))
	}

	result := Result{
		Succeeded:      true,
		ScreenshotPath: req.OutputPath,
	}

	if req.ThumbnailWidth > 0 {
		thumbPath, err := writeThumbnail(req.OutputPath, shot, req.ThumbnailWidth)
		if err != nil {
			// The primary artifact exists; a thumbnail failure is not fatal.
			log.Printf("Warning: failed to write thumbnail for %s: %v", req.OutputPath, err)
		} else {
			result.ThumbnailPath = thumbPath
		}
	}

	log.Printf("Verified %s (selector %q), screenshot at %s", req.TargetURL, req.ReadySelector, req.OutputPath)
	return result
}

// Once launches a dedicated headless browser, runs a single verification, and
// releases the browser on every exit path.
func Once(ctx context.Context, req Request) Result {
	return onceWith(ctx, req, browser.NewManager(""))
}

func onceWith(ctx context.Context, req Request, mgr *browser.Manager) Result {
	if err := mgr.Start(); err != nil {
		return failure(newError(KindLaunch, req, err))
	}
	defer func() {
		if err := mgr.Stop(); err != nil {
			log.Printf("Warning: failed to stop browser: %v", err)
		}
	}()

	return NewVerifier(mgr).Verify(ctx, req)
}

func failure(verr *Error) Result {
	log.Printf("Verification failed: %v", verr)
	return Result{
		Succeeded: false,
		Kind:      verr.Kind,
		Error:     verr.Error(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
