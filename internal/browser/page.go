package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageOptions represents options applied to a page before navigation
type PageOptions struct {
	Timeout     time.Duration `json:"timeout"`
	WaitForLoad bool          `json:"wait_for_load"`
	UserAgent   string        `json:"user_agent,omitempty"`
	Viewport    *Viewport     `json:"viewport,omitempty"`
}

// Viewport is the rendering surface size
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultPageOptions returns default page options
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Timeout:     30 * time.Second,
		WaitForLoad: true,
	}
}

// NavigationError reports a failure that happened after the page was created,
// while reaching the target URL.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("failed to reach %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// OpenPage creates a page, applies options, and navigates to the URL.
// Navigation failures are returned as *NavigationError so callers can tell
// them apart from page setup failures. The caller owns the returned page.
func (m *Manager) OpenPage(ctx context.Context, url string, opts PageOptions) (*rod.Page, error) {
	page, err := m.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	if err := applyPageOptions(page, opts); err != nil {
		page.Close()
		return nil, err
	}

	nav := page
	if opts.Timeout > 0 {
		nav = page.Timeout(opts.Timeout)
	}

	if err := nav.Navigate(url); err != nil {
		page.Close()
		return nil, &NavigationError{URL: url, Err: err}
	}

	if opts.WaitForLoad {
		if err := nav.WaitLoad(); err != nil {
			page.Close()
			return nil, &NavigationError{URL: url, Err: fmt.Errorf("page did not finish loading: %w", err)}
		}
	}

	return page, nil
}

func applyPageOptions(page *rod.Page, opts PageOptions) error {
	if opts.Viewport != nil {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Viewport.Width,
			Height:            opts.Viewport.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	return nil
}
