package verify

import "fmt"

// Kind classifies a verification failure by the step that produced it.
type Kind string

const (
	// KindLaunch means the browser could not be started or a page could not be opened.
	KindLaunch Kind = "launch"
	// KindNavigation means the target URL was unreachable or did not load in time.
	KindNavigation Kind = "navigation"
	// KindElementNotFound means the ready selector never matched within the timeout.
	KindElementNotFound Kind = "element_not_found"
	// KindCapture means the screenshot could not be taken or written to disk.
	KindCapture Kind = "capture"
)

// Error is a classified verification failure with the URL and selector context.
type Error struct {
	Kind     Kind
	URL      string
	Selector string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch e.Kind {
	case KindElementNotFound:
		return fmt.Sprintf("%s: selector %q on %s: %v", e.Kind, e.Selector, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, req Request, err error) *Error {
	return &Error{
		Kind:     kind,
		URL:      req.TargetURL,
		Selector: req.ReadySelector,
		Err:      err,
	}
}
