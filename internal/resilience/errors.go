package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorKind classifies fetch failures so callers can decide between
// retrying, skipping a page, and abandoning the run.
type ErrorKind int

const (
	// KindTransient covers timeouts, connection resets and 408/5xx responses.
	KindTransient ErrorKind = iota
	// KindRateLimited is a 429 from the source.
	KindRateLimited
	// KindPermanent covers other 4xx responses, unparseable bodies and challenge pages.
	KindPermanent
	// KindFatal means connectivity to the source is lost.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FetchError is the typed error returned by the fetch client.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch error (http %d) for %s: %v", e.Kind, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("%s fetch error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError of the given kind.
func NewFetchError(kind ErrorKind, statusCode int, url string, err error) *FetchError {
	return &FetchError{Kind: kind, StatusCode: statusCode, URL: url, Err: err}
}

// KindOf returns the kind of err. Errors that are not a FetchError are
// classified by inspecting the network error chain.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindFatal
	}
	if IsTransient(err) {
		return KindTransient
	}
	return KindPermanent
}

// KindForStatus maps an HTTP status code onto an ErrorKind. The boolean is
// false for statuses that are not failures.
func KindForStatus(statusCode int) (ErrorKind, bool) {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited, true
	case statusCode == http.StatusRequestTimeout, statusCode >= 500:
		return KindTransient, true
	case statusCode >= 400:
		return KindPermanent, true
	default:
		return 0, false
	}
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err means the run cannot continue.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}

// IsTransient returns true if err matches common transient network error
// patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from the HTTP client lose their type.
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
	"socks connect",
}
