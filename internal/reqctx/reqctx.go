package reqctx

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	// DefaultMaxInputLength caps header-derived strings before they enter
	// log records.
	DefaultMaxInputLength = 256

	// MaxUserAgentLength allows longer user agent strings; real browsers
	// routinely exceed 256 bytes.
	MaxUserAgentLength = 512
)

// UserFunc resolves the authenticated user for a request. Return "" when
// there is no user.
type UserFunc func(r *http.Request) string

// RequestInfo holds the per-request fields stamped onto log records.
type RequestInfo struct {
	RequestID  string
	RemoteAddr string
	UserAgent  string
	User       string
	Method     string
	Path       string
	Referer    string
	Host       string
}

type ctxKey struct{}

// NewContext returns a context carrying info.
func NewContext(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext extracts the RequestInfo from ctx, or nil when absent.
func FromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return info
}

// Capture builds a RequestInfo from an incoming request. clientIP is the
// already-resolved client address, requestIDHeader names the header
// consulted before a fresh id is generated, and userFn may be nil.
func Capture(r *http.Request, clientIP, requestIDHeader string, userFn UserFunc) *RequestInfo {
	id := SanitizeString(r.Header.Get(requestIDHeader), DefaultMaxInputLength)
	if id == "" {
		id = uuid.NewString()
	}

	info := &RequestInfo{
		RequestID:  id,
		RemoteAddr: clientIP,
		UserAgent:  SanitizeString(r.UserAgent(), MaxUserAgentLength),
		Method:     r.Method,
		Path:       SanitizeString(r.URL.Path, DefaultMaxInputLength),
		Referer:    SanitizeString(r.Referer(), DefaultMaxInputLength),
		Host:       SanitizeString(r.Host, DefaultMaxInputLength),
	}
	if userFn != nil {
		info.User = SanitizeString(userFn(r), DefaultMaxInputLength)
	}
	return info
}

// SanitizeString removes non-printable characters (except space), trims
// whitespace, and truncates to maxLength.
func SanitizeString(s string, maxLength int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || (unicode.IsPrint(r) && r != '�') {
			return r
		}
		return -1
	}, s)
}
