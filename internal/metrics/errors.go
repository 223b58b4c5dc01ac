package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"unicode"
)

var friendlyAliases = map[string]string{
	"*dispatch.HTTPError":            "HTTP error response",
	"dispatch.HTTPError":             "HTTP error response",
	"*url.Error":                     "Request URL error",
	"url.Error":                      "Request URL error",
	"*context.deadlineExceededError": "Context deadline exceeded",
	"context.deadlineExceededError":  "Context deadline exceeded",
	"context.deadlineExceeded":       "Context deadline exceeded",
	"*context.deadlineExceeded":      "Context deadline exceeded",
}

// statusError is implemented by errors that carry the HTTP status of a
// rejected response.
type statusError interface {
	HTTPStatus() int
}

// errorKind labels a failed sample for the error breakdown. Rejected
// responses are grouped by status code.
func errorKind(s Sample) string {
	if s.Err == nil {
		if s.StatusCode > 0 {
			return "HTTP " + strconv.Itoa(s.StatusCode)
		}
		return "Unknown error"
	}
	var se statusError
	if errors.As(s.Err, &se) && se.HTTPStatus() > 0 {
		return "HTTP " + strconv.Itoa(se.HTTPStatus())
	}
	if errors.Is(s.Err, context.DeadlineExceeded) {
		return "Context deadline exceeded"
	}
	if errors.Is(s.Err, context.Canceled) {
		return "Context canceled"
	}
	if kind := networkErrorKind(s.Err); kind != "" {
		return kind
	}
	return FriendlyErrorName(fmt.Sprintf("%T", s.Err))
}

// networkErrorKind names the transport failure beneath a client error, which
// otherwise all surface as *url.Error.
func networkErrorKind(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "Connection reset"
	case errors.Is(err, syscall.EPIPE):
		return "Broken pipe"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS lookup failed"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op != "" {
		return "Network " + opErr.Op + " error"
	}
	return ""
}

func statusCodeLabel(code int) string {
	return strconv.Itoa(code)
}

// FriendlyErrorName returns a human-friendly label for a Go error type.
func FriendlyErrorName(typeName string) string {
	cleaned := strings.TrimSpace(typeName)
	if cleaned == "" {
		return "Unknown error"
	}

	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}

	cleaned = strings.TrimPrefix(cleaned, "*")
	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}
	if idx := strings.LastIndex(cleaned, "/"); idx != -1 {
		cleaned = cleaned[idx+1:]
	}

	pkg := ""
	name := cleaned
	if idx := strings.Index(name, "."); idx != -1 {
		pkg = name[:idx]
		name = name[idx+1:]
	}

	pretty := humanizeTypeName(name)
	if pretty == "" {
		pretty = name
	}

	lowerPkg := strings.ToLower(pkg)
	lowerPretty := strings.ToLower(pretty)

	switch {
	case lowerPkg == "context" && strings.Contains(lowerPretty, "deadline"):
		return "Context deadline exceeded"
	case lowerPkg == "dispatch" && strings.Contains(lowerPretty, "http error"):
		return "HTTP error response"
	case lowerPkg == "url" && strings.Contains(lowerPretty, "error"):
		return "Request URL error"
	}

	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

func humanizeTypeName(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current []rune
	runes := []rune(name)

	appendWord := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if isAllUpper(word) {
			words = append(words, word)
		} else {
			words = append(words, capitalize(word))
		}
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				appendWord()
			} else if unicode.IsDigit(r) && !unicode.IsDigit(prev) {
				appendWord()
			}
		}
		current = append(current, r)
	}
	appendWord()

	return strings.Join(words, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
