package providers

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
)

// CompletionRequest is one single-turn model call.
type CompletionRequest struct {
	Purpose     string // Prompt ID, for logs and the mock completer
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Completer turns a prompt into model text. Errors carry the HTTP status as
// an *engine.ProviderError whenever the SDK exposes one.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	DefaultModel() string
}

var statusCodeRe = regexp.MustCompile(`(?i)status(?:\s*code)?[:=\s]+(\d{3})\b`)

// bareStatusRe only matches a code standing alone, so "max_tokens 4040" or
// "id 15003" are not read as statuses.
var bareStatusRe = regexp.MustCompile(`\b(?:400|401|402|403|404|429|500|502|503|504)\b`)

// bareStatusPriority decides between several bare codes in one message.
var bareStatusPriority = []int{
	http.StatusTooManyRequests,
	http.StatusNotFound,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusBadRequest,
	http.StatusPaymentRequired,
}

// extractErrorMetadata extracts HTTP status code and Retry-After from an SDK
// error. Neither SDK exposes a stable typed error across versions, so the
// message is parsed.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	var retryAfter string

	if m := statusCodeRe.FindStringSubmatch(errStr); m != nil {
		httpStatus, _ = strconv.Atoi(m[1])
	} else {
		found := make(map[int]bool)
		for _, m := range bareStatusRe.FindAllString(errStr, -1) {
			code, _ := strconv.Atoi(m)
			found[code] = true
		}
		for _, code := range bareStatusPriority {
			if found[code] {
				httpStatus = code
				break
			}
		}
	}

	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			parts := strings.Fields(strings.TrimLeft(errStr[idx+len(marker):], ": "))
			if len(parts) > 0 {
				retryAfter = parts[0]
			}
			break
		}
	}

	return httpStatus, retryAfter
}

func wrapCompletionError(err error) error {
	httpStatus, retryAfter := extractErrorMetadata(err)
	return engine.WrapProviderError(err, "complete", httpStatus, retryAfter)
}
