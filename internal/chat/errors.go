package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrorKind categorizes model failures.
type ErrorKind int

const (
	// KindUnknown is any failure that could not be classified.
	KindUnknown ErrorKind = iota
	// KindInvalidKey means the API key was rejected.
	KindInvalidKey
	// KindQuota means the provider rate limited or the quota ran out.
	KindQuota
	// KindNetwork covers connectivity problems and provider 5xx responses.
	KindNetwork
	// KindEmpty means the model returned no usable text (including safety blocks).
	KindEmpty
	// KindUnsupported means the provider cannot handle the request (e.g. video on OpenAI).
	KindUnsupported
	// KindBadRequest means the provider rejected the request payload.
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid_key"
	case KindQuota:
		return "quota"
	case KindNetwork:
		return "network"
	case KindEmpty:
		return "empty_response"
	case KindUnsupported:
		return "unsupported"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// ModelError is returned for every failed model invocation.
type ModelError struct {
	Kind      ErrorKind
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *ModelError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, e.Message)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// AsModelError reports whether err wraps a ModelError and returns it.
func AsModelError(err error) (*ModelError, bool) {
	var me *ModelError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// classifyError wraps a provider error in a ModelError.
func classifyError(provider, op string, err error) *ModelError {
	me := &ModelError{Provider: provider, Operation: op, Err: err}

	if code, msg, ok := statusOf(err); ok {
		me.Kind, me.Message = kindForStatus(code)
		if msg != "" && me.Kind == KindUnknown {
			me.Message = msg
		}
		return me
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		me.Kind, me.Message = KindNetwork, "provider unreachable"
		return me
	case errors.Is(err, context.Canceled):
		me.Kind, me.Message = KindUnknown, "request cancelled"
		return me
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "api key not valid"),
		strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "incorrect api key"),
		strings.Contains(lower, "permission denied"):
		me.Kind, me.Message = KindInvalidKey, "API key is invalid or has been revoked"
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "resource exhausted"),
		strings.Contains(lower, "rate limit"):
		me.Kind, me.Message = KindQuota, "quota exceeded or rate limited"
	case strings.Contains(lower, "connection"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "no such host"):
		me.Kind, me.Message = KindNetwork, "network error"
	default:
		me.Kind, me.Message = KindUnknown, "model call failed"
	}
	return me
}

// statusOf extracts an HTTP status from the provider SDK error types.
func statusOf(err error) (int, string, bool) {
	var gPtr *genai.APIError
	if errors.As(err, &gPtr) {
		return gPtr.Code, gPtr.Message, true
	}
	var gVal genai.APIError
	if errors.As(err, &gVal) {
		return gVal.Code, gVal.Message, true
	}
	var oAPI *openai.APIError
	if errors.As(err, &oAPI) {
		return oAPI.HTTPStatusCode, oAPI.Message, true
	}
	var oReq *openai.RequestError
	if errors.As(err, &oReq) {
		return oReq.HTTPStatusCode, "", true
	}
	return 0, "", false
}

func kindForStatus(code int) (ErrorKind, string) {
	switch {
	case code == 400:
		return KindBadRequest, "request rejected by provider"
	case code == 401 || code == 403:
		return KindInvalidKey, "API key is invalid, expired, or lacks permissions"
	case code == 429:
		return KindQuota, "rate limit exceeded - try again later"
	case code >= 500:
		return KindNetwork, "provider server error - try again later"
	default:
		return KindUnknown, fmt.Sprintf("provider returned status %d", code)
	}
}
