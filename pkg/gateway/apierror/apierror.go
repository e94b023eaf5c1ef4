package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/livenotes/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError converts err into the canonical error body and its HTTP status.
// Unknown errors are reported as a generic internal error.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFromType(coreErr.Type)
	}

	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest, core.ErrToolCallMalformed:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrInvalidState, core.ErrChannelAlreadyOpen:
		return http.StatusConflict
	case core.ErrDeviceUnavailable:
		return http.StatusServiceUnavailable
	case core.ErrChannel, core.ErrFinalizeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
