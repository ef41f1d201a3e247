package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/marketplace/internal/core/domain"
)

var errorMapping = []struct {
	err      error
	httpCode int
	grpcCode codes.Code
}{
	{domain.ErrUnauthorized, http.StatusUnauthorized, codes.Unauthenticated},
	{domain.ErrForbidden, http.StatusForbidden, codes.PermissionDenied},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound},
	{domain.ErrInvalidArgument, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrInsufficientStock, http.StatusGone, codes.FailedPrecondition},
	{domain.ErrIllegalTransition, http.StatusConflict, codes.Aborted},
	{domain.ErrAlreadyFulfilled, http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
}

// errorStatus returns the HTTP status and a client-safe message for err.
func errorStatus(err error) (int, string) {
	if errors.Is(err, domain.ErrInsufficientStock) {
		return http.StatusGone, "sold out"
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.httpCode, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

func grpcError(err error) error {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return status.Error(m.grpcCode, err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}
