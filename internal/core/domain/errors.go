package domain

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrAlreadyFulfilled  = errors.New("order already fulfilled")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// IsRetryable reports whether err is transient and may be retried transparently.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrNotFound, "not_found"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrIllegalTransition, "illegal_transition"},
	{ErrAlreadyFulfilled, "already_fulfilled"},
	{ErrDuplicateRequest, "duplicate_request"},
	{ErrStoreUnavailable, "store_unavailable"},
}

// Kind returns a stable label for err, used in metrics and API responses.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
