package handler

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/rl1809/marketplace/internal/core/domain"
)

// The upstream auth gateway verifies credentials and forwards the account id.
const (
	IdentityHeader      = "X-Account-ID"
	identityMetadataKey = "x-account-id"
	IdempotencyHeader   = "Idempotency-Key"
	requestIDHeader     = "X-Request-ID"
)

func identityFromRequest(r *http.Request) domain.Identity {
	return domain.Authenticated(strings.TrimSpace(r.Header.Get(IdentityHeader)))
}

func identityFromIncoming(ctx context.Context) domain.Identity {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Anonymous()
	}
	if values := md.Get(identityMetadataKey); len(values) > 0 {
		return domain.Authenticated(strings.TrimSpace(values[0]))
	}
	return domain.Anonymous()
}
