package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TokenDecoder verifies a raw token and returns its claims.
type TokenDecoder interface {
	Decode(token string) (map[string]any, error)
}

// IdentityExtractor resolves the caller's member number from an
// "Authorization: <scheme> <token>" header value.
type IdentityExtractor struct {
	decoder TokenDecoder
	claim   string
}

// NewIdentityExtractor reads the member number from claim (usually "userNo").
func NewIdentityExtractor(decoder TokenDecoder, claim string) *IdentityExtractor {
	return &IdentityExtractor{decoder: decoder, claim: claim}
}

// Extract returns the member number or an error wrapping ErrUnauthenticated.
func (e *IdentityExtractor) Extract(authorization string) (uint, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	token = strings.TrimSpace(token)
	if !ok || scheme == "" || token == "" {
		return 0, fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
	}

	claims, err := e.decoder.Decode(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	raw, ok := claims[e.claim]
	if !ok {
		return 0, fmt.Errorf("%w: claim %q missing", ErrUnauthenticated, e.claim)
	}
	no, err := memberNo(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: claim %q: %v", ErrUnauthenticated, e.claim, err)
	}
	return no, nil
}

func memberNo(raw any) (uint, error) {
	var n uint64
	switch v := raw.(type) {
	case float64:
		if v < 1 || v != math.Trunc(v) || v > math.MaxUint32 {
			return 0, fmt.Errorf("not a member number: %v", v)
		}
		n = uint64(v)
	case json.Number:
		parsed, err := strconv.ParseUint(v.String(), 10, 32)
		if err != nil {
			return 0, err
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, err
		}
		n = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if n == 0 {
		return 0, fmt.Errorf("not a member number: 0")
	}
	return uint(n), nil
}

type identityKey struct{}

type resolvedIdentity struct {
	authorization string
	memberNo      uint
}

// ContextWithIdentity records that authorization was already verified as
// memberNo, so the board service does not decode the same header again.
func ContextWithIdentity(ctx context.Context, authorization string, memberNo uint) context.Context {
	return context.WithValue(ctx, identityKey{}, resolvedIdentity{authorization: authorization, memberNo: memberNo})
}

// identityFromContext returns the member number recorded for exactly this header.
func identityFromContext(ctx context.Context, authorization string) (uint, bool) {
	id, ok := ctx.Value(identityKey{}).(resolvedIdentity)
	if !ok || id.memberNo == 0 || id.authorization != authorization {
		return 0, false
	}
	return id.memberNo, true
}
