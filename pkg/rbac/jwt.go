// Package rbac resolves authenticated principals (JWT bearer tokens and API
// keys) into the models.Identity used for authorization decisions
// throughout the ingestion and agents services. Token issuance/validation
// follows the Claims/Validator shape in kadirpekel-hector's pkg/auth, using
// lestrrat-go/jwx/v2; unlike that package (which validates against an
// externally hosted JWKS endpoint) this service issues its own HS256 tokens
// from a single symmetric SECRET_KEY, since there is no external identity
// provider in scope here.
package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims are the token fields this service reads back at validation time.
type Claims struct {
	Subject   string
	Roles     []string
	JTI       string
	ExpiresAt time.Time
}

// TokenIssuer signs and validates bearer tokens with a shared secret.
type TokenIssuer struct {
	key    jwk.Key
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer builds a TokenIssuer from a raw secret. The secret must
// meet the length/entropy requirements validated in pkg/config at startup.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	key, err := jwk.FromRaw(secret)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistentInternal, "rbac: building signing key", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, err
	}
	return &TokenIssuer{key: key, issuer: issuer, ttl: ttl}, nil
}

// Issue signs a new token for userID carrying its role set. The token's
// JTI is a fresh UUID so it can later be individually revoked without
// invalidating every token the user holds.
func (t *TokenIssuer) Issue(userID string, roles []string) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer(t.issuer).
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(t.ttl)).
		JwtID(uuid.NewString()).
		Claim("roles", roles).
		Build()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindPersistentInternal, "rbac: building token", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.key))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindPersistentInternal, "rbac: signing token", err)
	}
	return string(signed), nil
}

// Validate parses and verifies a bearer token, returning its claims.
func (t *TokenIssuer) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, t.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(t.issuer),
		jwt.WithContext(ctx),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthenticated, fmt.Sprintf("rbac: invalid token: %v", err), err)
	}

	claims := &Claims{Subject: tok.Subject(), JTI: tok.JwtID(), ExpiresAt: tok.Expiration()}
	if raw, ok := tok.Get("roles"); ok {
		if list, ok := raw.([]any); ok {
			for _, r := range list {
				if s, ok := r.(string); ok {
					claims.Roles = append(claims.Roles, s)
				}
			}
		}
	}
	return claims, nil
}
