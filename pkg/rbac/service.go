package rbac

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the persistence seam rbac depends on.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RoleStore resolves role names to permission sets.
type RoleStore interface {
	ListAll(ctx context.Context) ([]*models.Role, error)
}

// APIKeyStore resolves a key hash to its owning key record.
type APIKeyStore interface {
	GetByHash(ctx context.Context, hash string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// TokenRevoker tracks revoked JWTs by JTI until their natural expiry, per
// §6's "revoked JWT yields Unauthenticated within one second of logout".
// pkg/cache.Client implements this against Redis.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Service authenticates credentials and resolves them into models.Identity.
type Service struct {
	users   UserStore
	roles   RoleStore
	apiKeys APIKeyStore
	tokens  *TokenIssuer
	revoker TokenRevoker
}

// New builds a Service. revoker may be nil, in which case Logout is a
// no-op and tokens are never checked for revocation.
func New(users UserStore, roles RoleStore, apiKeys APIKeyStore, tokens *TokenIssuer, revoker TokenRevoker) *Service {
	return &Service{users: users, roles: roles, apiKeys: apiKeys, tokens: tokens, revoker: revoker}
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindPersistentInternal, "rbac: hashing password", err)
	}
	return string(b), nil
}

// Login verifies username/password and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", apperrors.Unauthenticated
	}
	if user.Disabled {
		return "", apperrors.Forbidden
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", apperrors.Unauthenticated
	}
	return s.tokens.Issue(user.ID, user.Roles)
}

// IdentityFromToken validates a bearer token, rejects it if its JTI has
// been revoked, and resolves it to an Identity.
func (s *Service) IdentityFromToken(ctx context.Context, tokenString string) (*models.Identity, error) {
	claims, err := s.tokens.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if s.revoker != nil && claims.JTI != "" {
		revoked, err := s.revoker.IsTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindDependency, "rbac: checking token revocation", err)
		}
		if revoked {
			return nil, apperrors.Unauthenticated
		}
	}
	return s.resolveIdentity(ctx, claims.Subject, claims.Roles)
}

// Logout revokes tokenString's JTI for the remainder of its natural
// lifetime, a no-op when no revoker is configured.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.tokens.Validate(ctx, tokenString)
	if err != nil {
		return err
	}
	if claims.JTI == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.revoker.RevokeToken(ctx, claims.JTI, ttl)
}

// HashAPIKey derives the storage form of an API key: the plaintext is
// never persisted, only its SHA-256 hash.
func HashAPIKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// IdentityFromAPIKey resolves a presented API key to an Identity.
func (s *Service) IdentityFromAPIKey(ctx context.Context, plain string) (*models.Identity, error) {
	key, err := s.apiKeys.GetByHash(ctx, HashAPIKey(plain))
	if err != nil {
		return nil, apperrors.Unauthenticated
	}
	if key.Revoked {
		return nil, apperrors.Forbidden
	}
	_ = s.apiKeys.TouchLastUsed(ctx, key.ID)

	user, err := s.users.GetByID(ctx, key.UserID)
	if err != nil {
		return nil, apperrors.Unauthenticated
	}
	if user.Disabled {
		return nil, apperrors.Forbidden
	}
	return s.resolveIdentity(ctx, user.ID, user.Roles)
}

func (s *Service) resolveIdentity(ctx context.Context, userID string, roleNames []string) (*models.Identity, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "rbac: loading roles", err)
	}
	byName := make(map[string]*models.Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}

	identity := &models.Identity{
		UserID:      userID,
		Roles:       roleNames,
		Permissions: make(map[string]bool),
	}
	for _, name := range roleNames {
		if name == models.RoleAdmin {
			identity.IsAdmin = true
		}
		if role, ok := byName[name]; ok {
			for _, perm := range role.Permissions {
				identity.Permissions[perm] = true
			}
		}
	}
	return identity, nil
}

// BuiltinRoles returns the default admin/analyst/reviewer/viewer role
// definitions seeded on first startup.
func BuiltinRoles() []*models.Role {
	return []*models.Role{
		{Name: models.RoleAdmin, Permissions: []string{
			models.PermIngestUpload, models.PermDataViewSensitive, models.PermDataViewConfidential,
			models.PermDataViewRestricted, models.PermAdminAudit, models.PermWorkflowCreate, models.PermWorkflowRead,
		}},
		{Name: models.RoleAnalyst, Permissions: []string{
			models.PermIngestUpload, models.PermDataViewSensitive, models.PermDataViewConfidential,
			models.PermWorkflowCreate, models.PermWorkflowRead,
		}},
		{Name: models.RoleReviewer, Permissions: []string{
			models.PermDataViewSensitive, models.PermWorkflowRead,
		}},
		{Name: models.RoleViewer, Permissions: []string{}},
	}
}

// TokenTTL is the default bearer token lifetime.
const TokenTTL = 8 * time.Hour
