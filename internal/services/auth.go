package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/ctxutil"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
)

// JWTClaims carries the tenant a bearer token was issued for. Tokens are
// minted out-of-band (by whatever identity provider fronts this deployment)
// and only ever validated here, never issued — there is no login endpoint.
type JWTClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// AuthService validates the two credential schemes §2.3 allows in front of
// C10: a JWT bearer token, or an X-API-Key service credential. Exactly one
// of bearerToken/apiKey should be non-empty; if both are, the bearer token
// wins.
type AuthService interface {
	Authenticate(ctx context.Context, bearerToken, apiKey string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	apiKeys      repos.APIKeyRepo
	audit        repos.AuditLogRepo
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	apiKeys repos.APIKeyRepo,
	audit repos.AuditLogRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
) AuthService {
	return &authService{
		db:           db,
		log:          baseLog.With("service", "AuthService"),
		apiKeys:      apiKeys,
		audit:        audit,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}
}

func (as *authService) Authenticate(ctx context.Context, bearerToken, apiKey string) (context.Context, error) {
	switch {
	case bearerToken != "":
		return as.authenticateBearer(ctx, bearerToken)
	case apiKey != "":
		return as.authenticateAPIKey(ctx, apiKey)
	default:
		return ctx, voe.ErrInvalidCredentials
	}
}

func (as *authService) authenticateBearer(ctx context.Context, tokenString string) (context.Context, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		as.recordAuth(ctx, "", "bearer", "failure")
		return ctx, fmt.Errorf("parse bearer token: %w", voe.ErrInvalidCredentials)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid || claims.TenantID == "" {
		as.recordAuth(ctx, "", "bearer", "failure")
		return ctx, voe.ErrInvalidCredentials
	}

	rd := &ctxutil.RequestData{TokenString: tokenString, TenantID: claims.TenantID}
	as.recordAuth(ctx, claims.TenantID, "bearer", "success")
	return ctxutil.WithRequestData(ctx, rd), nil
}

// authenticateAPIKey validates a raw key of the form `<id>.<secret>` against
// the stored bcrypt hash for that id. The id half is never secret — it only
// narrows the lookup to one row; the secret half is what bcrypt compares.
func (as *authService) authenticateAPIKey(ctx context.Context, raw string) (context.Context, error) {
	id, secret, ok := strings.Cut(raw, ".")
	if !ok || id == "" || secret == "" {
		as.recordAuth(ctx, "", "api-key", "failure")
		return ctx, voe.ErrInvalidCredentials
	}
	keyID, err := uuid.Parse(id)
	if err != nil {
		as.recordAuth(ctx, "", "api-key", "failure")
		return ctx, voe.ErrInvalidCredentials
	}

	key, err := as.apiKeys.GetByID(ctx, nil, keyID)
	if err != nil {
		if errors.Is(err, voe.ErrAPIKeyNotFound) {
			as.recordAuth(ctx, "", "api-key", "failure")
			return ctx, voe.ErrInvalidCredentials
		}
		return ctx, fmt.Errorf("look up api key: %w", err)
	}
	if !key.Active() {
		as.recordAuth(ctx, key.TenantID, "api-key", "failure")
		return ctx, voe.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		as.recordAuth(ctx, key.TenantID, "api-key", "failure")
		return ctx, voe.ErrInvalidCredentials
	}

	rd := &ctxutil.RequestData{TenantID: key.TenantID, APIKeyID: key.ID.String()}
	as.recordAuth(ctx, key.TenantID, "api-key", "success")
	return ctxutil.WithRequestData(ctx, rd), nil
}

func (as *authService) recordAuth(ctx context.Context, tenantID, scheme, outcome string) {
	if as.audit == nil {
		return
	}
	entry := &voe.AuditLog{
		TenantID: tenantID,
		Action:   "auth." + scheme,
		Outcome:  outcome,
	}
	if err := as.audit.Append(ctx, nil, entry); err != nil {
		as.log.Warn("failed to append audit log entry", "action", entry.Action, "error", err)
	}
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
