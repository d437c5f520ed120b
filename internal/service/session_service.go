package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
)

type sessionUserRepository interface {
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
}

// SessionConfig defines how session tokens are signed.
type SessionConfig struct {
	Secret  string
	TTL     time.Duration
	Issuer  string
	UserTTL time.Duration
}

// SessionService resolves emails to users and issues signed session tokens.
type SessionService struct {
	repo      sessionUserRepository
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionConfig
	now       func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(repo sessionUserRepository, cache *CacheService, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &SessionService{repo: repo, cache: cache, audit: audit, validator: validate, logger: logger, config: config, now: time.Now}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UsernameFromEmail returns the local part of an email address.
func UsernameFromEmail(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}

// Resolve returns the user for email, creating it with role USER on first
// sight. Repeated calls return the same user unchanged.
func (s *SessionService) Resolve(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if err := s.validator.Var(email, "required,email"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a valid email is required")
	}

	user, err := s.repo.Upsert(ctx, &models.User{
		Email:    email,
		Username: UsernameFromEmail(email),
		Role:     models.RoleUser,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user")
	}
	return user, nil
}

// Issue signs a session token for user.
func (s *SessionService) Issue(user *models.User) (*models.Session, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.TTL)
	claims := &models.SessionClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign session")
	}
	return &models.Session{Token: signed, ExpiresAt: expiresAt, User: *user}, nil
}

// Start resolves the requested email and issues a session for it.
func (s *SessionService) Start(ctx context.Context, req dto.CreateSessionRequest, meta dto.RequestMeta) (*models.Session, error) {
	user, err := s.Resolve(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	session, err := s.Issue(user)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, newAuditEntry(user.ID, models.AuditActionSessionIssue, "sessions", user.ID, nil,
			map[string]interface{}{"expires_at": session.ExpiresAt}, meta))
	}
	return session, nil
}

// ValidateToken parses and validates a session token returning the claims.
func (s *SessionService) ValidateToken(tokenString string) (*models.SessionClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, options...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session")
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session claims")
	}
	return claims, nil
}

// Authenticate validates the token and loads the current user from the store.
// The role is never taken from the token.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	var cached models.User
	if hit, _ := s.cache.Get(ctx, UserCacheKey(claims.UserID), &cached); hit {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session user")
	}
	_ = s.cache.Set(ctx, UserCacheKey(user.ID), user, s.config.UserTTL)
	return user, nil
}

// BootstrapAdmins resolves each email and promotes it to ADMIN.
func (s *SessionService) BootstrapAdmins(ctx context.Context, emails []string) error {
	for _, email := range emails {
		user, err := s.Resolve(ctx, email)
		if err != nil {
			return fmt.Errorf("bootstrap admin %s: %w", email, err)
		}
		if user.Role == models.RoleAdmin {
			continue
		}
		if _, err := s.repo.UpdateRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return fmt.Errorf("promote admin %s: %w", email, err)
		}
		_ = s.cache.Delete(ctx, UserCacheKey(user.ID))
		s.logger.Info("bootstrap admin promoted", zap.String("email", user.Email), zap.String("previous_role", string(user.Role)))
	}
	return nil
}
