package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/cache"
)

const revokedKeyPrefix = "auth:revoked:"

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LoadCurrentUser(ctx context.Context, userID int64) (*internal.CurrentUser, error)
}

type Service struct {
	userRepo       UserRepository
	tokenGenerator TokenGenerator
	revoked        cache.Cache
	accessTTL      time.Duration
	logger         *slog.Logger
}

// NewService wires authentication; revoked tokens are remembered in c until they would expire anyway.
func NewService(userRepo UserRepository, tokenGen TokenGenerator, c cache.Cache, accessTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		revoked:        c,
		accessTTL:      accessTTL,
		logger:         logger,
	}
}

func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	user, err := s.userRepo.GetByEmail(ctx, dto.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, dto.Password); err != nil {
		s.logger.WarnContext(ctx, "login failed: bad password", "user_id", user.ID)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !user.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	return s.issue(user.ID, user.Email)
}

func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	if err := (RefreshTokenDTO{RefreshToken: refreshToken}).Validate(); err != nil {
		return AuthTokens{}, err
	}
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return AuthTokens{}, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}
	if !user.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	// refresh tokens are single use
	s.revoke(ctx, claims)
	return s.issue(user.ID, user.Email)
}

func (s *Service) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}
	s.revoke(ctx, claims)

	if refreshToken != "" {
		if rc, err := s.tokenGenerator.ValidateRefreshToken(refreshToken); err == nil && rc.UserID == claims.UserID {
			s.revoke(ctx, rc)
		}
	}
	return nil
}

func (s *Service) LoadCurrentUser(ctx context.Context, userID int64) (*internal.CurrentUser, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, internal.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, internal.ErrUserInactive
	}
	return &internal.CurrentUser{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: user.SystemRole,
	}, nil
}

func (s *Service) issue(userID int64, email string) (AuthTokens, error) {
	access, err := s.tokenGenerator.GenerateAccessToken(userID, email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	refresh, err := s.tokenGenerator.GenerateRefreshToken(userID, email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return
	}
	if err := s.revoked.Set(ctx, revokedKeyPrefix+claims.ID, []byte("1"), ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke token", "error", err, "user_id", claims.UserID)
	}
}

// checkRevoked fails open when the cache is down so a redis outage does not log everyone out.
func (s *Service) checkRevoked(ctx context.Context, claims *Claims) error {
	if claims.ID == "" {
		return nil
	}
	_, revoked, err := s.revoked.Get(ctx, revokedKeyPrefix+claims.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "revocation lookup failed", "error", err)
		return nil
	}
	if revoked {
		return internal.ErrInvalidToken
	}
	return nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
