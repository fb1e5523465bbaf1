package service

import (
	"context"
	"time"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/ws"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/jwt"
	"go-pos-sync/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 4

type LoginRequest struct {
	Role     model.Role `json:"role" validate:"required,oneof=user admin"`
	Password string     `json:"password" validate:"required"`
	DeviceID string     `json:"device_id" validate:"max=100"`
}

type LoginResponse struct {
	Token     string     `json:"token"`
	Role      model.Role `json:"role"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

type AuthService interface {
	VerifyPassword(ctx context.Context, role model.Role, candidate string) (bool, error)
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	IssueGlobalLogout(ctx context.Context, actor string) (model.LogoutMarker, error)
	LogoutMarker(ctx context.Context) (model.LogoutMarker, error)
	// Authenticate validates a bearer token and rejects sessions issued before the logout marker.
	Authenticate(ctx context.Context, token string) (*jwt.Claims, error)
	SetPassword(ctx context.Context, role model.Role, password string) error
	// SeedPasswords stores a password for every role that has none yet.
	SeedPasswords(ctx context.Context, defaults map[model.Role]string) error
}

type authService struct {
	configs   repository.ConfigRepository
	tokens    *jwt.Manager
	publisher ws.Publisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewAuthService(configs repository.ConfigRepository, tokens *jwt.Manager, publisher ws.Publisher, logg *logger.Logger) AuthService {
	if publisher == nil {
		publisher = ws.Discard{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &authService{
		configs:   configs,
		tokens:    tokens,
		publisher: publisher,
		logg:      logg,
		now:       time.Now,
	}
}

// VerifyPassword checks candidate against the role's stored bcrypt hash. A role
// without a stored password never verifies.
func (s *authService) VerifyPassword(ctx context.Context, role model.Role, candidate string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	hash, ok, err := s.configs.Get(ctx, role.PasswordKey())
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, err, "failed to read credentials")
	}
	if !ok || hash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil, nil
}

func (s *authService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	ok, err := s.VerifyPassword(ctx, req.Role, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logg.Warn(s.logg.WithRole(ctx, string(req.Role)), "login rejected")
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid role or password")
	}

	token, claims, err := s.tokens.GenerateToken(string(req.Role), req.DeviceID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to generate token")
	}
	return &LoginResponse{
		Token:     token,
		Role:      req.Role,
		IssuedAt:  claims.IssuedAtTime(),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// IssueGlobalLogout advances the logout marker so every session issued before it
// is rejected. The marker never moves backwards.
func (s *authService) IssueGlobalLogout(ctx context.Context, actor string) (model.LogoutMarker, error) {
	current, err := s.LogoutMarker(ctx)
	if err != nil {
		return model.LogoutMarker{}, err
	}
	next := model.LogoutMarker{At: s.now().Truncate(time.Millisecond)}
	if !next.After(current) {
		next.At = current.At.Add(time.Millisecond)
	}
	if err := s.configs.Set(ctx, model.ConfigLastGlobalLogoutAt, next.Encode()); err != nil {
		return model.LogoutMarker{}, apperrors.Wrap(apperrors.CodeInternal, err, "failed to store logout marker")
	}

	s.logg.Warn(s.logg.WithRole(ctx, actor), "global logout issued")
	s.publisher.Publish(ctx, ws.NewChange(ws.TableAppConfig, ws.ActionUpdate, model.ConfigLastGlobalLogoutAt, next))
	return next, nil
}

func (s *authService) LogoutMarker(ctx context.Context) (model.LogoutMarker, error) {
	value, _, err := s.configs.Get(ctx, model.ConfigLastGlobalLogoutAt)
	if err != nil {
		return model.LogoutMarker{}, apperrors.Wrap(apperrors.CodeInternal, err, "failed to read logout marker")
	}
	marker, err := model.ParseLogoutMarker(value)
	if err != nil {
		// An unreadable marker must not lock everyone out.
		s.logg.Error(ctx, "invalid logout marker", err)
		return model.LogoutMarker{}, nil
	}
	return marker, nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthorized, err, "invalid or expired token")
	}
	if !model.Role(claims.Role).Valid() {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid or expired token")
	}
	marker, err := s.LogoutMarker(ctx)
	if err != nil {
		return nil, err
	}
	if marker.Revokes(claims.IssuedAtTime()) {
		return nil, apperrors.New(apperrors.CodeSessionRevoked, "session was signed out")
	}
	return claims, nil
}

func (s *authService) SetPassword(ctx context.Context, role model.Role, password string) error {
	if !role.Valid() {
		return apperrors.Newf(apperrors.CodeValidation, "unknown role %q", role)
	}
	if len(password) < minPasswordLength {
		return apperrors.Newf(apperrors.CodeValidation, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "failed to hash password")
	}
	if err := s.configs.Set(ctx, role.PasswordKey(), string(hash)); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "failed to store password")
	}
	return nil
}

func (s *authService) SeedPasswords(ctx context.Context, defaults map[model.Role]string) error {
	for role, password := range defaults {
		_, ok, err := s.configs.Get(ctx, role.PasswordKey())
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, err, "failed to read credentials")
		}
		if ok {
			continue
		}
		if err := s.SetPassword(ctx, role, password); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithRole(ctx, string(role)), "default password seeded")
	}
	return nil
}
