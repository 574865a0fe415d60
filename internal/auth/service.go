package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/users"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminProfile is returned in place of a user record for admin sessions.
type AdminProfile struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the login/register response.
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      *users.User   `json:"user,omitempty"`
	Admin     *AdminProfile `json:"admin,omitempty"`
}

// Service handles account registration and login.
type Service struct {
	users  *users.Store
	issuer *Issuer
	admin  *AdminAuthenticator
	logger *zap.Logger
	cost   int
}

func NewService(userStore *users.Store, issuer *Issuer, admin *AdminAuthenticator, logger *zap.Logger) *Service {
	return &Service{users: userStore, issuer: issuer, admin: admin, logger: logger, cost: bcrypt.DefaultCost}
}

var errBadCredentials = apperr.Unauthorized("invalid email or password")

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}
	u := &users.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return nil, apperr.Conflict("an account with this email already exists")
		}
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	return s.session(u)
}

func (s *Service) AdminLogin(req LoginRequest) (*Session, error) {
	if s.admin == nil || !s.admin.Authenticate(req.Email, req.Password) {
		s.logger.Warn("admin login rejected")
		return nil, errBadCredentials
	}
	token, exp, err := s.issuer.Issue(AdminSubject, s.admin.Email(), RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, Admin: &AdminProfile{Email: s.admin.Email(), Role: RoleAdmin}}, nil
}

// Me resolves the account behind verified claims.
func (s *Service) Me(ctx context.Context, c *Claims) (*Session, error) {
	if c.IsAdmin() {
		return &Session{Admin: &AdminProfile{Email: c.Email, Role: RoleAdmin}}, nil
	}
	u, err := s.users.GetByID(ctx, c.Subject)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return &Session{User: u}, nil
}

func (s *Service) session(u *users.User) (*Session, error) {
	token, exp, err := s.issuer.Issue(u.ID, u.Email, RoleUser)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}
