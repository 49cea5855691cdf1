package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-accounts-api/internal/domain"
	"github.com/go-accounts-api/internal/pkg/id"
	"github.com/go-accounts-api/internal/pkg/otp"
	"golang.org/x/crypto/bcrypt"
)

// One-time codes are four digits, 1000–9999 inclusive.
const (
	minOTP = 1000
	maxOTP = 9999
)

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Save(ctx context.Context, u *domain.User) error
}

type tokenSigner interface {
	SignAccess(userID string) (string, error)
	SignRefresh(userID string) (string, error)
}

// notifier delivers one-time codes out-of-band. Calls are best-effort:
// the service never fails an operation on a delivery error.
type notifier interface {
	Deliver(ctx context.Context, email string, code int) error
}

type LoginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) error
	RequestEmailVerification(ctx context.Context, userID string) error
	VerifyEmailOTP(ctx context.Context, userID string, code int) error
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyPasswordResetOTP(ctx context.Context, email string, code int) error
	ResetPassword(ctx context.Context, email, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

type service struct {
	repo     userStore
	tokens   tokenSigner
	notifier notifier
}

type ServiceDeps struct {
	UserRepo userStore
	Tokens   tokenSigner
	Notifier notifier
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:     deps.UserRepo,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) error {
	// Only a definitive miss may proceed to create: a store failure here must
	// not be mistaken for "email not taken".
	_, err := s.repo.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("check email: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		ProfileImage: req.ProfileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.repo.Create(ctx, u)
}

func (s *service) RequestEmailVerification(ctx context.Context, userID string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	code, err := otp.Generate(minOTP, maxOTP)
	if err != nil {
		return err
	}
	// A second request overwrites (invalidates) any previous code.
	u.PendingOTP = &code
	if err := s.repo.Save(ctx, u); err != nil {
		return err
	}
	s.notify(ctx, u.Email, code)
	return nil
}

func (s *service) VerifyEmailOTP(ctx context.Context, userID string, code int) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.PendingOTP == nil || *u.PendingOTP != code {
		return fmt.Errorf("invalid OTP provided: %w", domain.ErrNotAcceptable)
	}
	u.EmailVerified = true
	u.PendingOTP = nil
	return s.repo.Save(ctx, u)
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrNotAcceptable)
	}
	accessToken, err := s.tokens.SignAccess(u.UserID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.SignRefresh(u.UserID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	code, err := otp.Generate(minOTP, maxOTP)
	if err != nil {
		return err
	}
	u.PendingOTP = &code
	if err := s.repo.Save(ctx, u); err != nil {
		return err
	}
	s.notify(ctx, u.Email, code)
	return nil
}

func (s *service) VerifyPasswordResetOTP(ctx context.Context, email string, code int) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.PendingOTP == nil || *u.PendingOTP != code {
		return fmt.Errorf("invalid OTP provided: %w", domain.ErrNotAcceptable)
	}
	// Proving control of the inbox also verifies the email address.
	u.EmailVerified = true
	u.ResetRequested = true
	u.PendingOTP = nil
	return s.repo.Save(ctx, u)
}

func (s *service) ResetPassword(ctx context.Context, email, newPassword string) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !u.ResetRequested {
		return fmt.Errorf("password reset was not requested: %w", domain.ErrBadRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	u.ResetRequested = false
	return s.repo.Save(ctx, u)
}

func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return s.repo.Save(ctx, u)
}

// notify delivers the code without blocking the request and without letting a
// delivery failure fail the operation that already persisted its state.
func (s *service) notify(ctx context.Context, email string, code int) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.Deliver(ctx, email, code); err != nil {
			slog.Warn("failed to deliver OTP", "email", email, "err", err)
		}
	}()
}
