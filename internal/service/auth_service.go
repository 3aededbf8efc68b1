package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/models"
	"contactbook/internal/queue"
	"contactbook/internal/security"
)

const msgBadCredentials = "incorrect username or password"

type UserStore interface {
	Create(ctx context.Context, user models.NewUser) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	ConfirmEmail(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) (models.User, error)
}

type TokenIssuer interface {
	IssueAccessToken(subject string, ttl time.Duration) (string, error)
	Verify(token string, expected security.TokenKind) (security.Claims, error)
	AccessTTL() time.Duration
}

type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

type Outbox interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type AuthService struct {
	users   UserStore
	hasher  security.Hasher
	tokens  TokenIssuer
	revoker Revoker
	outbox  Outbox
	log     zerolog.Logger
}

func NewAuthService(users UserStore, hasher security.Hasher, tokens TokenIssuer, revoker Revoker, outbox Outbox, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		revoker: revoker,
		outbox:  outbox,
		log:     log.With().Str("component", "auth").Logger(),
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type AuthResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
	User        models.User
}

// Register creates an unconfirmed account and queues the confirmation mail.
// A queue failure does not fail the registration; the user can ask for the
// mail again.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	const op = "auth.register"

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.User{}, errs.E(errs.KindInternal, op, "", err)
	}

	user, err := s.users.Create(ctx, models.NewUser{
		Username:     strings.TrimSpace(input.Username),
		Email:        normalizeEmail(input.Email),
		PasswordHash: hash,
	})
	if err != nil {
		return models.User{}, err
	}

	s.enqueue(ctx, queue.TaskVerifyEmail, user)
	s.log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Login checks the password and issues an access token. Unknown users, wrong
// passwords and reset accounts get the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	const op = "auth.login"

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, errs.ErrNotFound) {
		return AuthResult{}, errs.E(errs.KindUnauthorized, op, msgBadCredentials, nil)
	}
	if err != nil {
		return AuthResult{}, err
	}

	if !user.HasPassword() {
		return AuthResult{}, errs.E(errs.KindUnauthorized, op, msgBadCredentials, nil)
	}
	ok, err := s.hasher.Verify(password, *user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, errs.E(errs.KindUnauthorized, op, msgBadCredentials, err)
	}
	if !user.Confirmed {
		return AuthResult{}, errs.E(errs.KindUnauthorized, op, "email not confirmed", nil)
	}

	token, err := s.tokens.IssueAccessToken(user.Username, 0)
	if err != nil {
		return AuthResult{}, errs.E(errs.KindInternal, op, "", err)
	}

	return AuthResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.tokens.AccessTTL(),
		User:        user,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.revoker.Revoke(ctx, token)
}

// ConfirmEmail redeems a verification token. It reports whether the address
// was already confirmed.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (bool, error) {
	const op = "auth.confirm_email"

	user, err := s.userFromVerificationToken(ctx, op, token)
	if err != nil {
		return false, err
	}
	if user.Confirmed {
		return true, nil
	}
	if err := s.users.ConfirmEmail(ctx, user.Email); err != nil {
		return false, err
	}
	return false, nil
}

// RequestEmail queues another confirmation mail. It succeeds for unknown or
// already confirmed addresses so callers cannot probe for accounts.
func (s *AuthService) RequestEmail(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.Confirmed {
		s.enqueue(ctx, queue.TaskVerifyEmail, user)
	}
	return nil
}

// RequestPasswordReset clears the password and mails a link to set a new one.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.ResetPassword(ctx, normalizeEmail(email))
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.enqueue(ctx, queue.TaskResetPassword, user)
	s.log.Info().Int64("user_id", user.ID).Msg("password reset")
	return nil
}

// SetPassword stores a new password for the account named by a verification
// token. Only accounts whose password was reset accept it, so a token sets the
// password at most once.
func (s *AuthService) SetPassword(ctx context.Context, token, password string) (models.User, error) {
	const op = "auth.set_password"

	user, err := s.userFromVerificationToken(ctx, op, token)
	if err != nil {
		return models.User{}, err
	}
	if user.HasPassword() {
		return models.User{}, errs.E(errs.KindValidation, op, "verification error", nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, errs.E(errs.KindInternal, op, "", err)
	}
	return s.users.UpdatePassword(ctx, user.Email, hash)
}

func (s *AuthService) userFromVerificationToken(ctx context.Context, op, token string) (models.User, error) {
	claims, err := s.tokens.Verify(token, security.KindEmailVerification)
	if err != nil {
		return models.User{}, errs.E(errs.KindValidation, op, "invalid or expired verification token", err)
	}
	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if errors.Is(err, errs.ErrNotFound) {
		return models.User{}, errs.E(errs.KindValidation, op, "verification error", nil)
	}
	return user, err
}

func (s *AuthService) enqueue(ctx context.Context, taskType queue.TaskType, user models.User) {
	if _, err := s.outbox.Enqueue(ctx, queue.NewTask(taskType, user.Email, user.Username)); err != nil {
		s.log.Error().Err(err).Str("type", string(taskType)).Int64("user_id", user.ID).Msg("enqueue mail failed")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
