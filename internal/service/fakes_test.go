package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"contactbook/internal/errs"
	"contactbook/internal/models"
	"contactbook/internal/queue"
	"contactbook/internal/security"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byName: map[string]*models.User{}}
}

func (m *memUsers) Create(_ context.Context, in models.NewUser) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byName {
		if u.Email == in.Email {
			return models.User{}, errs.E(errs.KindConflict, "users.create", "email already registered", nil)
		}
	}
	if _, ok := m.byName[in.Username]; ok {
		return models.User{}, errs.E(errs.KindConflict, "users.create", "username already taken", nil)
	}
	m.nextID++
	hash := in.PasswordHash
	u := &models.User{ID: m.nextID, Username: in.Username, Email: in.Email, PasswordHash: &hash, Role: models.UserRoleUser}
	m.byName[in.Username] = u
	return *u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byName[username]; ok {
		return *u, nil
	}
	return models.User{}, errs.E(errs.KindNotFound, "users.get_by_username", "", nil)
}

func (m *memUsers) find(email string) *models.User {
	for _, u := range m.byName {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.find(email); u != nil {
		return *u, nil
	}
	return models.User{}, errs.E(errs.KindNotFound, "users.get_by_email", "", nil)
}

func (m *memUsers) ConfirmEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.find(email); u != nil {
		u.Confirmed = true
	}
	return nil
}

func (m *memUsers) ResetPassword(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.find(email)
	if u == nil {
		return models.User{}, errs.E(errs.KindNotFound, "users.reset_password", "", nil)
	}
	u.PasswordHash = nil
	return *u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, email, hash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.find(email)
	if u == nil {
		return models.User{}, errs.E(errs.KindNotFound, "users.update_password", "", nil)
	}
	u.PasswordHash = &hash
	return *u, nil
}

func (m *memUsers) UpdateAvatar(_ context.Context, email, url string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.find(email)
	if u == nil {
		return models.User{}, errs.E(errs.KindNotFound, "users.update_avatar", "", nil)
	}
	u.AvatarURL = &url
	return *u, nil
}

type memOutbox struct {
	tasks []queue.Task
	err   error
}

func (o *memOutbox) Enqueue(_ context.Context, task queue.Task) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.tasks = append(o.tasks, task)
	return "1-0", nil
}

type revokeRecorder struct {
	tokens []string
}

func (r *revokeRecorder) Revoke(_ context.Context, token string) error {
	if token == "" {
		return errs.ErrInvalidToken
	}
	r.tokens = append(r.tokens, token)
	return nil
}

type memStore struct {
	keys []string
	data []byte
	err  error
}

func (s *memStore) PutAvatar(_ context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}
	s.keys = append(s.keys, key)
	s.data = data
	return "http://cdn.local/avatars/" + key, nil
}

func newTokenService() *security.TokenService {
	svc, err := security.NewTokenService(security.TokenConfig{
		Secret:          "test-secret",
		AccessTTL:       15 * time.Minute,
		VerificationTTL: time.Hour,
	})
	if err != nil {
		panic(err)
	}
	return svc
}
