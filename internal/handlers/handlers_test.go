package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contactbook/internal/config"
	"contactbook/internal/errs"
	"contactbook/internal/middleware"
	"contactbook/internal/models"
	"contactbook/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	alice = models.User{ID: 1, Username: "alice", Email: "alice@example.com", Role: models.UserRoleUser, Confirmed: true}
	bob   = models.User{ID: 2, Username: "bob", Email: "bob@example.com", Role: models.UserRoleModerator, Confirmed: true}
	root  = models.User{ID: 3, Username: "root", Email: "root@example.com", Role: models.UserRoleAdmin, Confirmed: true}
)

type tokenResolver map[string]models.User

func (r tokenResolver) Resolve(_ context.Context, token string) (models.User, error) {
	if u, ok := r[token]; ok {
		return u, nil
	}
	return models.User{}, errs.ErrInvalidToken
}

type stubAuth struct {
	registered  []service.RegisterInput
	loggedOut   []string
	confirmed   map[string]bool
	resetEmails []string
}

func (s *stubAuth) Register(_ context.Context, in service.RegisterInput) (models.User, error) {
	if in.Username == "taken" {
		return models.User{}, errs.E(errs.KindConflict, "users.create", "username already taken", nil)
	}
	s.registered = append(s.registered, in)
	return models.User{ID: 9, Username: in.Username, Email: in.Email, Role: models.UserRoleUser}, nil
}

func (s *stubAuth) Login(_ context.Context, username, password string) (service.AuthResult, error) {
	if username != "alice" || password != "secret1" {
		return service.AuthResult{}, errs.E(errs.KindUnauthorized, "auth.login", "incorrect username or password", nil)
	}
	return service.AuthResult{AccessToken: "alice-token", TokenType: "bearer", ExpiresIn: 15 * time.Minute, User: alice}, nil
}

func (s *stubAuth) Logout(_ context.Context, token string) error {
	s.loggedOut = append(s.loggedOut, token)
	return nil
}

func (s *stubAuth) ConfirmEmail(_ context.Context, token string) (bool, error) {
	already, ok := s.confirmed[token]
	if !ok {
		return false, errs.E(errs.KindValidation, "auth.confirm_email", "invalid or expired verification token", nil)
	}
	return already, nil
}

func (s *stubAuth) RequestEmail(context.Context, string) error { return nil }

func (s *stubAuth) RequestPasswordReset(_ context.Context, email string) error {
	s.resetEmails = append(s.resetEmails, email)
	return nil
}

func (s *stubAuth) SetPassword(_ context.Context, token, _ string) (models.User, error) {
	if token != "good" {
		return models.User{}, errs.E(errs.KindValidation, "auth.set_password", "invalid or expired verification token", nil)
	}
	return alice, nil
}

type stubAvatars struct {
	declared string
	data     []byte
}

func (s *stubAvatars) Upload(_ context.Context, user models.User, file io.Reader, declared string) (models.User, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return models.User{}, err
	}
	s.declared, s.data = declared, data
	url := "http://cdn.local/a.png"
	user.AvatarURL = &url
	return user, nil
}

type mockContacts struct {
	mock.Mock
}

func (m *mockContacts) List(ctx context.Context, owner models.User, skip, limit int64) ([]models.Contact, error) {
	args := m.Called(ctx, owner, skip, limit)
	return args.Get(0).([]models.Contact), args.Error(1)
}

func (m *mockContacts) GetByID(ctx context.Context, owner models.User, id int64) (models.Contact, error) {
	args := m.Called(ctx, owner, id)
	return args.Get(0).(models.Contact), args.Error(1)
}

func (m *mockContacts) Create(ctx context.Context, owner models.User, input models.ContactInput) (models.Contact, error) {
	args := m.Called(ctx, owner, input)
	return args.Get(0).(models.Contact), args.Error(1)
}

func (m *mockContacts) Update(ctx context.Context, owner models.User, id int64, patch models.ContactPatch) (models.Contact, error) {
	args := m.Called(ctx, owner, id, patch)
	return args.Get(0).(models.Contact), args.Error(1)
}

func (m *mockContacts) Remove(ctx context.Context, owner models.User, id int64) (models.Contact, error) {
	args := m.Called(ctx, owner, id)
	return args.Get(0).(models.Contact), args.Error(1)
}

func (m *mockContacts) Search(ctx context.Context, owner models.User, filter models.ContactFilter) ([]models.Contact, error) {
	args := m.Called(ctx, owner, filter)
	return args.Get(0).([]models.Contact), args.Error(1)
}

func (m *mockContacts) UpcomingBirthdays(ctx context.Context, owner models.User, today time.Time) ([]models.Contact, error) {
	args := m.Called(ctx, owner, today)
	return args.Get(0).([]models.Contact), args.Error(1)
}

type stubRoles struct{}

func (stubRoles) SetRole(_ context.Context, id int64, role models.UserRole) (models.User, error) {
	if id != alice.ID {
		return models.User{}, errs.E(errs.KindNotFound, "users.set_role", "", nil)
	}
	u := alice
	u.Role = role
	return u, nil
}

type fixture struct {
	router   *gin.Engine
	auth     *stubAuth
	avatars  *stubAvatars
	contacts *mockContacts
	today    time.Time
}

func newFixture(t *testing.T, deps func(*Dependencies)) fixture {
	t.Helper()
	f := fixture{
		auth:     &stubAuth{confirmed: map[string]bool{"fresh": false, "used": true}},
		avatars:  &stubAvatars{},
		contacts: &mockContacts{},
		today:    time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC),
	}
	d := Dependencies{
		Log:      zerolog.Nop(),
		Config:   &config.AppConfig{Environment: "test"},
		Identity: tokenResolver{"alice-token": alice, "bob-token": bob, "root-token": root},
		Auth:     f.auth,
		Avatars:  f.avatars,
		Contacts: f.contacts,
		Roles:    stubRoles{},
		Checks:   map[string]HealthCheck{"database": func(context.Context) error { return nil }},
	}
	if deps != nil {
		deps(&d)
	}

	h := NewHandlerSet(d)
	h.now = func() time.Time { return f.today }
	f.router = gin.New()
	h.Register(f.router.Group("/api"))
	t.Cleanup(func() { f.contacts.AssertExpectations(t) })
	return f
}

func (f fixture) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f fixture) json(method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return f.do(method, path, token, r, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.json(http.MethodGet, "/api/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(t, func(d *Dependencies) {
		d.Checks["cache"] = func(context.Context) error { return errors.New("down") }
	})
	rec = f.json(http.MethodGet, "/api/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[healthResponse](t, rec)
	assert.Equal(t, "error", body.Checks["cache"])
	assert.Equal(t, "ok", body.Checks["database"])
}

func TestSignup(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.json(http.MethodPost, "/api/v1/auth/signup", "", `{"username":"carol","email":"carol@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decode[userResponse](t, rec)
	assert.Equal(t, "carol", user.Username)
	assert.Equal(t, "user", user.Role)
	assert.NotContains(t, rec.Body.String(), "secret1")

	rec = f.json(http.MethodPost, "/api/v1/auth/signup", "", `{"username":"carol","email":"not-an-email","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.json(http.MethodPost, "/api/v1/auth/signup", "", `{"username":"taken","email":"t@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"username already taken"}`, rec.Body.String())
	assert.Len(t, f.auth.registered, 1)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)

	form := url.Values{"username": {"alice"}, "password": {"secret1"}}
	rec := f.do(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[tokenResponse](t, rec)
	assert.Equal(t, "alice-token", tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, int64(900), tok.ExpiresIn)

	rec = f.json(http.MethodPost, "/api/v1/auth/login", "", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.json(http.MethodPost, "/api/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.json(http.MethodPost, "/api/v1/auth/logout", "alice-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"alice-token"}, f.auth.loggedOut)
}

func TestEmailFlows(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.json(http.MethodGet, "/api/v1/auth/confirmed_email/fresh", "", "")
	assert.JSONEq(t, `{"message":"email confirmed"}`, rec.Body.String())
	rec = f.json(http.MethodGet, "/api/v1/auth/confirmed_email/used", "", "")
	assert.JSONEq(t, `{"message":"email already confirmed"}`, rec.Body.String())
	rec = f.json(http.MethodGet, "/api/v1/auth/confirmed_email/bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.json(http.MethodPost, "/api/v1/auth/request_email", "", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.json(http.MethodPost, "/api/v1/auth/reset_password", "", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"alice@example.com"}, f.auth.resetEmails)

	rec = f.json(http.MethodPost, "/api/v1/auth/set_password/good", "", `{"password":"newsecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.json(http.MethodPost, "/api/v1/auth/set_password/good", "", `{"password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersRoutes(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.json(http.MethodGet, "/api/v1/users/me", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[userResponse](t, rec).Username)

	assert.Equal(t, http.StatusForbidden, f.json(http.MethodGet, "/api/v1/users/moderator", "alice-token", "").Code)
	assert.Equal(t, http.StatusOK, f.json(http.MethodGet, "/api/v1/users/moderator", "bob-token", "").Code)
	assert.Equal(t, http.StatusForbidden, f.json(http.MethodGet, "/api/v1/users/admin", "bob-token", "").Code)

	rec = f.json(http.MethodGet, "/api/v1/users/admin", "root-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "root")
}

func TestSetRole(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.json(http.MethodPut, "/api/v1/users/1/role", "bob-token", `{"role":"moderator"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.json(http.MethodPut, "/api/v1/users/1/role", "root-token", `{"role":"moderator"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "moderator", decode[userResponse](t, rec).Role)

	assert.Equal(t, http.StatusBadRequest, f.json(http.MethodPut, "/api/v1/users/1/role", "root-token", `{"role":"owner"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.json(http.MethodPut, "/api/v1/users/77/role", "root-token", `{"role":"user"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.json(http.MethodPut, "/api/v1/users/abc/role", "root-token", `{"role":"user"}`).Code)
}

func multipartAvatar(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="a.png"`}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpdateAvatar(t *testing.T) {
	f := newFixture(t, nil)
	data := []byte("\x89PNG\r\n\x1a\nrest")

	body, ct := multipartAvatar(t, "image/png", data)
	rec := f.do(http.MethodPatch, "/api/v1/users/avatar", "alice-token", body, ct)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, ct = multipartAvatar(t, "Image/PNG; name=a.png", data)
	rec = f.do(http.MethodPatch, "/api/v1/users/avatar", "root-token", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode[userResponse](t, rec)
	require.NotNil(t, user.Avatar)
	assert.Equal(t, "http://cdn.local/a.png", *user.Avatar)
	assert.Equal(t, "image/png", f.avatars.declared)
	assert.Equal(t, data, f.avatars.data)

	rec = f.json(http.MethodPatch, "/api/v1/users/avatar", "root-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *Dependencies) {
		d.Config.RateLimit = config.RateLimitConfig{Enabled: true, MeLimit: 10, MeWindow: time.Minute}
		d.Limiter = middleware.NewRateLimiter(client, "ratelimit:", zerolog.Nop())
	})

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, f.json(http.MethodGet, "/api/v1/users/me", "alice-token", "").Code, i)
	}
	assert.Equal(t, http.StatusTooManyRequests, f.json(http.MethodGet, "/api/v1/users/me", "alice-token", "").Code)
}

func sampleContact(id int64) models.Contact {
	desc := "friend"
	return models.Contact{
		ID:          id,
		UserID:      alice.ID,
		FirstName:   "John",
		LastName:    "Doe",
		Email:       "john@example.com",
		Phone:       "+380501234567",
		Birthday:    time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC),
		Description: &desc,
	}
}

func TestListContacts(t *testing.T) {
	f := newFixture(t, nil)

	f.contacts.On("List", mock.Anything, alice, int64(0), int64(10)).Return([]models.Contact{sampleContact(1)}, nil).Once()
	f.contacts.On("List", mock.Anything, alice, int64(20), int64(100)).Return([]models.Contact{}, nil).Once()

	rec := f.json(http.MethodGet, "/api/v1/contacts", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]map[string]any](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "1990-03-14", got[0]["birthday"])
	assert.Equal(t, "John", got[0]["first_name"])

	rec = f.json(http.MethodGet, "/api/v1/contacts?skip=20&limit=500", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.json(http.MethodGet, "/api/v1/contacts?skip=-1", "alice-token", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.json(http.MethodGet, "/api/v1/contacts", "", "").Code)
}

func TestCreateContact(t *testing.T) {
	f := newFixture(t, nil)
	desc := "friend"
	input := models.ContactInput{
		FirstName:   "John",
		LastName:    "Doe",
		Email:       "john@example.com",
		Phone:       "+380501234567",
		Birthday:    time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC),
		Description: &desc,
	}
	f.contacts.On("Create", mock.Anything, alice, input).Return(sampleContact(5), nil).Once()

	body := `{"first_name":"John","last_name":"Doe","email":"john@example.com","phone":"+380501234567","birthday":"1990-03-14","description":"friend"}`
	rec := f.json(http.MethodPost, "/api/v1/contacts", "alice-token", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(5), decode[map[string]any](t, rec)["id"])

	rec = f.json(http.MethodPost, "/api/v1/contacts", "alice-token", strings.Replace(body, "1990-03-14", "14.03.1990", 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.json(http.MethodPost, "/api/v1/contacts", "alice-token", strings.Replace(body, "+380501234567", "+3805012345678901", 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.json(http.MethodPost, "/api/v1/contacts", "alice-token", `{"first_name":"John"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateContact(t *testing.T) {
	f := newFixture(t, nil)

	patch := models.ContactPatch{
		Phone:       models.Some("+380000000000"),
		Description: models.Some[*string](nil),
	}
	f.contacts.On("Update", mock.Anything, alice, int64(7), patch).Return(sampleContact(7), nil).Once()

	rec := f.json(http.MethodPatch, "/api/v1/contacts/7", "alice-token", `{"phone":" +380000000000 ","description":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.json(http.MethodPatch, "/api/v1/contacts/7", "alice-token", `{"first_name":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.json(http.MethodPatch, "/api/v1/contacts/7", "alice-token", `{"birthday":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.json(http.MethodPatch, "/api/v1/contacts/7", "alice-token", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactByID(t *testing.T) {
	f := newFixture(t, nil)

	f.contacts.On("GetByID", mock.Anything, alice, int64(3)).Return(sampleContact(3), nil).Once()
	f.contacts.On("GetByID", mock.Anything, alice, int64(4)).
		Return(models.Contact{}, errs.E(errs.KindNotFound, "contacts.get", "", nil)).Once()
	f.contacts.On("Remove", mock.Anything, alice, int64(3)).Return(sampleContact(3), nil).Once()

	assert.Equal(t, http.StatusOK, f.json(http.MethodGet, "/api/v1/contacts/3", "alice-token", "").Code)
	assert.Equal(t, http.StatusNotFound, f.json(http.MethodGet, "/api/v1/contacts/4", "alice-token", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.json(http.MethodGet, "/api/v1/contacts/0", "alice-token", "").Code)
	assert.Equal(t, http.StatusOK, f.json(http.MethodDelete, "/api/v1/contacts/3", "alice-token", "").Code)
}

func TestSearchAndBirthdays(t *testing.T) {
	f := newFixture(t, nil)

	f.contacts.On("Search", mock.Anything, alice, models.ContactFilter{FirstName: "jo", Email: "example"}).
		Return([]models.Contact{sampleContact(1)}, nil).Once()
	f.contacts.On("UpcomingBirthdays", mock.Anything, alice, f.today).
		Return([]models.Contact{}, nil).Once()

	rec := f.json(http.MethodGet, "/api/v1/contacts/search?first_name=jo&email=example", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = f.json(http.MethodGet, "/api/v1/contacts/birthdays", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestStorageOutageIs503(t *testing.T) {
	f := newFixture(t, nil)
	f.contacts.On("List", mock.Anything, alice, int64(0), int64(10)).
		Return([]models.Contact(nil), errs.E(errs.KindStorageUnavailable, "contacts.list", "", errors.New("dial"))).Once()

	assert.Equal(t, http.StatusServiceUnavailable, f.json(http.MethodGet, "/api/v1/contacts", "alice-token", "").Code)
}
