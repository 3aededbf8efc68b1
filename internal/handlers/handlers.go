package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contactbook/internal/config"
	"contactbook/internal/identity"
	"contactbook/internal/middleware"
	"contactbook/internal/models"
	"contactbook/internal/service"
)

type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (models.User, error)
	Login(ctx context.Context, username, password string) (service.AuthResult, error)
	Logout(ctx context.Context, token string) error
	ConfirmEmail(ctx context.Context, token string) (bool, error)
	RequestEmail(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	SetPassword(ctx context.Context, token, password string) (models.User, error)
}

type AvatarUploader interface {
	Upload(ctx context.Context, user models.User, file io.Reader, declared string) (models.User, error)
}

type ContactStore interface {
	List(ctx context.Context, owner models.User, skip, limit int64) ([]models.Contact, error)
	GetByID(ctx context.Context, owner models.User, id int64) (models.Contact, error)
	Create(ctx context.Context, owner models.User, input models.ContactInput) (models.Contact, error)
	Update(ctx context.Context, owner models.User, id int64, patch models.ContactPatch) (models.Contact, error)
	Remove(ctx context.Context, owner models.User, id int64) (models.Contact, error)
	Search(ctx context.Context, owner models.User, filter models.ContactFilter) ([]models.Contact, error)
	UpcomingBirthdays(ctx context.Context, owner models.User, today time.Time) ([]models.Contact, error)
}

type RoleStore interface {
	SetRole(ctx context.Context, id int64, role models.UserRole) (models.User, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Log      zerolog.Logger
	Config   *config.AppConfig
	Identity middleware.IdentityResolver
	Limiter  *middleware.RateLimiter
	Auth     AuthService
	Avatars  AvatarUploader
	Contacts ContactStore
	Roles    RoleStore
	Checks   map[string]HealthCheck
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	identity middleware.IdentityResolver
	limiter  *middleware.RateLimiter
	auth     AuthService
	avatars  AvatarUploader
	contacts ContactStore
	roles    RoleStore
	checks   map[string]HealthCheck
	now      func() time.Time
}

func NewHandlerSet(deps Dependencies) HandlerSet {
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		identity: deps.Identity,
		limiter:  deps.Limiter,
		auth:     deps.Auth,
		avatars:  deps.Avatars,
		contacts: deps.Contacts,
		roles:    deps.Roles,
		checks:   deps.Checks,
		now:      time.Now,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	authed := middleware.Auth(h.identity, h.log)

	auth := v1.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/logout", authed, h.Logout)
		auth.GET("/confirmed_email/:token", h.ConfirmEmail)
		auth.POST("/request_email", h.RequestEmail)
		auth.POST("/reset_password", h.ResetPassword)
		auth.POST("/set_password/:token", h.SetPassword)
	}

	users := v1.Group("/users", authed)
	{
		users.GET("/me", h.meLimit(), h.Me)
		users.PATCH("/avatar", middleware.RequireRoles(h.log, identity.AdminRoles...), h.UpdateAvatar)
		users.GET("/moderator", middleware.RequireRoles(h.log, identity.ModeratorRoles...), h.Moderator)
		users.GET("/admin", middleware.RequireRoles(h.log, identity.AdminRoles...), h.Admin)
		users.PUT("/:id/role", middleware.RequireRoles(h.log, identity.AdminRoles...), h.SetRole)
	}

	contacts := v1.Group("/contacts", authed)
	{
		contacts.GET("", h.ListContacts)
		contacts.POST("", h.CreateContact)
		contacts.GET("/search", h.SearchContacts)
		contacts.GET("/birthdays", h.UpcomingBirthdays)
		contacts.GET("/:id", h.GetContact)
		contacts.PATCH("/:id", h.UpdateContact)
		contacts.DELETE("/:id", h.RemoveContact)
	}
}

func (h HandlerSet) meLimit() gin.HandlerFunc {
	if h.limiter == nil || !h.cfg.RateLimit.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return h.limiter.Limit("me", h.cfg.RateLimit.MeLimit, h.cfg.RateLimit.MeWindow)
}

func (h HandlerSet) respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, h.log, err)
}

// currentUser is only called behind middleware.Auth.
func currentUser(c *gin.Context) models.User {
	user, _ := middleware.CurrentUser(c)
	return user
}
