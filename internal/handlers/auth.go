package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contactbook/internal/errs"
	"contactbook/internal/middleware"
	"contactbook/internal/models"
	"contactbook/internal/service"
)

type signupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// loginRequest accepts the OAuth2 password form as well as JSON.
type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type passwordRequest struct {
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type userResponse struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Avatar   *string `json:"avatar"`
	Role     string  `json:"role"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.AvatarURL,
		Role:     string(u.Role),
	}
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, c.ShouldBind, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   int64(result.ExpiresIn.Seconds()),
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.AccessToken(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) ConfirmEmail(c *gin.Context) {
	already, err := h.auth.ConfirmEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	msg := "email confirmed"
	if already {
		msg = "email already confirmed"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h HandlerSet) RequestEmail(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	if err := h.auth.RequestEmail(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "check your email for confirmation"})
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	if err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "check your email to set a new password"})
}

func (h HandlerSet) SetPassword(c *gin.Context) {
	var req passwordRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	user, err := h.auth.SetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// bind decodes the request and reports a Validation error on failure.
func (h HandlerSet) bind(c *gin.Context, decode func(any) error, dst any) bool {
	if err := decode(dst); err != nil {
		h.respondError(c, errs.E(errs.KindValidation, "bind", err.Error(), err))
		return false
	}
	return true
}
