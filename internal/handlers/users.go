package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contactbook/internal/errs"
	"contactbook/internal/media/sniffer"
	"contactbook/internal/models"
)

func (h HandlerSet) Me(c *gin.Context) {
	c.JSON(http.StatusOK, toUserResponse(currentUser(c)))
}

func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	user := currentUser(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.respondError(c, errs.E(errs.KindValidation, "users.avatar", "file is required", err))
		return
	}
	defer file.Close()

	updated, err := h.avatars.Upload(c.Request.Context(), user, file, sniffer.MimeTypeFromHTTP(http.Header(header.Header)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(updated))
}

func (h HandlerSet) Moderator(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Welcome, %s! This route is for moderators and administrators.", currentUser(c).Username),
	})
}

func (h HandlerSet) Admin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Welcome, %s! This is an administrative route.", currentUser(c).Username),
	})
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=user moderator admin"`
}

func (h HandlerSet) SetRole(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req roleRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	user, err := h.roles.SetRole(c.Request.Context(), id, models.UserRole(req.Role))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.log.Info().Int64("user_id", id).Str("role", req.Role).Int64("by", currentUser(c).ID).Msg("role changed")
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h HandlerSet) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, errs.E(errs.KindValidation, "path", "id must be a positive integer", nil))
		return 0, false
	}
	return id, true
}
