package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"contactbook/internal/errs"
	"contactbook/internal/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	dateLayout      = "2006-01-02"
)

// civilDate is a calendar date encoded as "YYYY-MM-DD".
type civilDate time.Time

func (d *civilDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	t, err := time.Parse(`"`+dateLayout+`"`, string(data))
	if err != nil {
		return errs.E(errs.KindValidation, "date", "birthday must be a YYYY-MM-DD date", err)
	}
	*d = civilDate(t)
	return nil
}

func (d civilDate) MarshalJSON() ([]byte, error) {
	return []byte(time.Time(d).Format(`"` + dateLayout + `"`)), nil
}

type contactRequest struct {
	FirstName   string     `json:"first_name" binding:"required,max=50"`
	LastName    string     `json:"last_name" binding:"required,max=50"`
	Email       string     `json:"email" binding:"required,email,max=50"`
	Phone       string     `json:"phone" binding:"required,max=13"`
	Birthday    *civilDate `json:"birthday" binding:"required"`
	Description *string    `json:"description" binding:"omitempty,max=150"`
}

type contactPatchRequest struct {
	FirstName   models.Optional[string]     `json:"first_name"`
	LastName    models.Optional[string]     `json:"last_name"`
	Email       models.Optional[string]     `json:"email"`
	Phone       models.Optional[string]     `json:"phone"`
	Birthday    models.Optional[*civilDate] `json:"birthday"`
	Description models.Optional[*string]    `json:"description"`
}

// contactPatchFields carries the validation rules of the fields present in a
// patch.
type contactPatchFields struct {
	FirstName   *string `binding:"omitempty,min=1,max=50"`
	LastName    *string `binding:"omitempty,min=1,max=50"`
	Email       *string `binding:"omitempty,email,max=50"`
	Phone       *string `binding:"omitempty,min=1,max=13"`
	Description *string `binding:"omitempty,max=150"`
}

type contactResponse struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Birthday    civilDate `json:"birthday"`
	Description *string   `json:"description"`
}

func toContactResponse(c models.Contact) contactResponse {
	return contactResponse{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		Phone:       c.Phone,
		Birthday:    civilDate(c.Birthday),
		Description: c.Description,
	}
}

func toContactResponses(contacts []models.Contact) []contactResponse {
	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, toContactResponse(c))
	}
	return out
}

func (h HandlerSet) ListContacts(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		h.respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	limit = min(limit, maxPageSize)

	contacts, err := h.contacts.List(c.Request.Context(), currentUser(c), skip, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponses(contacts))
}

func (h HandlerSet) SearchContacts(c *gin.Context) {
	contacts, err := h.contacts.Search(c.Request.Context(), currentUser(c), models.ContactFilter{
		FirstName: c.Query("first_name"),
		LastName:  c.Query("last_name"),
		Email:     c.Query("email"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponses(contacts))
}

func (h HandlerSet) UpcomingBirthdays(c *gin.Context) {
	contacts, err := h.contacts.UpcomingBirthdays(c.Request.Context(), currentUser(c), h.now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponses(contacts))
}

func (h HandlerSet) GetContact(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	contact, err := h.contacts.GetByID(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponse(contact))
}

func (h HandlerSet) CreateContact(c *gin.Context) {
	var req contactRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), currentUser(c), models.ContactInput{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		Birthday:    time.Time(*req.Birthday),
		Description: req.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toContactResponse(contact))
}

func (h HandlerSet) UpdateContact(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req contactPatchRequest
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.respondError(c, err)
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), currentUser(c), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponse(contact))
}

func (h HandlerSet) RemoveContact(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	contact, err := h.contacts.Remove(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponse(contact))
}

// toPatch validates the present fields. Null is only accepted for the
// description.
func (r contactPatchRequest) toPatch() (models.ContactPatch, error) {
	const op = "contacts.patch"
	var (
		patch  models.ContactPatch
		fields contactPatchFields
	)

	setString := func(src models.Optional[string], dst *models.Optional[string], check **string) {
		if v, ok := src.Get(); ok {
			v = strings.TrimSpace(v)
			*dst = models.Some(v)
			*check = &v
		}
	}
	setString(r.FirstName, &patch.FirstName, &fields.FirstName)
	setString(r.LastName, &patch.LastName, &fields.LastName)
	setString(r.Email, &patch.Email, &fields.Email)
	setString(r.Phone, &patch.Phone, &fields.Phone)

	if v, ok := r.Birthday.Get(); ok {
		if v == nil {
			return models.ContactPatch{}, errs.E(errs.KindValidation, op, "birthday cannot be null", nil)
		}
		patch.Birthday = models.Some(time.Time(*v))
	}
	if v, ok := r.Description.Get(); ok {
		patch.Description = models.Some(v)
		fields.Description = v
	}

	if err := binding.Validator.ValidateStruct(&fields); err != nil {
		return models.ContactPatch{}, errs.E(errs.KindValidation, op, err.Error(), err)
	}
	return patch, nil
}

func queryInt(c *gin.Context, name string, def int64) (int64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errs.E(errs.KindValidation, "query", name+" must be a non-negative integer", err)
	}
	return v, nil
}
