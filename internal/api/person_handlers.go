package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/pneumoscan/internal/auth"
	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/store"
)

type updatePersonRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

func (h *Handler) GetMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentPerson(c))
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req updatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	u := store.PersonUpdate{
		FullName: trimmed(req.FullName),
		Phone:    trimmed(req.Phone),
		Address:  trimmed(req.Address),
	}
	if u.Empty() {
		badRequest(c, "no fields to update")
		return
	}
	if u.FullName != nil && *u.FullName == "" {
		badRequest(c, "full_name must not be blank")
		return
	}

	person, err := h.persons.UpdatePerson(c.Request.Context(), currentPerson(c).ID, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "current_password, new_password and confirm_password are required")
		return
	}
	if len(req.NewPassword) < auth.MinPasswordLength {
		badRequest(c, "new password must be at least 8 characters")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		badRequest(c, "new password and confirmation do not match")
		return
	}

	person := currentPerson(c)
	if err := auth.ComparePassword(person.PasswordHash, req.CurrentPassword); err != nil {
		h.recordAuth("password_change", "bad_password")
		h.fail(c, err)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.persons.UpdatePassword(c.Request.Context(), person.ID, hash); err != nil {
		h.fail(c, err)
		return
	}
	h.recordAuth("password_change", "success")
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (h *Handler) GetHealthProfile(c *gin.Context) {
	profile, err := h.persons.FindProfile(c.Request.Context(), currentPerson(c).ID)
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": true, "profile": profile})
}

func (h *Handler) GetVulnerability(c *gin.Context) {
	info := h.assessor.Assess(c.Request.Context(), currentPerson(c).ID)
	c.JSON(http.StatusOK, info)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
