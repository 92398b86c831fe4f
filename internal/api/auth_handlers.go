package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/pneumoscan/internal/auth"
	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

const dateLayout = "2006-01-02"

type registerRequest struct {
	Email             string                  `json:"email" binding:"required,email"`
	Password          string                  `json:"password" binding:"required,min=8"`
	FullName          string                  `json:"full_name" binding:"required"`
	Phone             string                  `json:"phone"`
	Address           string                  `json:"address"`
	BirthDate         string                  `json:"birth_date" binding:"required"`
	ZoneType          model.ZoneType          `json:"zone_type" binding:"required,oneof=urban periurban rural hard_to_reach"`
	EconomicSituation model.EconomicSituation `json:"economic_situation" binding:"required,oneof=limited moderate stable undisclosed"`
	HealthcareAccess  model.HealthcareAccess  `json:"healthcare_access" binding:"required,oneof=very_difficult difficult moderate easy private"`
	CovidExperiences  []string                `json:"covid_experiences" binding:"dive,oneof=diagnosed hospitalized respiratory_sequelae job_loss no_covid"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Person    *model.Person `json:"person"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (h *Handler) RegisterPerson(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid registration data: "+err.Error())
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		badRequest(c, "full_name must not be blank")
		return
	}
	birth, err := time.Parse(dateLayout, req.BirthDate)
	if err != nil {
		badRequest(c, "birth_date must be formatted as YYYY-MM-DD")
		return
	}
	if birth.After(h.now()) {
		badRequest(c, "birth_date must not be in the future")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	person := &model.Person{
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		Address:      strings.TrimSpace(req.Address),
		PasswordHash: hash,
	}
	profile := &model.HealthProfile{
		BirthDate:         birth,
		ZoneType:          req.ZoneType,
		EconomicSituation: req.EconomicSituation,
		HealthcareAccess:  req.HealthcareAccess,
		CovidExperience:   covidExperience(req.CovidExperiences),
	}
	assessment := vulnerability.Score(profile, h.now())
	profile.VulnerabilityTier = assessment.Tier
	profile.Priority = assessment.Priority

	if err := h.persons.CreatePersonWithProfile(c.Request.Context(), person, profile); err != nil {
		h.recordAuth("register", "failure")
		h.fail(c, err)
		return
	}

	token, expires, err := h.tokens.Issue(person.ID, person.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recordAuth("register", "success")

	c.JSON(http.StatusCreated, gin.H{
		"person":        person,
		"profile":       profile,
		"vulnerability": assessment,
		"token":         token,
		"expires_at":    expires,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	person, err := h.persons.FindPersonByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, model.ErrNotFound) {
		h.recordAuth("login", "unknown_email")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no account is registered with this email"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := auth.ComparePassword(person.PasswordHash, req.Password); err != nil {
		h.recordAuth("login", "bad_password")
		h.fail(c, err)
		return
	}

	token, expires, err := h.tokens.Issue(person.ID, person.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recordAuth("login", "success")
	c.JSON(http.StatusOK, sessionResponse{Person: person, Token: token, ExpiresAt: expires})
}

func (h *Handler) Logout(c *gin.Context) {
	h.tokens.Revoke(currentClaims(c))
	h.recordAuth("logout", "success")
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) Session(c *gin.Context) {
	person := currentPerson(c)
	if person == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "person": person})
}

func covidExperience(values []string) model.CovidExperience {
	var ce model.CovidExperience
	for _, v := range values {
		switch v {
		case "diagnosed":
			ce.Diagnosed = true
		case "hospitalized":
			ce.Hospitalized = true
		case "respiratory_sequelae":
			ce.RespiratorySequelae = true
		case "job_loss":
			ce.JobLoss = true
		case "no_covid":
			ce.NoCovid = true
		}
	}
	return ce
}
