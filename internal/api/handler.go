// Package api exposes accounts, profiles and X-ray analyses over HTTP with gin.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/analysis"
	"github.com/Skufu/pneumoscan/internal/auth"
	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/store"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

type PersonStore interface {
	CreatePersonWithProfile(ctx context.Context, p *model.Person, hp *model.HealthProfile) error
	FindPersonByEmail(ctx context.Context, email string) (*model.Person, error)
	FindPersonByID(ctx context.Context, id uuid.UUID) (*model.Person, error)
	UpdatePerson(ctx context.Context, id uuid.UUID, u store.PersonUpdate) (*model.Person, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	FindProfile(ctx context.Context, personID uuid.UUID) (*model.HealthProfile, error)
	ListAnalyses(ctx context.Context, personID uuid.UUID, limit int) ([]model.AnalysisRecord, error)
}

type Tokens interface {
	Issue(personID uuid.UUID, email string) (string, time.Time, error)
	Validate(token string) (*auth.Claims, error)
	Revoke(claims *auth.Claims)
}

type Analyzer interface {
	Analyze(ctx context.Context, up analysis.Upload, person *model.Person) (*analysis.Outcome, error)
}

type Assessor interface {
	Assess(ctx context.Context, personID uuid.UUID) vulnerability.Info
}

// AuthRecorder receives login, logout and registration outcomes.
type AuthRecorder interface {
	RecordAuth(event, outcome string)
}

// Deps are the handler's collaborators. Without Persons and Tokens only the
// anonymous /predict route is served.
type Deps struct {
	Persons  PersonStore
	Tokens   Tokens
	Analyzer Analyzer
	Assessor Assessor
	Recorder AuthRecorder
	Logger   *zap.Logger

	MaxUploadBytes    int64
	PredictRatePerMin int
}

type Handler struct {
	persons  PersonStore
	tokens   Tokens
	analyzer Analyzer
	assessor Assessor
	recorder AuthRecorder
	logger   *zap.Logger

	maxUpload int64
	limiter   gin.HandlerFunc
	now       func() time.Time
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		persons:   d.Persons,
		tokens:    d.Tokens,
		analyzer:  d.Analyzer,
		assessor:  d.Assessor,
		recorder:  d.Recorder,
		logger:    logger,
		maxUpload: maxUpload,
		limiter:   RateLimit(d.PredictRatePerMin),
		now:       time.Now,
	}
}

func (h *Handler) accountsEnabled() bool {
	return h.persons != nil && h.tokens != nil
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.POST("/predict", h.limiter, h.Identify(), h.Predict)

	if !h.accountsEnabled() {
		return
	}

	authed := r.Group("", h.Identify(), h.RequireAuth())

	a := r.Group("/auth")
	a.POST("/register", h.RegisterPerson)
	a.POST("/login", h.Login)
	a.POST("/logout", h.Identify(), h.RequireAuth(), h.Logout)
	a.GET("/session", h.Identify(), h.Session)

	authed.GET("/persons/me", h.GetMe)
	authed.PUT("/persons/me", h.UpdateMe)
	authed.PUT("/persons/me/password", h.ChangePassword)
	authed.GET("/health-profile", h.GetHealthProfile)
	authed.GET("/vulnerability", h.GetVulnerability)
	authed.POST("/analyses", h.limiter, h.CreateAnalysis)
	authed.GET("/analyses", h.ListAnalyses)
}

func (h *Handler) recordAuth(event, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordAuth(event, outcome)
	}
}
