package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Skufu/pneumoscan/internal/auth"
	"github.com/Skufu/pneumoscan/internal/model"
)

const (
	personKey = "person"
	claimsKey = "claims"

	limiterIdle = 10 * time.Minute
)

// Identify attaches the caller's person to the context when the request carries
// a valid bearer token. Missing, invalid or revoked tokens, and tokens whose
// person was deleted, leave the request anonymous. Other lookup failures abort
// with 500.
func (h *Handler) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.accountsEnabled() {
			c.Next()
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		claims, err := h.tokens.Validate(token)
		if err != nil {
			h.logger.Debug("ignoring invalid token", zap.Error(err))
			c.Next()
			return
		}
		person, err := h.persons.FindPersonByID(c.Request.Context(), claims.PersonID)
		if errors.Is(err, model.ErrNotFound) {
			h.logger.Debug("token person no longer exists",
				zap.String("person_id", claims.PersonID.String()))
			c.Next()
			return
		}
		if err != nil {
			h.fail(c, fmt.Errorf("resolve token person %s: %w", claims.PersonID, err))
			return
		}

		c.Set(personKey, person)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentPerson(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RateLimit allows perMinute requests per client IP with an equal burst. Zero
// disables the limit.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := cache.New(limiterIdle, 2*limiterIdle)
	every := rate.Every(time.Minute / time.Duration(perMinute))

	get := func(key string) *rate.Limiter {
		if v, ok := limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(every, perMinute)
		if err := limiters.Add(key, l, limiterIdle); err != nil {
			if v, ok := limiters.Get(key); ok {
				return v.(*rate.Limiter)
			}
		}
		return l
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		l := get(key)
		limiters.SetDefault(key, l)

		r := l.Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func currentPerson(c *gin.Context) *model.Person {
	if v, ok := c.Get(personKey); ok {
		if p, ok := v.(*model.Person); ok {
			return p
		}
	}
	return nil
}

func currentClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if cl, ok := v.(*auth.Claims); ok {
			return cl
		}
	}
	return nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
