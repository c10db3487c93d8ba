package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func buildPublicURL(baseURL, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimRight(baseURL, "/") + path
	}
	return strings.TrimRight(baseURL, "/") + "/" + path
}

func (a *App) createUserSessionToken(session UserSession) (string, error) {
	claims := jwt.MapClaims{
		"email": session.Email,
		"role":  session.Role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(userSessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyUserSessionToken(tokenString string) (*UserSession, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if email == "" || !containsString(userRoles, role) {
		return nil, fmt.Errorf("invalid session payload")
	}
	return &UserSession{Email: email, Role: role}, nil
}

func (a *App) startUserSession(c *gin.Context, session UserSession) error {
	token, err := a.createUserSessionToken(session)
	if err != nil {
		return err
	}
	c.SetCookie(userCookieName, token, int(userSessionDuration.Seconds()), "/", "", a.secureCookies(), true)
	return nil
}

func (a *App) clearUserSession(c *gin.Context) {
	c.SetCookie(userCookieName, "", -1, "/", "", a.secureCookies(), true)
}

func (a *App) secureCookies() bool {
	return strings.EqualFold(a.cfg.Env, "production")
}

func (a *App) requireUserSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(userCookieName)
		if err != nil {
			writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Login required"})
			c.Abort()
			return
		}
		session, err := a.verifyUserSessionToken(token)
		if err != nil {
			writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Login required"})
			c.Abort()
			return
		}
		c.Set("userSession", *session)
		c.Next()
	}
}

func (a *App) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := getUserSession(c)
		if err != nil {
			writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Login required"})
			c.Abort()
			return
		}
		if session.Role != role {
			writeAPIError(c, &apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "You do not have permission to perform this action"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func getUserSession(c *gin.Context) (UserSession, error) {
	value, ok := c.Get("userSession")
	if !ok {
		return UserSession{}, fmt.Errorf("missing session")
	}
	session, ok := value.(UserSession)
	if !ok {
		return UserSession{}, fmt.Errorf("invalid session")
	}
	return session, nil
}

func newCSRFToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (a *App) issueCSRFToken(c *gin.Context) string {
	if existing, err := c.Cookie(csrfCookieName); err == nil && existing != "" {
		return existing
	}
	token := newCSRFToken()
	// The page script reads this cookie, so it is not HttpOnly.
	c.SetCookie(csrfCookieName, token, int(csrfCookieMaxAge.Seconds()), "/", "", a.secureCookies(), false)
	return token
}

// csrfMiddleware enforces the double-submit check on unsafe methods: the
// X-CSRFToken header must equal the csrftoken cookie.
func (a *App) csrfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		cookie, err := c.Cookie(csrfCookieName)
		header := c.GetHeader(csrfHeaderName)
		if err != nil || cookie == "" || header == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			writeAPIError(c, &apiError{Status: http.StatusForbidden, Code: "csrf_failed", Message: "CSRF token missing or incorrect"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	bucket, ok := a.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		a.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	a.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

// startStateCleanup prunes expired rate-limit buckets and idle map views until
// ctx is cancelled.
func (a *App) startStateCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
				if a.mapViews != nil {
					if removed := a.mapViews.prune(now, a.cfg.MapViewTTL); removed > 0 {
						a.log.Info("expired idle map views", "count", removed)
						a.metrics.setMapViews(a.mapViews.len())
					}
				}
			}
		}
	}()
}

func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()
	for key, bucket := range a.rateBuckets {
		if now.Sub(bucket.start) >= submissionRateLimitWindow {
			delete(a.rateBuckets, key)
		}
	}
}
