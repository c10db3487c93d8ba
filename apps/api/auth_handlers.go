package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func (a *App) csrfHandler(c *gin.Context) {
	token := a.issueCSRFToken(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "csrf_token": token})
}

func (a *App) loginHandler(c *gin.Context) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid login payload"))
		return
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	role, err := a.authenticateUser(c.Request.Context(), email, payload.Password)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	if err := a.startUserSession(c, UserSession{Email: email, Role: role}); err != nil {
		writeAPIError(c, err)
		return
	}
	a.log.Info("user logged in", "email", email, "role", role)
	c.JSON(http.StatusOK, gin.H{"success": true, "email": email, "role": role})
}

func (a *App) logoutHandler(c *gin.Context) {
	a.clearUserSession(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *App) sessionHandler(c *gin.Context) {
	token, err := c.Cookie(userCookieName)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Login required"})
		return
	}
	session, err := a.verifyUserSessionToken(token)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Login required"})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *App) storeAuthenticateUser(ctx context.Context, email, password string) (string, error) {
	var passwordHash string
	var role string
	var isActive bool
	err := a.db.QueryRowContext(ctx, `
		SELECT password_hash, role, is_active
		FROM users
		WHERE email = $1
	`, email).Scan(&passwordHash, &role, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid email or password"}
		}
		return "", err
	}
	if !isActive || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return "", &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid email or password"}
	}
	return role, nil
}
