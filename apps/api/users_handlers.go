package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const usersPageSize = 25

var errSelfModification = badRequest("self_modification", "You cannot change or delete your own account")

func parseUserID(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errUserNotFound
	}
	return id, nil
}

func parseUserFilters(c *gin.Context) map[string]any {
	filters := map[string]any{}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filters["q"] = q
	}
	if status := c.Query("status"); status == "active" || status == "inactive" {
		filters["status"] = status
	}
	if role := c.Query("role"); containsString(userRoles, role) {
		filters["role"] = role
	}
	return filters
}

func parseUserInput(fields map[string]string) (UserInput, error) {
	if missing := missingFields(fields, "email", "password", "role"); len(missing) > 0 {
		return UserInput{}, badRequest("missing_fields", "Missing required fields: "+strings.Join(missing, ", "))
	}
	email := strings.ToLower(fields["email"])
	if _, err := mail.ParseAddress(email); err != nil {
		return UserInput{}, badRequest("invalid_email", "Invalid email address")
	}
	if len(fields["password"]) < minPasswordLength {
		return UserInput{}, badRequest("weak_password", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if !containsString(userRoles, fields["role"]) {
		return UserInput{}, badRequest("invalid_role", "Invalid role. Must be one of: "+strings.Join(userRoles, ", "))
	}
	return UserInput{Email: email, Password: fields["password"], Role: fields["role"]}, nil
}

// guardSelf rejects changes to the account behind the current session.
func (a *App) guardSelf(c *gin.Context, id int) error {
	session, err := getUserSession(c)
	if err != nil {
		return nil
	}
	target, err := a.userGet(c.Request.Context(), id)
	if err != nil {
		return err
	}
	if strings.EqualFold(target.Email, session.Email) {
		return errSelfModification
	}
	return nil
}

func (a *App) listUsersHandler(c *gin.Context) {
	page := parsePage(c.Query("page"))
	result, err := a.userListPaginated(c.Request.Context(), parseUserFilters(c), page, usersPageSize)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"users":      result.Users,
		"pagination": buildPaginationView(result.TotalCount, page, usersPageSize),
	})
}

func (a *App) createUserHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	input, err := parseUserInput(fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	user, err := a.userCreate(c.Request.Context(), input)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User created successfully", "user": user})
}

func (a *App) updateUserHandler(c *gin.Context) {
	id, err := parseUserID(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if !containsString(userRoles, fields["role"]) {
		writeAPIError(c, badRequest("invalid_role", "Invalid role. Must be one of: "+strings.Join(userRoles, ", ")))
		return
	}
	if err := a.guardSelf(c, id); err != nil {
		writeAPIError(c, err)
		return
	}
	user, err := a.userUpdate(c.Request.Context(), id, UserUpdate{
		Role:     fields["role"],
		IsActive: parseBoolField(fields["is_active"], true),
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User updated successfully", "user": user})
}

func (a *App) deleteUserHandler(c *gin.Context) {
	id, err := parseUserID(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if err := a.guardSelf(c, id); err != nil {
		writeAPIError(c, err)
		return
	}
	if err := a.userDelete(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully"})
}

func (a *App) bulkUserStatusHandler(c *gin.Context) {
	var payload struct {
		UserIDs  []int `json:"user_ids"`
		IsActive bool  `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid JSON body"))
		return
	}
	ids := make([]int, 0, len(payload.UserIDs))
	for _, id := range payload.UserIDs {
		if id <= 0 {
			continue
		}
		if err := a.guardSelf(c, id); err != nil {
			if errors.Is(err, errUserNotFound) {
				continue
			}
			writeAPIError(c, err)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		writeAPIError(c, badRequest("no_ids", "No user IDs provided"))
		return
	}
	updated, err := a.userBulkStatus(c.Request.Context(), ids, payload.IsActive)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Updated %d users", updated),
		"updated_count": updated,
	})
}
