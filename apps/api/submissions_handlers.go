package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"negrostrees/libs/mailer"
	"negrostrees/libs/validate"

	"github.com/gin-gonic/gin"
)

const submissionNotifyTimeout = 15 * time.Second

type submissionForm struct {
	input  SubmissionInput
	errors map[string]string
}

// parseSubmissionForm reads the multipart photo submission. Field problems are
// collected rather than returned so the client can mark every invalid input.
func parseSubmissionForm(c *gin.Context) (submissionForm, error) {
	form := submissionForm{errors: map[string]string{}}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		return form, &apiError{Status: http.StatusBadRequest, Code: "invalid_multipart", Message: "Invalid multipart form"}
	}

	description := strings.TrimSpace(c.PostForm("description"))
	personName := strings.TrimSpace(c.PostForm("person_name"))
	latRaw := strings.TrimSpace(c.PostForm("latitude"))
	lngRaw := strings.TrimSpace(c.PostForm("longitude"))

	checks := []struct {
		field   string
		message string
	}{
		{"description", validate.Description(description)},
		{"person_name", validate.Name(personName)},
		{"latitude", validate.Latitude(latRaw)},
		{"longitude", validate.Longitude(lngRaw)},
	}
	for _, check := range checks {
		if check.message != "" {
			form.errors[check.field] = check.message
		}
	}

	var image []byte
	var mimeType string
	if fileHeader, err := c.FormFile("image"); err == nil {
		opened, err := fileHeader.Open()
		if err != nil {
			return form, err
		}
		image, err = io.ReadAll(io.LimitReader(opened, validate.MaxImageBytes+1))
		_ = opened.Close()
		if err != nil {
			return form, err
		}
		mimeType = fileHeader.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(image)
		}
	}
	if messages := validate.Image(mimeType, int64(len(image))); len(messages) > 0 {
		form.errors["image"] = strings.Join(messages, " ")
	}

	if len(form.errors) > 0 {
		return form, nil
	}

	lat, _ := strconv.ParseFloat(latRaw, 64)
	lng, _ := strconv.ParseFloat(lngRaw, 64)
	form.input = SubmissionInput{
		Description: description,
		Latitude:    lat,
		Longitude:   lng,
		PersonName:  personName,
		Image:       image,
		ImageFormat: validate.CleanMimeType(mimeType),
	}
	return form, nil
}

func (a *App) createSubmissionHandler(c *gin.Context) {
	if !a.checkRateLimit("submission:"+c.ClientIP(), a.cfg.SubmissionRateLimit, submissionRateLimitWindow, time.Now().UTC()) {
		writeAPIError(c, &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many submissions from this address. Please retry later."})
		return
	}

	form, err := parseSubmissionForm(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if len(form.errors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Please correct the highlighted fields",
			"code":    "validation_failed",
			"errors":  form.errors,
		})
		return
	}

	created, err := a.submissionCreate(c.Request.Context(), form.input)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	a.metrics.recordSubmission()

	if a.mailer != nil && len(a.cfg.SubmissionNotifyTo) > 0 {
		go func(s Submission) {
			ctx, cancel := context.WithTimeout(context.Background(), submissionNotifyTimeout)
			defer cancel()
			if err := a.notifySubmission(ctx, s); err != nil {
				a.log.Error("failed to send submission notification", "submission_id", s.ID, "err", err)
			}
		}(*created)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"message":    "Thank you! Your tree photo has been submitted.",
		"submission": created,
	})
}

func (a *App) notifySubmission(ctx context.Context, s Submission) error {
	imageURL := buildPublicURL(a.cfg.PublicBaseURL, s.ImageURL)
	subject := fmt.Sprintf("New tree photo submission from %s", s.PersonName)
	text := fmt.Sprintf(
		"%s submitted a tree photo at %.6f, %.6f.\n\n%s\n\nImage: %s\n",
		s.PersonName, s.Latitude, s.Longitude, s.Description, imageURL,
	)
	body := fmt.Sprintf(
		"<p><strong>%s</strong> submitted a tree photo at %.6f, %.6f.</p><p>%s</p><p><a href=\"%s\">View image</a></p>",
		html.EscapeString(s.PersonName), s.Latitude, s.Longitude, html.EscapeString(s.Description), html.EscapeString(imageURL),
	)

	result, err := a.mailer.Send(ctx, mailer.Message{
		To:      a.cfg.SubmissionNotifyTo,
		Subject: subject,
		HTML:    body,
		Text:    text,
		Tags:    map[string]string{"category": "photo_submission", "submission_id": strconv.Itoa(s.ID)},
	})
	if err != nil {
		return err
	}
	a.log.Info("submission notification sent", "submission_id", s.ID, "message_id", result.ProviderMessageID)
	return nil
}

func (a *App) listSubmissionsHandler(c *gin.Context) {
	submissions, err := a.submissionList(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "submissions": submissions})
}

func (a *App) submissionImageHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeAPIError(c, errSubmissionNotFound)
		return
	}
	image, format, err := a.submissionImage(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if format == "" {
		format = http.DetectContentType(image)
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, format, image)
}
