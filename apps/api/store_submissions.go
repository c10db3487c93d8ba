package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var errSubmissionNotFound = notFound("submission_not_found", "Submission not found")

func (a *App) storeCreateSubmission(ctx context.Context, input SubmissionInput) (*Submission, error) {
	var s Submission
	var createdAt time.Time
	err := a.db.QueryRowContext(ctx, `
		INSERT INTO tree_photo_submissions (description, latitude, longitude, person_name, image, image_format)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, description, latitude, longitude, person_name, image_format, created_at
	`, input.Description, input.Latitude, input.Longitude, input.PersonName, input.Image, input.ImageFormat).Scan(
		&s.ID, &s.Description, &s.Latitude, &s.Longitude, &s.PersonName, &s.ImageFormat, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	s.ImageURL = submissionImagePath(s.ID)
	return &s, nil
}

func (a *App) storeListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, description, latitude, longitude, person_name, image_format, created_at
		FROM tree_photo_submissions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]Submission, 0)
	for rows.Next() {
		var s Submission
		var createdAt time.Time
		if err := rows.Scan(&s.ID, &s.Description, &s.Latitude, &s.Longitude, &s.PersonName, &s.ImageFormat, &createdAt); err != nil {
			return nil, err
		}
		s.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		s.ImageURL = submissionImagePath(s.ID)
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

func (a *App) storeSubmissionImage(ctx context.Context, id int) ([]byte, string, error) {
	var image []byte
	var format string
	err := a.db.QueryRowContext(ctx, `SELECT image, image_format FROM tree_photo_submissions WHERE id = $1`, id).Scan(&image, &format)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", errSubmissionNotFound
		}
		return nil, "", err
	}
	return image, format, nil
}

func submissionImagePath(id int) string {
	return fmt.Sprintf("/api/submissions/%d/image", id)
}
