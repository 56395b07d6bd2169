package assignment

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
)

type Assignment struct {
	ID                 int           `json:"id" db:"id"`
	Name               string        `json:"name" db:"name"`
	DueDate            time.Time     `json:"due_date" db:"due_date"` // UTC
	RubricFile         string        `json:"-" db:"rubric_file"`     // stored name
	RubricFileName     string        `json:"rubric_file" db:"rubric_file_name"`
	AssignmentFile     string        `json:"-" db:"assignment_file"`
	AssignmentFileName string        `json:"assignment_file" db:"assignment_file_name"`
	MarkCriteria       core.ScoreMap `json:"mark_criteria" db:"mark_criteria"`
	AdministratorID    null.Int      `json:"administrator_id" db:"administrator_id"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"` // UTC
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"` // UTC
}

type Submission struct {
	ID           int           `json:"id" db:"id"`
	AssignmentID int           `json:"assignment_id" db:"assignment_id"`
	Name         string        `json:"name" db:"name"`
	File         string        `json:"-" db:"file"` // stored name
	FileName     string        `json:"file" db:"file_name"`
	Comment      string        `json:"comment" db:"comment"`
	AdminMarks   core.ScoreMap `json:"admin_marks" db:"admin_marks"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"` // UTC
}

// Upload is a file received from a client, not yet persisted to the store.
type Upload struct {
	Filename string
	Content  io.Reader
}

type NewSubmission struct {
	Name       string        `json:"name" validate:"required,max=255"`
	Comment    string        `json:"comment" validate:"max=2000"`
	AdminMarks core.ScoreMap `json:"admin_marks"`
	File       *Upload       `json:"-"`
}

type NewAssignment struct {
	Name           string          `json:"name" validate:"required,max=255"`
	DueDate        time.Time       `json:"due_date" validate:"required"`
	MarkCriteria   core.ScoreMap   `json:"mark_criteria" validate:"required,min=1"`
	RubricFile     *Upload         `json:"-"`
	AssignmentFile *Upload         `json:"-"`
	Submissions    []NewSubmission `json:"submissions" validate:"dive"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.RubricFile == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "rubric", Error: "rubric file is required"})
	}
	if na.AssignmentFile == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "assignment_file", Error: "assignment file is required"})
	}
	for i := range na.Submissions {
		sub := &na.Submissions[i]
		sub.Name = core.CleanString(sub.Name)
		if sub.File == nil {
			return core.NewValidationError(nil, core.FieldError{Field: "submissions", Error: "submission file is required"})
		}
		if err := sub.AdminMarks.ValidateAgainst(na.MarkCriteria, "admin_marks"); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSubmission edits an existing submission in place. A nil File keeps the
// current one; a non-nil File replaces it and voids the submission's marks.
type UpdateSubmission struct {
	Name       string        `json:"name" validate:"required,max=255"`
	Comment    string        `json:"comment" validate:"max=2000"`
	AdminMarks core.ScoreMap `json:"admin_marks"`
	File       *Upload       `json:"-"`
}

// UpdateAssignment carries the full replacement state of an assignment.
// Submissions are matched to the existing ones by position; adding or removing
// submissions through an edit is not allowed.
type UpdateAssignment struct {
	Name           string             `json:"name" validate:"required,max=255"`
	DueDate        time.Time          `json:"due_date" validate:"required"`
	MarkCriteria   core.ScoreMap      `json:"mark_criteria" validate:"required,min=1"`
	RubricFile     *Upload            `json:"-"`
	AssignmentFile *Upload            `json:"-"`
	Submissions    []UpdateSubmission `json:"submissions" validate:"dive"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	ua.Name = core.CleanString(ua.Name)
	if err := validate.Struct(ua); err != nil {
		return err
	}
	for i := range ua.Submissions {
		sub := &ua.Submissions[i]
		sub.Name = core.CleanString(sub.Name)
		if err := sub.AdminMarks.ValidateAgainst(ua.MarkCriteria, "admin_marks"); err != nil {
			return err
		}
	}
	return nil
}
