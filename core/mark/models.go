package mark

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
)

// Mark is one marker's scoring record for one submission. At most one row
// exists per (marker, submission) pair.
type Mark struct {
	ID           int           `json:"id" db:"id"`
	SubmissionID int           `json:"submission_id" db:"submission_id"`
	MarkerID     int           `json:"marker_id" db:"marker_id"`
	Marks        core.ScoreMap `json:"marks" db:"marks"`
	IsFinalized  bool          `json:"is_finalized" db:"is_finalized"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"` // UTC
}

// WriteMark is the full-replacement payload for a mark: the score map and
// finalized flag are swapped wholesale, never merged per criterion.
type WriteMark struct {
	Marks       core.ScoreMap `json:"marks" validate:"required"`
	IsFinalized bool          `json:"is_finalized"`
}

func (wm *WriteMark) Validate(validate *validator.Validate, rubric core.ScoreMap) error {
	if err := validate.Struct(wm); err != nil {
		return err
	}
	return wm.Marks.ValidateAgainst(rubric, "marks")
}
