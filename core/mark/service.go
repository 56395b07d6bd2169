package mark

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
)

var ErrNotFound = core.NewNotFoundError("mark not found")

type Repository interface {
	// GetOrCreateMark returns the mark for (markerID, submissionID), creating
	// an empty draft first if none exists yet.
	GetOrCreateMark(ctx context.Context, markerID, submissionID int, exec ...core.DBExecutor) (Mark, error)
	GetMark(ctx context.Context, markerID, submissionID int, exec ...core.DBExecutor) (Mark, error)
	UpdateMark(ctx context.Context, m Mark, exec ...core.DBExecutor) (Mark, error)
	QueryMarksBySubmission(ctx context.Context, submissionID int, exec ...core.DBExecutor) ([]Mark, error)
	QueryMarksByAssignment(ctx context.Context, assignmentID int, exec ...core.DBExecutor) ([]Mark, error)
	// ProvisionMarks creates an empty draft per (marker, submission) pair,
	// skipping pairs that already have one.
	ProvisionMarks(ctx context.Context, markerIDs, submissionIDs []int, exec ...core.DBExecutor) error
	// ResetMarksByAssignment empties and un-finalizes every mark on every
	// submission of an assignment.
	ResetMarksByAssignment(ctx context.Context, assignmentID int, exec ...core.DBExecutor) error
	ResetMarksBySubmission(ctx context.Context, submissionID int, exec ...core.DBExecutor) error
}

type Service struct {
	repo Repository
	tx   core.Transactor
}

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// Get returns the caller's mark for a submission, creating an empty draft on
// first access.
func (svc *Service) Get(ctx context.Context, markerID, submissionID int) (Mark, error) {
	var m Mark
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		m, err = svc.repo.GetOrCreateMark(ctx, markerID, submissionID, exec)
		return err
	})
	if err != nil {
		return Mark{}, errors.Wrap(err, "getting mark")
	}
	return m, nil
}

// Write replaces the caller's mark for a submission with mw. The score map is
// validated against the assignment's rubric; a finalized mark stays writable.
func (svc *Service) Write(ctx context.Context, markerID, submissionID int, rubric core.ScoreMap, mw WriteMark) (Mark, error) {
	if err := mw.Marks.ValidateAgainst(rubric, "marks"); err != nil {
		return Mark{}, err
	}

	var m Mark
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		m, err = svc.repo.GetOrCreateMark(ctx, markerID, submissionID, exec)
		if err != nil {
			return err
		}
		m.Marks = mw.Marks.Clone()
		m.IsFinalized = mw.IsFinalized
		m, err = svc.repo.UpdateMark(ctx, m, exec)
		return err
	})
	if err != nil {
		return Mark{}, errors.Wrap(err, "writing mark")
	}
	return m, nil
}

// QueryBySubmission returns every marker's mark on a submission.
func (svc *Service) QueryBySubmission(ctx context.Context, submissionID int) ([]Mark, error) {
	marks, err := svc.repo.QueryMarksBySubmission(ctx, submissionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	return marks, nil
}
