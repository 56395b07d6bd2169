package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/mark"
)

const markColumns = `id, submission_id, marker_id, marks, is_finalized, created_at, updated_at`

type markRepository struct {
	exec core.DBExecutor
}

var _ mark.Repository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(exec core.DBExecutor) *markRepository {
	return &markRepository{exec: exec}
}

func (repo markRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo markRepository) GetMark(ctx context.Context, markerID, submissionID int, exec ...core.DBExecutor) (mark.Mark, error) {
	var m mark.Mark
	query := `SELECT ` + markColumns + ` FROM mark WHERE marker_id = $1 AND submission_id = $2`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &m, query, markerID, submissionID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return mark.Mark{}, mark.ErrNotFound
		}
		return mark.Mark{}, errors.Wrap(err, "finding mark")
	}
	return m, nil
}

func (repo markRepository) GetOrCreateMark(ctx context.Context, markerID, submissionID int, exec ...core.DBExecutor) (mark.Mark, error) {
	now := time.Now().UTC()
	query := `INSERT INTO mark (submission_id, marker_id, marks, is_finalized, created_at, updated_at)
VALUES ($1, $2, '{}', FALSE, $3, $3)
ON CONFLICT (marker_id, submission_id) DO NOTHING`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, submissionID, markerID, now); err != nil {
		return mark.Mark{}, errors.Wrap(err, "inserting draft mark")
	}
	return repo.GetMark(ctx, markerID, submissionID, exec...)
}

func (repo markRepository) UpdateMark(ctx context.Context, m mark.Mark, exec ...core.DBExecutor) (mark.Mark, error) {
	m.UpdatedAt = time.Now().UTC()

	query := `UPDATE mark SET marks = $1, is_finalized = $2, updated_at = $3 WHERE id = $4`
	res, err := repo.getExec(exec).ExecContext(ctx, query, m.Marks, m.IsFinalized, m.UpdatedAt, m.ID)
	if err != nil {
		return mark.Mark{}, errors.Wrap(err, "updating mark")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return mark.Mark{}, mark.ErrNotFound
	}
	return m, nil
}

func (repo markRepository) QueryMarksBySubmission(ctx context.Context, submissionID int, exec ...core.DBExecutor) ([]mark.Mark, error) {
	var marks []mark.Mark
	query := `SELECT ` + markColumns + ` FROM mark WHERE submission_id = $1 ORDER BY marker_id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &marks, query, submissionID); err != nil {
		return nil, errors.Wrap(err, "querying marks by submission")
	}
	return marks, nil
}

func (repo markRepository) QueryMarksByAssignment(ctx context.Context, assignmentID int, exec ...core.DBExecutor) ([]mark.Mark, error) {
	var marks []mark.Mark
	query := `SELECT ` + markColumns + ` FROM mark
WHERE submission_id IN (SELECT id FROM submission WHERE assignment_id = $1)
ORDER BY submission_id, marker_id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &marks, query, assignmentID); err != nil {
		return nil, errors.Wrap(err, "querying marks by assignment")
	}
	return marks, nil
}

func (repo markRepository) ProvisionMarks(ctx context.Context, markerIDs, submissionIDs []int, exec ...core.DBExecutor) error {
	now := time.Now().UTC()
	query := `INSERT INTO mark (submission_id, marker_id, marks, is_finalized, created_at, updated_at)
VALUES ($1, $2, '{}', FALSE, $3, $3)
ON CONFLICT (marker_id, submission_id) DO NOTHING`
	exe := repo.getExec(exec)
	for _, subID := range submissionIDs {
		for _, markerID := range markerIDs {
			if _, err := exe.ExecContext(ctx, query, subID, markerID, now); err != nil {
				return errors.Wrap(err, "provisioning marks")
			}
		}
	}
	return nil
}

func (repo markRepository) ResetMarksByAssignment(ctx context.Context, assignmentID int, exec ...core.DBExecutor) error {
	query := `UPDATE mark SET marks = '{}', is_finalized = FALSE, updated_at = $1
WHERE submission_id IN (SELECT id FROM submission WHERE assignment_id = $2)`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, time.Now().UTC(), assignmentID); err != nil {
		return errors.Wrap(err, "resetting assignment marks")
	}
	return nil
}

func (repo markRepository) ResetMarksBySubmission(ctx context.Context, submissionID int, exec ...core.DBExecutor) error {
	query := `UPDATE mark SET marks = '{}', is_finalized = FALSE, updated_at = $1 WHERE submission_id = $2`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, time.Now().UTC(), submissionID); err != nil {
		return errors.Wrap(err, "resetting submission marks")
	}
	return nil
}
