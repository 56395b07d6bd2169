package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/assignment"
)

const (
	assignmentColumns = `id, name, due_date, rubric_file, rubric_file_name, assignment_file, assignment_file_name, mark_criteria, administrator_id, created_at, updated_at`
	submissionColumns = `id, assignment_id, name, file, file_name, comment, admin_marks, created_at, updated_at`
)

type assignmentRepository struct {
	exec core.DBExecutor
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(exec core.DBExecutor) *assignmentRepository {
	return &assignmentRepository{exec: exec}
}

func (repo assignmentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo assignmentRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	query := `INSERT INTO assignment (name, due_date, rubric_file, rubric_file_name, assignment_file, assignment_file_name, mark_criteria, administrator_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &a.ID, query,
		a.Name, a.DueDate, a.RubricFile, a.RubricFileName, a.AssignmentFile, a.AssignmentFileName,
		a.MarkCriteria, a.AdministratorID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) GetAssignmentByID(ctx context.Context, id int, exec ...core.DBExecutor) (assignment.Assignment, error) {
	var a assignment.Assignment
	query := `SELECT ` + assignmentColumns + ` FROM assignment WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &a, query, id); err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, assignment.ErrNotFound, "finding assignment by ID")
	}
	return a, nil
}

// orderableAssignmentFields whitelists client-supplied ordering fields; the
// DBOrdering value is interpolated into SQL so nothing else may pass.
var orderableAssignmentFields = map[string]bool{
	"name":       true,
	"due_date":   true,
	"created_at": true,
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, ord []core.DBOrdering, exec ...core.DBExecutor) ([]assignment.Assignment, error) {
	orderBy := make([]string, 0, len(ord))
	for _, o := range ord {
		if orderableAssignmentFields[o.Field] {
			orderBy = append(orderBy, o.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "created_at DESC")
	}

	var assignments []assignment.Assignment
	query := `SELECT ` + assignmentColumns + ` FROM assignment ORDER BY ` + strings.Join(orderBy, ", ")
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &assignments, query); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return assignments, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	a.UpdatedAt = time.Now().UTC()

	query := `UPDATE assignment
SET name = $1, due_date = $2, rubric_file = $3, rubric_file_name = $4, assignment_file = $5, assignment_file_name = $6, mark_criteria = $7, updated_at = $8
WHERE id = $9`
	res, err := repo.getExec(exec).ExecContext(ctx, query,
		a.Name, a.DueDate, a.RubricFile, a.RubricFileName, a.AssignmentFile, a.AssignmentFileName,
		a.MarkCriteria, a.UpdatedAt, a.ID)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return a, nil
}

func (repo assignmentRepository) DeleteAssignment(ctx context.Context, id int, exec ...core.DBExecutor) error {
	// submissions and marks go with it via ON DELETE CASCADE
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.ErrNotFound
	}
	return nil
}

func (repo assignmentRepository) CreateSubmission(ctx context.Context, s assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	query := `INSERT INTO submission (assignment_id, name, file, file_name, comment, admin_marks, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &s.ID, query,
		s.AssignmentID, s.Name, s.File, s.FileName, s.Comment, s.AdminMarks, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return s, nil
}

func (repo assignmentRepository) GetSubmissionByID(ctx context.Context, id int, exec ...core.DBExecutor) (assignment.Submission, error) {
	var s assignment.Submission
	query := `SELECT ` + submissionColumns + ` FROM submission WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &s, query, id); err != nil {
		return assignment.Submission{}, repo.trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "finding submission by ID")
	}
	return s, nil
}

func (repo assignmentRepository) QuerySubmissionsByAssignment(ctx context.Context, assignmentID int, exec ...core.DBExecutor) ([]assignment.Submission, error) {
	var subs []assignment.Submission
	query := `SELECT ` + submissionColumns + ` FROM submission WHERE assignment_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &subs, query, assignmentID); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

func (repo assignmentRepository) UpdateSubmission(ctx context.Context, s assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	s.UpdatedAt = time.Now().UTC()

	query := `UPDATE submission
SET name = $1, file = $2, file_name = $3, comment = $4, admin_marks = $5, updated_at = $6
WHERE id = $7`
	res, err := repo.getExec(exec).ExecContext(ctx, query,
		s.Name, s.File, s.FileName, s.Comment, s.AdminMarks, s.UpdatedAt, s.ID)
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	return s, nil
}
