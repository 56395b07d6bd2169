package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/assignment"
)

type assignmentRepository struct {
	db    *assignmentTable
	subs  *submissionTable
	marks *markTable
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db.assignment, subs: db.submission, marks: db.mark}
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, a assignment.Assignment, _ ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	repo.db.pkCount++
	a.ID = repo.db.pkCount
	repo.db.table[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) GetAssignmentByID(_ context.Context, id int, _ ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) QueryAssignments(_ context.Context, ord []core.DBOrdering, _ ...core.DBExecutor) ([]assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]assignment.Assignment, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		assignments = append(assignments, *a)
	}

	less := func(a, b assignment.Assignment, field string) (lt, eq bool) {
		switch field {
		case "name":
			return a.Name < b.Name, a.Name == b.Name
		case "due_date":
			return a.DueDate.Before(b.DueDate), a.DueDate.Equal(b.DueDate)
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		return false, true
	}
	sort.Slice(assignments, func(i, j int) bool {
		for _, o := range ord {
			lt, eq := less(assignments[i], assignments[j], o.Field)
			if eq {
				continue
			}
			if o.Ascending {
				return lt
			}
			return !lt
		}
		// newest first, matching the SQL backend
		return assignments[i].ID > assignments[j].ID
	})
	return assignments, nil
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, a assignment.Assignment, _ ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[a.ID]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	a.CreatedAt = orig.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	repo.db.table[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return assignment.ErrNotFound
	}
	delete(repo.db.table, id)

	// cascade: submissions and their marks
	repo.subs.Lock()
	var subIDs []int
	for subID, sub := range repo.subs.table {
		if sub.AssignmentID == id {
			subIDs = append(subIDs, subID)
			delete(repo.subs.table, subID)
		}
	}
	repo.subs.Unlock()

	repo.marks.Lock()
	defer repo.marks.Unlock()
	for markID, m := range repo.marks.table {
		for _, subID := range subIDs {
			if m.SubmissionID == subID {
				delete(repo.marks.table, markID)
				break
			}
		}
	}
	return nil
}

func (repo *assignmentRepository) CreateSubmission(_ context.Context, s assignment.Submission, _ ...core.DBExecutor) (assignment.Submission, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	repo.subs.pkCount++
	s.ID = repo.subs.pkCount
	repo.subs.table[s.ID] = &s
	return s, nil
}

func (repo *assignmentRepository) GetSubmissionByID(_ context.Context, id int, _ ...core.DBExecutor) (assignment.Submission, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	if s, ok := repo.subs.table[id]; ok {
		return *s, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) QuerySubmissionsByAssignment(_ context.Context, assignmentID int, _ ...core.DBExecutor) ([]assignment.Submission, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	var subs []assignment.Submission
	for _, s := range repo.subs.table {
		if s.AssignmentID == assignmentID {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func (repo *assignmentRepository) UpdateSubmission(_ context.Context, s assignment.Submission, _ ...core.DBExecutor) (assignment.Submission, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	orig, ok := repo.subs.table[s.ID]
	if !ok {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	s.CreatedAt = orig.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	repo.subs.table[s.ID] = &s
	return s, nil
}
