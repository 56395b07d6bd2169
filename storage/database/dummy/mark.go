package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/mark"
)

type markRepository struct {
	db   *markTable
	subs *submissionTable
}

var _ mark.Repository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(db *DB) *markRepository {
	return &markRepository{db: db.mark, subs: db.submission}
}

func (repo *markRepository) GetMark(_ context.Context, markerID, submissionID int, _ ...core.DBExecutor) (mark.Mark, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if m := repo.find(markerID, submissionID); m != nil {
		return *m, nil
	}
	return mark.Mark{}, mark.ErrNotFound
}

func (repo *markRepository) find(markerID, submissionID int) *mark.Mark {
	for _, m := range repo.db.table {
		if m.MarkerID == markerID && m.SubmissionID == submissionID {
			return m
		}
	}
	return nil
}

func (repo *markRepository) GetOrCreateMark(_ context.Context, markerID, submissionID int, _ ...core.DBExecutor) (mark.Mark, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if m := repo.find(markerID, submissionID); m != nil {
		return *m, nil
	}

	now := time.Now().UTC()
	repo.db.pkCount++
	m := mark.Mark{
		ID:           repo.db.pkCount,
		SubmissionID: submissionID,
		MarkerID:     markerID,
		Marks:        core.ScoreMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *markRepository) UpdateMark(_ context.Context, m mark.Mark, _ ...core.DBExecutor) (mark.Mark, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[m.ID]
	if !ok {
		return mark.Mark{}, mark.ErrNotFound
	}
	m.CreatedAt = orig.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *markRepository) QueryMarksBySubmission(_ context.Context, submissionID int, _ ...core.DBExecutor) ([]mark.Mark, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var marks []mark.Mark
	for _, m := range repo.db.table {
		if m.SubmissionID == submissionID {
			marks = append(marks, *m)
		}
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].MarkerID < marks[j].MarkerID })
	return marks, nil
}

func (repo *markRepository) QueryMarksByAssignment(ctx context.Context, assignmentID int, _ ...core.DBExecutor) ([]mark.Mark, error) {
	repo.subs.RLock()
	subIDs := make(map[int]bool)
	for _, s := range repo.subs.table {
		if s.AssignmentID == assignmentID {
			subIDs[s.ID] = true
		}
	}
	repo.subs.RUnlock()

	repo.db.RLock()
	defer repo.db.RUnlock()

	var marks []mark.Mark
	for _, m := range repo.db.table {
		if subIDs[m.SubmissionID] {
			marks = append(marks, *m)
		}
	}
	sort.Slice(marks, func(i, j int) bool {
		if marks[i].SubmissionID != marks[j].SubmissionID {
			return marks[i].SubmissionID < marks[j].SubmissionID
		}
		return marks[i].MarkerID < marks[j].MarkerID
	})
	return marks, nil
}

func (repo *markRepository) ProvisionMarks(ctx context.Context, markerIDs, submissionIDs []int, exec ...core.DBExecutor) error {
	for _, subID := range submissionIDs {
		for _, markerID := range markerIDs {
			if _, err := repo.GetOrCreateMark(ctx, markerID, subID, exec...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (repo *markRepository) ResetMarksByAssignment(ctx context.Context, assignmentID int, _ ...core.DBExecutor) error {
	repo.subs.RLock()
	subIDs := make(map[int]bool)
	for _, s := range repo.subs.table {
		if s.AssignmentID == assignmentID {
			subIDs[s.ID] = true
		}
	}
	repo.subs.RUnlock()

	repo.db.Lock()
	defer repo.db.Unlock()
	for _, m := range repo.db.table {
		if subIDs[m.SubmissionID] {
			m.Marks = core.ScoreMap{}
			m.IsFinalized = false
			m.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (repo *markRepository) ResetMarksBySubmission(_ context.Context, submissionID int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, m := range repo.db.table {
		if m.SubmissionID == submissionID {
			m.Marks = core.ScoreMap{}
			m.IsFinalized = false
			m.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}
