package assignment

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/mark"
	"github.com/trezcool/alama/core/user"
)

var (
	ErrNotFound           = core.NewNotFoundError("assignment not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
)

type Repository interface {
	CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
	GetAssignmentByID(ctx context.Context, id int, exec ...core.DBExecutor) (Assignment, error)
	// QueryAssignments orders by the given fields, newest first when none are
	// given. Unknown ordering fields are ignored.
	QueryAssignments(ctx context.Context, ord []core.DBOrdering, exec ...core.DBExecutor) ([]Assignment, error)
	UpdateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
	// DeleteAssignment removes the assignment along with its submissions and
	// their marks.
	DeleteAssignment(ctx context.Context, id int, exec ...core.DBExecutor) error

	CreateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
	GetSubmissionByID(ctx context.Context, id int, exec ...core.DBExecutor) (Submission, error)
	QuerySubmissionsByAssignment(ctx context.Context, assignmentID int, exec ...core.DBExecutor) ([]Submission, error)
	UpdateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
}

// MarkerDirectory lists the marker accounts an assignment fans out to.
type MarkerDirectory interface {
	QueryMarkers(ctx context.Context) ([]user.User, error)
}

type Service struct {
	conf     *core.Config
	repo     Repository
	markRepo mark.Repository
	markers  MarkerDirectory
	tx       core.Transactor
	files    core.FileStore
	mailSvc  core.EmailService
}

func NewService(
	conf *core.Config,
	repo Repository,
	markRepo mark.Repository,
	markers MarkerDirectory,
	tx core.Transactor,
	files core.FileStore,
	mailSvc core.EmailService,
) *Service {
	return &Service{
		conf:     conf,
		repo:     repo,
		markRepo: markRepo,
		markers:  markers,
		tx:       tx,
		files:    files,
		mailSvc:  mailSvc,
	}
}

// ListItem is an assignment plus its completion state for the requesting user.
type ListItem struct {
	Assignment
	Completed bool `json:"completed"`
}

// SubmissionAggregate is a submission plus the combined marker scores on it.
type SubmissionAggregate struct {
	Submission
	Aggregate mark.Summary `json:"aggregate"`
}

type Detail struct {
	Assignment
	Submissions []SubmissionAggregate `json:"submissions"`
}

// MarkerSubmission is a submission plus the finalized state of the requesting
// marker's own mark on it.
type MarkerSubmission struct {
	Submission
	IsFinalized bool `json:"is_finalized"`
}

type MarkerDetail struct {
	Assignment
	Submissions []MarkerSubmission `json:"submissions"`
}

// Create stores the uploaded files, persists the assignment with its
// submissions, provisions an empty draft mark per (marker, submission) pair
// and notifies the markers by email.
func (svc *Service) Create(ctx context.Context, admin user.User, na NewAssignment) (Assignment, error) {
	rubricStored, err := svc.files.Save(na.RubricFile.Filename, na.RubricFile.Content)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "saving rubric file")
	}
	assignmentStored, err := svc.files.Save(na.AssignmentFile.Filename, na.AssignmentFile.Content)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "saving assignment file")
	}

	markers, err := svc.markers.QueryMarkers(ctx)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "querying markers")
	}
	markerIDs := make([]int, len(markers))
	for i, m := range markers {
		markerIDs[i] = m.ID
	}

	a := Assignment{
		Name:               na.Name,
		DueDate:            na.DueDate.UTC(),
		RubricFile:         rubricStored,
		RubricFileName:     na.RubricFile.Filename,
		AssignmentFile:     assignmentStored,
		AssignmentFileName: na.AssignmentFile.Filename,
		MarkCriteria:       na.MarkCriteria.Clone(),
		AdministratorID:    null.IntFrom(admin.ID),
	}
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		a, err = svc.repo.CreateAssignment(ctx, a, exec)
		if err != nil {
			return err
		}
		subIDs := make([]int, 0, len(na.Submissions))
		for _, ns := range na.Submissions {
			stored, err := svc.files.Save(ns.File.Filename, ns.File.Content)
			if err != nil {
				return errors.Wrap(err, "saving submission file")
			}
			sub := Submission{
				AssignmentID: a.ID,
				Name:         ns.Name,
				File:         stored,
				FileName:     ns.File.Filename,
				Comment:      ns.Comment,
				AdminMarks:   ns.AdminMarks.Clone(),
			}
			if sub, err = svc.repo.CreateSubmission(ctx, sub, exec); err != nil {
				return err
			}
			subIDs = append(subIDs, sub.ID)
		}
		return svc.markRepo.ProvisionMarks(ctx, markerIDs, subIDs, exec)
	})
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}

	svc.notifyMarkers(markers, a)
	return a, nil
}

func (svc *Service) notifyMarkers(markers []user.User, a Assignment) {
	if len(markers) == 0 {
		return
	}
	to := make([]mail.Address, len(markers))
	for i, m := range markers {
		to[i] = mail.Address{Name: m.Username, Address: m.Email}
	}
	msg := &core.EmailMessage{
		To:           to,
		Subject:      svc.conf.AppName + " - New Assignment: " + a.Name,
		TemplateName: "new_assignment",
		TemplateData: core.ContextData{
			FrontendBaseURL: svc.conf.FrontendBaseURL,
			Data: map[string]interface{}{
				"Name":    a.Name,
				"DueDate": a.DueDate,
			},
		},
	}
	svc.mailSvc.SendMessages(msg)
}

// Edit replaces the assignment's fields wholesale. Changing the rubric voids
// every mark on the assignment; replacing a submission's file voids the marks
// on that submission only. Submissions are matched by position and their count
// cannot change.
func (svc *Service) Edit(ctx context.Context, id int, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	subs, err := svc.repo.QuerySubmissionsByAssignment(ctx, id)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "querying submissions")
	}
	if len(ua.Submissions) != len(subs) {
		return Assignment{}, core.NewValidationError(nil,
			core.FieldError{Field: "submissions", Error: "submissions cannot be added or removed"})
	}

	rubricChanged := !a.MarkCriteria.Equal(ua.MarkCriteria)

	var oldFiles []string
	a.Name = ua.Name
	a.DueDate = ua.DueDate.UTC()
	a.MarkCriteria = ua.MarkCriteria.Clone()
	if ua.RubricFile != nil {
		stored, err := svc.files.Save(ua.RubricFile.Filename, ua.RubricFile.Content)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "saving rubric file")
		}
		oldFiles = append(oldFiles, a.RubricFile)
		a.RubricFile = stored
		a.RubricFileName = ua.RubricFile.Filename
	}
	if ua.AssignmentFile != nil {
		stored, err := svc.files.Save(ua.AssignmentFile.Filename, ua.AssignmentFile.Content)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "saving assignment file")
		}
		oldFiles = append(oldFiles, a.AssignmentFile)
		a.AssignmentFile = stored
		a.AssignmentFileName = ua.AssignmentFile.Filename
	}

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if a, err = svc.repo.UpdateAssignment(ctx, a, exec); err != nil {
			return err
		}
		for i := range subs {
			sub := subs[i]
			us := ua.Submissions[i]
			sub.Name = us.Name
			sub.Comment = us.Comment
			sub.AdminMarks = us.AdminMarks.Clone()
			if us.File != nil {
				stored, err := svc.files.Save(us.File.Filename, us.File.Content)
				if err != nil {
					return errors.Wrap(err, "saving submission file")
				}
				// a re-upload under the same original name is a correction,
				// not a new piece of work; only a renamed file voids marks
				renamed := us.File.Filename != sub.FileName
				oldFiles = append(oldFiles, sub.File)
				sub.File = stored
				sub.FileName = us.File.Filename
				if renamed {
					if err = svc.markRepo.ResetMarksBySubmission(ctx, sub.ID, exec); err != nil {
						return err
					}
				}
			}
			if _, err = svc.repo.UpdateSubmission(ctx, sub, exec); err != nil {
				return err
			}
		}
		if rubricChanged {
			return svc.markRepo.ResetMarksByAssignment(ctx, a.ID, exec)
		}
		return nil
	})
	if err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}

	for _, f := range oldFiles {
		_ = svc.files.Delete(f)
	}
	return a, nil
}

// Delete removes the assignment, its submissions and their marks, then cleans
// up the stored files on a best effort basis.
func (svc *Service) Delete(ctx context.Context, id int) error {
	a, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return err
	}
	subs, err := svc.repo.QuerySubmissionsByAssignment(ctx, id)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if err = svc.repo.DeleteAssignment(ctx, id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	_ = svc.files.Delete(a.RubricFile)
	_ = svc.files.Delete(a.AssignmentFile)
	for _, sub := range subs {
		_ = svc.files.Delete(sub.File)
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id int) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *Service) GetSubmission(ctx context.Context, id int) (Submission, error) {
	return svc.repo.GetSubmissionByID(ctx, id)
}

// List returns every assignment with a completion flag scoped to usr: a marker
// sees whether they finalized all their own marks, an admin whether every
// marker did.
func (svc *Service) List(ctx context.Context, usr user.User, ord ...core.DBOrdering) ([]ListItem, error) {
	assignments, err := svc.repo.QueryAssignments(ctx, ord)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	items := make([]ListItem, 0, len(assignments))
	for _, a := range assignments {
		marks, err := svc.markRepo.QueryMarksByAssignment(ctx, a.ID)
		if err != nil {
			return nil, errors.Wrap(err, "querying marks")
		}
		completed := true
		for _, m := range marks {
			if usr.IsMarker() && m.MarkerID != usr.ID {
				continue
			}
			if !m.IsFinalized {
				completed = false
				break
			}
		}
		items = append(items, ListItem{Assignment: a, Completed: completed})
	}
	return items, nil
}

// Detail returns the assignment with its submissions and the aggregated
// marker scores per submission.
func (svc *Service) Detail(ctx context.Context, id int) (Detail, error) {
	a, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	subs, err := svc.repo.QuerySubmissionsByAssignment(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying submissions")
	}
	d := Detail{Assignment: a, Submissions: make([]SubmissionAggregate, 0, len(subs))}
	for _, sub := range subs {
		marks, err := svc.markRepo.QueryMarksBySubmission(ctx, sub.ID)
		if err != nil {
			return Detail{}, errors.Wrap(err, "querying marks")
		}
		d.Submissions = append(d.Submissions, SubmissionAggregate{
			Submission: sub,
			Aggregate:  mark.Summarize(marks),
		})
	}
	return d, nil
}

// MarkerView returns the assignment with its submissions and the finalized
// state of markerID's own mark on each.
func (svc *Service) MarkerView(ctx context.Context, id, markerID int) (MarkerDetail, error) {
	a, err := svc.repo.GetAssignmentByID(ctx, id)
	if err != nil {
		return MarkerDetail{}, err
	}
	subs, err := svc.repo.QuerySubmissionsByAssignment(ctx, id)
	if err != nil {
		return MarkerDetail{}, errors.Wrap(err, "querying submissions")
	}
	marks, err := svc.markRepo.QueryMarksByAssignment(ctx, id)
	if err != nil {
		return MarkerDetail{}, errors.Wrap(err, "querying marks")
	}
	finalized := make(map[int]bool, len(subs))
	for _, m := range marks {
		if m.MarkerID == markerID {
			finalized[m.SubmissionID] = m.IsFinalized
		}
	}
	d := MarkerDetail{Assignment: a, Submissions: make([]MarkerSubmission, 0, len(subs))}
	for _, sub := range subs {
		d.Submissions = append(d.Submissions, MarkerSubmission{
			Submission:  sub,
			IsFinalized: finalized[sub.ID],
		})
	}
	return d, nil
}
