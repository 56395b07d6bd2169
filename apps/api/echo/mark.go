package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/assignment"
	"github.com/trezcool/alama/core/mark"
)

type markApi struct {
	svc           *mark.Service
	assignmentSvc *assignment.Service
	validate      *validator.Validate
}

func registerMarkAPI(
	e *echo.Echo,
	session echo.MiddlewareFunc,
	svc *mark.Service,
	assignmentSvc *assignment.Service,
	validate *validator.Validate,
) {
	api := markApi{
		svc:           svc,
		assignmentSvc: assignmentSvc,
		validate:      validate,
	}

	g := e.Group("/:uid/assignment/:assignment_id/submission/:submission_id/mark", session, ownUserMiddleware(), markerMiddleware())
	g.GET("", api.retrieve)
	g.POST("", api.write)

	// the admin comparison views: every marker's scores side by side
	admin := adminMiddleware()
	e.GET("/submission/:submission_id/marks", api.submissionMarks, session, admin)
	e.GET("/assignment/:assignment_id/submission/:submission_id", api.comparison, session, admin)
}

// Handlers

// retrieve returns the calling marker's mark for the submission, creating an
// empty draft on first visit.
func (api *markApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	sub, a, err := api.pathSubmission(ctx)
	if err != nil {
		return err
	}

	m, err := api.svc.Get(ctx.Request().Context(), usr.ID, sub.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful":    true,
		"assignment":    a,
		"submission":    sub,
		"mark":          m,
		"mark_criteria": a.MarkCriteria,
	})
}

func (api *markApi) write(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	sub, a, err := api.pathSubmission(ctx)
	if err != nil {
		return err
	}

	var data mark.WriteMark
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to WriteMark")
	}
	if err = data.Validate(api.validate, a.MarkCriteria); err != nil {
		return err
	}

	m, err := api.svc.Write(ctx.Request().Context(), usr.ID, sub.ID, a.MarkCriteria, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Marks saved",
		"mark":       m,
	})
}

func (api *markApi) submissionMarks(ctx echo.Context) error {
	id, err := pathParamInt(ctx, "submission_id")
	if err != nil {
		return err
	}
	sub, err := api.assignmentSvc.GetSubmission(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	marks, err := api.svc.QueryBySubmission(ctx.Request().Context(), sub.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful":  true,
		"submission":  sub,
		"marks":       marks,
		"aggregate":   mark.Summarize(marks),
		"admin_marks": sub.AdminMarks,
	})
}

// comparison puts the rubric, the reference marks and every marker's records
// side by side; spotting discrepancies is left to the caller.
func (api *markApi) comparison(ctx echo.Context) error {
	sub, a, err := api.pathSubmission(ctx)
	if err != nil {
		return err
	}
	marks, err := api.svc.QueryBySubmission(ctx.Request().Context(), sub.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful":    true,
		"mark_criteria": a.MarkCriteria,
		"admin_marks":   sub.AdminMarks,
		"marks":         marks,
	})
}

// pathSubmission resolves :submission_id and checks it belongs to
// :assignment_id; the assignment comes back too for its rubric.
func (api *markApi) pathSubmission(ctx echo.Context) (assignment.Submission, assignment.Assignment, error) {
	assignmentID, err := pathParamInt(ctx, "assignment_id")
	if err != nil {
		return assignment.Submission{}, assignment.Assignment{}, err
	}
	submissionID, err := pathParamInt(ctx, "submission_id")
	if err != nil {
		return assignment.Submission{}, assignment.Assignment{}, err
	}

	sub, err := api.assignmentSvc.GetSubmission(ctx.Request().Context(), submissionID)
	if err != nil {
		return assignment.Submission{}, assignment.Assignment{}, err
	}
	if sub.AssignmentID != assignmentID {
		return assignment.Submission{}, assignment.Assignment{}, assignment.ErrSubmissionNotFound
	}
	a, err := api.assignmentSvc.Get(ctx.Request().Context(), sub.AssignmentID)
	if err != nil {
		return assignment.Submission{}, assignment.Assignment{}, err
	}
	return sub, a, nil
}
