package echoapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/assignment"
)

type assignmentApi struct {
	svc      *assignment.Service
	files    core.FileStore
	validate *validator.Validate
}

func registerAssignmentAPI(
	e *echo.Echo,
	session echo.MiddlewareFunc,
	svc *assignment.Service,
	files core.FileStore,
	validate *validator.Validate,
) {
	api := assignmentApi{
		svc:      svc,
		files:    files,
		validate: validate,
	}

	e.GET("/:uid/assignments", api.list, session, ownUserMiddleware())

	admin := adminMiddleware()
	g := e.Group("/assignment", session)
	g.POST("/create", api.create, admin)
	g.GET("/:assignment_id", api.detail, admin)
	g.POST("/:assignment_id/edit", api.edit, admin)
	g.DELETE("/:assignment_id/delete", api.destroy, admin)
	g.POST("/:assignment_id/delete", api.destroy, admin)

	// downloads are open to any logged-in user
	g.GET("/:assignment_id/rubric/download", api.downloadRubric)
	g.GET("/:assignment_id/download", api.downloadFile)

	e.GET("/marker/assignment/:assignment_id", api.markerDetail, session, markerMiddleware())
	e.GET("/submission/:submission_id/download", api.downloadSubmission, session)
}

// Handlers

func (api *assignmentApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data assignment.NewAssignment
	closers, err := api.bindNewAssignment(ctx, &data)
	defer closeAll(closers)
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, echo.Map{
		"successful": true,
		"message":    "Assignment created",
		"id":         a.ID,
		"assignment": a,
	})
}

func (api *assignmentApi) edit(ctx echo.Context) error {
	id, err := pathParamInt(ctx, "assignment_id")
	if err != nil {
		return err
	}

	var data assignment.UpdateAssignment
	closers, err := api.bindUpdateAssignment(ctx, &data)
	defer closeAll(closers)
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Edit(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Assignment updated",
		"assignment": a,
	})
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	id, err := pathParamInt(ctx, "assignment_id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Assignment deleted",
	})
}

func (api *assignmentApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	items, err := api.svc.List(ctx.Request().Context(), usr, ord.Orderings...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful":  true,
		"assignments": items,
	})
}

func (api *assignmentApi) detail(ctx echo.Context) error {
	id, err := pathParamInt(ctx, "assignment_id")
	if err != nil {
		return err
	}
	d, err := api.svc.Detail(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"assignment": d,
	})
}

func (api *assignmentApi) markerDetail(ctx echo.Context) error {
	id, err := pathParamInt(ctx, "assignment_id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.MarkerView(ctx.Request().Context(), id, usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"assignment": d,
	})
}

func (api *assignmentApi) downloadRubric(ctx echo.Context) error {
	a, err := api.pathAssignment(ctx)
	if err != nil {
		return err
	}
	return streamFile(ctx, api.files, a.RubricFile, a.RubricFileName)
}

func (api *assignmentApi) downloadFile(ctx echo.Context) error {
	a, err := api.pathAssignment(ctx)
	if err != nil {
		return err
	}
	return streamFile(ctx, api.files, a.AssignmentFile, a.AssignmentFileName)
}

func (api *assignmentApi) downloadSubmission(ctx echo.Context) error {
	id, err := pathParamInt(ctx, "submission_id")
	if err != nil {
		return err
	}
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return streamFile(ctx, api.files, sub.File, sub.FileName)
}

func (api *assignmentApi) pathAssignment(ctx echo.Context) (assignment.Assignment, error) {
	id, err := pathParamInt(ctx, "assignment_id")
	if err != nil {
		return assignment.Assignment{}, err
	}
	return api.svc.Get(ctx.Request().Context(), id)
}

// Multipart form parsing
//
// The upload form carries flat fields (name, due_date, mark_criteria), two
// files (rubric, assignment_file) and indexed submission groups:
// submissions[0][name], submissions[0][comment], submissions[0][admin_marks],
// submissions[0][submission_file], submissions[1][name], ...

func (api *assignmentApi) bindNewAssignment(ctx echo.Context, data *assignment.NewAssignment) ([]io.Closer, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "multipart form expected")
	}
	var closers []io.Closer

	data.Name = formValue(form, "name")
	if data.DueDate, err = parseDueDate(formValue(form, "due_date")); err != nil {
		return closers, err
	}
	if data.MarkCriteria, err = parseScoreMap(formValue(form, "mark_criteria"), "mark_criteria"); err != nil {
		return closers, err
	}

	if data.RubricFile, closers, err = formUpload(form, "rubric", closers); err != nil {
		return closers, err
	}
	if data.AssignmentFile, closers, err = formUpload(form, "assignment_file", closers); err != nil {
		return closers, err
	}

	for i := 0; ; i++ {
		key := fmt.Sprintf("submissions[%d][name]", i)
		if _, ok := form.Value[key]; !ok {
			break
		}
		var sub assignment.NewSubmission
		sub.Name = formValue(form, key)
		sub.Comment = formValue(form, fmt.Sprintf("submissions[%d][comment]", i))
		if sub.AdminMarks, err = parseScoreMap(formValue(form, fmt.Sprintf("submissions[%d][admin_marks]", i)), "admin_marks"); err != nil {
			return closers, err
		}
		if sub.File, closers, err = formUpload(form, fmt.Sprintf("submissions[%d][submission_file]", i), closers); err != nil {
			return closers, err
		}
		data.Submissions = append(data.Submissions, sub)
	}
	return closers, nil
}

func (api *assignmentApi) bindUpdateAssignment(ctx echo.Context, data *assignment.UpdateAssignment) ([]io.Closer, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "multipart form expected")
	}
	var closers []io.Closer

	data.Name = formValue(form, "name")
	if data.DueDate, err = parseDueDate(formValue(form, "due_date")); err != nil {
		return closers, err
	}
	if data.MarkCriteria, err = parseScoreMap(formValue(form, "mark_criteria"), "mark_criteria"); err != nil {
		return closers, err
	}

	// files are optional on edit; absent means keep the current one
	if data.RubricFile, closers, err = optionalFormUpload(form, "rubric", closers); err != nil {
		return closers, err
	}
	if data.AssignmentFile, closers, err = optionalFormUpload(form, "assignment_file", closers); err != nil {
		return closers, err
	}

	for i := 0; ; i++ {
		key := fmt.Sprintf("submissions[%d][name]", i)
		if _, ok := form.Value[key]; !ok {
			break
		}
		var sub assignment.UpdateSubmission
		sub.Name = formValue(form, key)
		sub.Comment = formValue(form, fmt.Sprintf("submissions[%d][comment]", i))
		if sub.AdminMarks, err = parseScoreMap(formValue(form, fmt.Sprintf("submissions[%d][admin_marks]", i)), "admin_marks"); err != nil {
			return closers, err
		}
		if sub.File, closers, err = optionalFormUpload(form, fmt.Sprintf("submissions[%d][submission_file]", i), closers); err != nil {
			return closers, err
		}
		data.Submissions = append(data.Submissions, sub)
	}
	return closers, nil
}

func formValue(form *multipart.Form, key string) string {
	if vals, ok := form.Value[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func formUpload(form *multipart.Form, key string, closers []io.Closer) (*assignment.Upload, []io.Closer, error) {
	up, closers, err := optionalFormUpload(form, key, closers)
	if err != nil {
		return nil, closers, err
	}
	if up == nil {
		return nil, closers, core.NewValidationError(nil, core.FieldError{Field: key, Error: "file is required"})
	}
	return up, closers, nil
}

func optionalFormUpload(form *multipart.Form, key string, closers []io.Closer) (*assignment.Upload, []io.Closer, error) {
	fhs, ok := form.File[key]
	if !ok || len(fhs) == 0 {
		return nil, closers, nil
	}
	src, err := fhs[0].Open()
	if err != nil {
		return nil, closers, errors.Wrapf(err, "opening %s upload", key)
	}
	closers = append(closers, src)
	return &assignment.Upload{Filename: fhs[0].Filename, Content: src}, closers, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

func parseDueDate(val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "due_date", Error: "due date is required"})
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: "due_date", Error: "invalid date; RFC 3339 expected"})
	}
	return t, nil
}

func parseScoreMap(val, field string) (core.ScoreMap, error) {
	if val == "" {
		return nil, nil
	}
	var scores core.ScoreMap
	if err := json.Unmarshal([]byte(val), &scores); err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "invalid JSON object of criterion scores"})
	}
	return scores, nil
}

func streamFile(ctx echo.Context, files core.FileStore, stored, name string) error {
	rc, err := files.Open(stored)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = echo.MIMEOctetStream
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename=`+strconv.Quote(name))
	return ctx.Stream(http.StatusOK, ctype, rc)
}
