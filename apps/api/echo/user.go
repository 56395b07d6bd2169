package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/storage/filestore"
)

type userApi struct {
	conf     *core.Config
	svc      *user.Service
	files    core.FileStore
	validate *validator.Validate
}

func registerUserAPI(
	e *echo.Echo,
	session echo.MiddlewareFunc,
	conf *core.Config,
	svc *user.Service,
	files core.FileStore,
	validate *validator.Validate,
) {
	api := userApi{
		conf:     conf,
		svc:      svc,
		files:    files,
		validate: validate,
	}

	g := e.Group("/:uid", session, ownUserMiddleware())
	g.GET("/account", api.account)
	g.POST("/account/edit", api.editAccount)
	g.GET("/account/picture", api.profilePicture)
}

// Handlers

func (api *userApi) account(ctx echo.Context) error {
	usr, err := api.pathUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"user":       usr,
	})
}

// editAccount takes a multipart form: optional username, email, password
// fields and an optional profilePicture image.
func (api *userApi) editAccount(ctx echo.Context) error {
	usr, err := api.pathUser(ctx)
	if err != nil {
		return err
	}

	data := user.UpdateAccount{
		Username: ctx.FormValue("username"),
		Email:    ctx.FormValue("email"),
		Password: ctx.FormValue("password"),
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc, usr); err != nil {
		return err
	}

	var profilePic string
	if fh, ferr := ctx.FormFile("profilePicture"); ferr == nil {
		src, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening profile picture")
		}
		defer func() { _ = src.Close() }()

		img, err := filestore.NormalizeImage(src, api.conf.Uploads.ProfilePicMaxDim)
		if err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "profilePicture", Error: "invalid image file"})
		}
		if profilePic, err = api.files.Save(fh.Filename, img); err != nil {
			return errors.Wrap(err, "saving profile picture")
		}
	}

	old := usr.ProfilePicture.String
	usr, err = api.svc.UpdateAccount(ctx.Request().Context(), usr, data, profilePic)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	if profilePic != "" && old != "" {
		_ = api.files.Delete(old)
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Account updated",
		"user":       usr,
	})
}

func (api *userApi) profilePicture(ctx echo.Context) error {
	usr, err := api.pathUser(ctx)
	if err != nil {
		return err
	}
	if !usr.ProfilePicture.Valid {
		return errHttpNotFound
	}
	return streamFile(ctx, api.files, usr.ProfilePicture.String, usr.Username+".jpg")
}

// pathUser resolves the :uid segment. ownUserMiddleware has already checked
// access, so a lookup failure here means the row is gone.
func (api *userApi) pathUser(ctx echo.Context) (user.User, error) {
	uid, err := pathParamInt(ctx, "uid")
	if err != nil {
		return user.User{}, err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return user.User{}, err
	}
	if ctxUsr.ID == uid {
		return ctxUsr, nil
	}
	return api.svc.GetByID(ctx.Request().Context(), uid)
}
