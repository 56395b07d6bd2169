package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

const (
	sessionHeader  = "X-Session-ID"
	sessionCookie  = "sessionid"
	contextUserKey = "user"
)

type authApi struct {
	conf       *core.Config
	svc        *user.Service
	sessions   user.SessionStore
	validate   *validator.Validate
	translator ut.Translator
}

func registerAuthAPI(
	e *echo.Echo,
	session echo.MiddlewareFunc,
	conf *core.Config,
	svc *user.Service,
	sessions user.SessionStore,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := authApi{
		conf:       conf,
		svc:        svc,
		sessions:   sessions,
		validate:   validate,
		translator: translator,
	}

	// un-authed endpoints
	e.POST("/signup", api.signup)
	e.POST("/login", api.login)

	// authed endpoints
	e.POST("/logout", api.logout, session)
	e.GET("/login_status", api.loginStatus, session)
}

// Handlers

func (api *authApi) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}
	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Sign-up successful",
		"user":       usr,
	})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	sess, err := api.sessions.CreateSession(ctx.Request().Context(), usr, api.conf.Server.SessionTTL)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}

	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Key,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Login successful",
		"sessionId":  sess.Key,
		"id":         usr.ID,
		"username":   usr.Username,
		"role":       usr.Role,
		"staffId":    usr.StaffID,
		"email":      usr.Email,
	})
}

func (api *authApi) logout(ctx echo.Context) error {
	if key := sessionKey(ctx); key != "" {
		if err := api.sessions.DeleteSession(ctx.Request().Context(), key); err != nil {
			return errors.Wrap(err, "deleting session")
		}
	}
	ctx.SetCookie(&http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"message":    "Logout successful",
	})
}

func (api *authApi) loginStatus(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"successful": true,
		"user":       usr,
		"role":       usr.Role,
	})
}

// sessionKey extracts the opaque session key from the request; the header
// wins over the cookie.
func sessionKey(ctx echo.Context) string {
	if key := ctx.Request().Header.Get(sessionHeader); key != "" {
		return key
	}
	if cookie, err := ctx.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// sessionMiddleware resolves the session key to its user and stashes the user
// in the request context.
func sessionMiddleware(sessions user.SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := sessionKey(ctx)
			if key == "" {
				return errUnauthorized
			}
			usr, err := sessions.ResolveSession(ctx.Request().Context(), key)
			if err != nil {
				if cause := errors.Cause(err); cause == user.ErrSessionInvalid || cause == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "resolving session")
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
