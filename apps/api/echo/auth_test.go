package echoapi

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/user"
)

func Test_authApi_signup(t *testing.T) {
	env := setup(t)
	createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "STF-001", user.RoleMarker, "Str0ngPass!")

	tests := []httpTest{
		{
			name: "Valid marker sign-up", body: marchallObj(t, echo.Map{
				"username": "marker1", "email": "marker1@test.cd", "staffId": "STF-002",
				"password": "Str0ngPass!", "role": user.RoleMarker,
			}),
			wantCode: http.StatusOK,
		},
		{
			name: "Duplicate email", body: marchallObj(t, echo.Map{
				"username": "other", "email": "jdoe@test.cd", "password": "Str0ngPass!", "role": user.RoleMarker,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": echo.Map{"email": "Email has already been registered."}}),
		},
		{
			name: "Duplicate username", body: marchallObj(t, echo.Map{
				"username": "jdoe", "email": "new@test.cd", "password": "Str0ngPass!", "role": user.RoleMarker,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": echo.Map{"username": "Username has already been registered."}}),
		},
		{
			name: "Duplicate staff ID", body: marchallObj(t, echo.Map{
				"username": "newbie", "email": "newbie@test.cd", "staffId": "stf-001",
				"password": "Str0ngPass!", "role": user.RoleMarker,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": echo.Map{"staffId": "Staff ID has already been registered."}}),
		},
		{
			name: "Second admin rejected", body: marchallObj(t, echo.Map{
				"username": "admin2", "email": "admin2@test.cd", "password": "Str0ngPass!", "role": user.RoleAdmin,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": echo.Map{"role": "Administrator has already been registered."}}),
		},
		{
			name: "Unknown role", body: marchallObj(t, echo.Map{
				"username": "student", "email": "student@test.cd", "password": "Str0ngPass!", "role": "student",
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "Short password", body: marchallObj(t, echo.Map{
				"username": "shorty", "email": "shorty@test.cd", "password": "short", "role": user.RoleMarker,
			}),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/signup", tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				body := decodeBody(t, rec)
				assert.Equal(t, true, body["successful"])
				assert.Equal(t, "Sign-up successful", body["message"])
			}
		})
	}
}

func Test_authApi_login(t *testing.T) {
	env := setup(t)
	usr := createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "", user.RoleMarker, "Str0ngPass!")

	t.Run("Wrong password", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/login", marchallObj(t, echo.Map{"email": "jdoe@test.cd", "password": "nope nope"}))
		env.server.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": "Invalid email or password."}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Unknown email", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/login", marchallObj(t, echo.Map{"email": "ghost@test.cd", "password": "Str0ngPass!"}))
		env.server.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": "Invalid email or password."}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Valid credentials", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/login", marchallObj(t, echo.Map{"email": "JDoe@test.cd", "password": "Str0ngPass!"}))
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["successful"])
		assert.Equal(t, "Login successful", body["message"])
		key, _ := body["sessionId"].(string)
		require.NotEmpty(t, key)
		assert.Equal(t, float64(usr.ID), body["id"])
		assert.Equal(t, "jdoe", body["username"])
		assert.Equal(t, user.RoleMarker, body["role"])
		assert.Equal(t, "jdoe@test.cd", body["email"])

		// the session resolves back to the user
		req, rec = newAuthRequest(http.MethodGet, "/login_status", key)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body = decodeBody(t, rec)
		assert.Equal(t, user.RoleMarker, body["role"])
		gotUsr, _ := body["user"].(map[string]interface{})
		require.NotNil(t, gotUsr)
		assert.Equal(t, float64(usr.ID), gotUsr["id"])
	})
}

func Test_authApi_logout(t *testing.T) {
	env := setup(t)
	usr := createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "", user.RoleMarker, "Str0ngPass!")
	key := env.sessionKey(t, usr)

	req, rec := newAuthRequest(http.MethodPost, "/logout", key)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the key is dead now
	req, rec = newAuthRequest(http.MethodGet, "/login_status", key)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_sessionMiddleware(t *testing.T) {
	env := setup(t)
	usr := createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "", user.RoleMarker, "Str0ngPass!")

	tests := []httpTest{
		{name: "No session", path: "/login_status", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Bogus key", path: "/login_status", key: "deadbeef", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Valid key", path: "/login_status", key: env.sessionKey(t, usr), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.key)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Cookie fallback", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/login_status")
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: env.sessionKey(t, usr)})
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}
