package echoapi

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/user"
)

func Test_userApi_account(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker := createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "STF-001", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)
	markerKey := env.sessionKey(t, marker)

	t.Run("Own account", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/%d/account", marker.ID), markerKey)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["successful"])
		usr, _ := body["user"].(map[string]interface{})
		require.NotNil(t, usr)
		assert.Equal(t, "jdoe", usr["username"])
		assert.Equal(t, "jdoe@test.cd", usr["email"])
		assert.Equal(t, user.RoleMarker, usr["role"])
		_, leaked := usr["PasswordHash"]
		assert.False(t, leaked)
	})

	t.Run("Another marker's account", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/%d/account", admin.ID), markerKey)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)}, rec)
	})

	t.Run("Admin reads a marker's account", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/%d/account", marker.ID), adminKey)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		usr, _ := body["user"].(map[string]interface{})
		require.NotNil(t, usr)
		assert.Equal(t, "jdoe", usr["username"])
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, fmt.Sprintf("/%d/account", marker.ID))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)}, rec)
	})
}

func Test_userApi_editAccount(t *testing.T) {
	env := setup(t)
	createUser(t, env.usrRepo, "taken", "taken@test.cd", "", user.RoleMarker, "Str0ngPass!")
	marker := createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "STF-001", user.RoleMarker, "Str0ngPass!")
	key := env.sessionKey(t, marker)
	path := fmt.Sprintf("/%d/account/edit", marker.ID)

	t.Run("Username and email change", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, path, key,
			map[string]string{"username": "johnny", "email": "Johnny@test.cd"}, nil)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		assert.Equal(t, "Account updated", body["message"])
		usr, _ := body["user"].(map[string]interface{})
		require.NotNil(t, usr)
		assert.Equal(t, "johnny", usr["username"])
		assert.Equal(t, "johnny@test.cd", usr["email"])
	})

	t.Run("No-op resubmit of own values", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, path, key,
			map[string]string{"username": "johnny", "email": "johnny@test.cd"}, nil)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("Duplicate email rejected", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, path, key,
			map[string]string{"email": "taken@test.cd"}, nil)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": echo.Map{"email": "Email has already been registered."}}),
		}, rec)
	})

	t.Run("Password change", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, path, key,
			map[string]string{"password": "N3wStr0ngPass!"}, nil)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := env.usrSvc.GetByID(context.Background(), marker.ID)
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("N3wStr0ngPass!"))
		assert.Error(t, usr.CheckPassword("Str0ngPass!"))
	})

	t.Run("Invalid image rejected", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, path, key,
			nil, map[string]fileSpec{"profilePicture": {name: "pic.png", content: "not an image"}})
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"successful": false, "message": echo.Map{"profilePicture": "invalid image file"}}),
		}, rec)
	})
}

func Test_userApi_profilePicture(t *testing.T) {
	env := setup(t)
	marker := createUser(t, env.usrRepo, "jdoe", "jdoe@test.cd", "STF-001", user.RoleMarker, "Str0ngPass!")
	key := env.sessionKey(t, marker)
	picPath := fmt.Sprintf("/%d/account/picture", marker.ID)

	t.Run("No picture yet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, picPath, key)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})

	t.Run("Upload then download", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, fmt.Sprintf("/%d/account/edit", marker.ID), key,
			nil, map[string]fileSpec{"profilePicture": {name: "pic.png", content: string(testPNG(t))}})
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, picPath, key)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `"jdoe.jpg"`)
		assert.NotEmpty(t, rec.Body.Bytes())
	})
}

// testPNG encodes a 2x2 image so NormalizeImage has something to decode.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}
