package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/assignment"
	"github.com/trezcool/alama/core/mark"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/fs"
	emailsvc "github.com/trezcool/alama/services/email"
	logsvc "github.com/trezcool/alama/services/logger"
	dummydb "github.com/trezcool/alama/storage/database/dummy"
	"github.com/trezcool/alama/storage/filestore"
)

type testEnv struct {
	server   *Server
	conf     *core.Config
	usrRepo  user.Repository
	markRepo mark.Repository
	sessions user.SessionStore
	usrSvc   *user.Service
	assSvc   *assignment.Service
	markSvc  *mark.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		TestMode:        true,
		AppName:         "alama",
		SecretKey:       []byte("sekrit"),
		FrontendBaseURL: "http://localhost:3000",
		DefaultFrom:     "noreply@alama.test",
	}
	conf.Server.SessionTTL = time.Hour
	conf.Uploads.ProfilePicMaxDim = 512

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)
	core.ParseEmailTemplates(appfs.FS, logger)

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy db: %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	assRepo := dummydb.NewAssignmentRepository(db)
	markRepo := dummydb.NewMarkRepository(db)
	sessions := dummydb.NewSessionRepository(db)
	tx := dummydb.NewTransactor()

	files, err := filestore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("opening file store: %v", err)
	}

	emailsvc.ClearSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(conf, usrRepo, mailSvc)
	assSvc := assignment.NewService(conf, assRepo, markRepo, usrSvc, tx, files, mailSvc)
	markSvc := mark.NewService(markRepo, tx)

	validate := validator.New()
	translator := newTestTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		AssignmentSvc: assSvc,
		MarkSvc:       markSvc,
		Sessions:      sessions,
		Files:         files,
		Validate:      validate,
		Translator:    translator,
	})
	return &testEnv{
		server:   server,
		conf:     conf,
		usrRepo:  usrRepo,
		markRepo: markRepo,
		sessions: sessions,
		usrSvc:   usrSvc,
		assSvc:   assSvc,
		markSvc:  markSvc,
	}
}

func newTestTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func createUser(t *testing.T, repo user.Repository, username, email, staffID, role, pwd string) user.User {
	t.Helper()
	usr := user.User{
		Username: username,
		Email:    email,
		StaffID:  null.NewString(staffID, staffID != ""),
		Role:     role,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) sessionKey(t *testing.T, usr user.User) string {
	t.Helper()
	sess, err := env.sessions.CreateSession(context.Background(), usr, env.conf.Server.SessionTTL)
	if err != nil {
		t.Fatalf("sessionKey() failed: %v", err)
	}
	return sess.Key
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	key      string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, key string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Session-ID", key)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

type fileSpec struct {
	name    string
	content string
}

// newMultipartRequest builds the assignment upload form: flat fields plus
// named file parts.
func newMultipartRequest(t *testing.T, method, path, key string, fields map[string]string, files map[string]fileSpec) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("writing form field: %v", err)
		}
	}
	for k, f := range files {
		fw, err := w.CreateFormFile(k, f.name)
		if err != nil {
			t.Fatalf("writing form file: %v", err)
		}
		if _, err = fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("writing form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing form: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if key != "" {
		req.Header.Set("X-Session-ID", key)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// decodeBody unmarshals a response envelope for field-level assertions.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

var (
	errNotAuthenticated = echo.Map{"successful": false, "message": "user not authenticated"}
	errPermissionDenied = echo.Map{"successful": false, "message": "permission denied"}
)
