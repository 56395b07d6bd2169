package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
	emailsvc "github.com/trezcool/alama/services/email"
)

func assignmentForm(criteria string, subNames ...string) (map[string]string, map[string]fileSpec) {
	fields := map[string]string{
		"name":          "Essay 1",
		"due_date":      time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		"mark_criteria": criteria,
	}
	files := map[string]fileSpec{
		"rubric":          {name: "rubric.pdf", content: "rubric bytes"},
		"assignment_file": {name: "essay.pdf", content: "essay bytes"},
	}
	for i, name := range subNames {
		fields[fmt.Sprintf("submissions[%d][name]", i)] = name
		fields[fmt.Sprintf("submissions[%d][comment]", i)] = "looks ok"
		fields[fmt.Sprintf("submissions[%d][admin_marks]", i)] = `{"Content": 8}`
		files[fmt.Sprintf("submissions[%d][submission_file]", i)] = fileSpec{
			name:    name + ".pdf",
			content: "submission " + name,
		}
	}
	return fields, files
}

func createAssignment(t *testing.T, env *testEnv, adminKey, criteria string, subNames ...string) (assignmentID int, submissionIDs []int) {
	t.Helper()

	fields, files := assignmentForm(criteria, subNames...)
	req, rec := newMultipartRequest(t, http.MethodPost, "/assignment/create", adminKey, fields, files)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	a, _ := body["assignment"].(map[string]interface{})
	require.NotNil(t, a)
	assignmentID = int(a["id"].(float64))

	// fetch submission IDs off the detail view
	req, rec = newAuthRequest(http.MethodGet, fmt.Sprintf("/assignment/%d", assignmentID), adminKey)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decodeBody(t, rec)["assignment"].(map[string]interface{})
	for _, s := range detail["submissions"].([]interface{}) {
		submissionIDs = append(submissionIDs, int(s.(map[string]interface{})["id"].(float64)))
	}
	return assignmentID, submissionIDs
}

func markPath(usr user.User, assignmentID, submissionID int) string {
	return fmt.Sprintf("/%d/assignment/%d/submission/%d/mark", usr.ID, assignmentID, submissionID)
}

func writeMark(t *testing.T, env *testEnv, usr user.User, key string, assignmentID, submissionID int, marks core.ScoreMap, finalized bool) {
	t.Helper()
	body := marchallObj(t, echo.Map{"marks": marks, "is_finalized": finalized})
	req, rec := newAuthRequest(http.MethodPost, markPath(usr, assignmentID, submissionID), key, body)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_assignmentApi_create(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker1 := createUser(t, env.usrRepo, "marker1", "m1@test.cd", "", user.RoleMarker, "Str0ngPass!")
	marker2 := createUser(t, env.usrRepo, "marker2", "m2@test.cd", "", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)

	t.Run("Markers cannot create", func(t *testing.T) {
		fields, files := assignmentForm(`{"Content": 10}`, "Alice")
		req, rec := newMultipartRequest(t, http.MethodPost, "/assignment/create", env.sessionKey(t, marker1), fields, files)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)}, rec)
	})

	t.Run("Missing rubric file", func(t *testing.T) {
		fields, files := assignmentForm(`{"Content": 10}`, "Alice")
		delete(files, "rubric")
		req, rec := newMultipartRequest(t, http.MethodPost, "/assignment/create", adminKey, fields, files)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("Admin marks outside rubric", func(t *testing.T) {
		fields, files := assignmentForm(`{"Content": 10}`, "Alice")
		fields["submissions[0][admin_marks]"] = `{"Vibes": 3}`
		req, rec := newMultipartRequest(t, http.MethodPost, "/assignment/create", adminKey, fields, files)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("Valid upload", func(t *testing.T) {
		_, subIDs := createAssignment(t, env, adminKey, `{"Content": 10, "Style": 5}`, "Alice", "Bob")
		require.Len(t, subIDs, 2)

		// a draft mark exists per (marker, submission) pair
		ctx := context.Background()
		for _, subID := range subIDs {
			marks, err := env.markRepo.QueryMarksBySubmission(ctx, subID)
			require.NoError(t, err)
			assert.Len(t, marks, 2)
			for _, m := range marks {
				assert.False(t, m.IsFinalized)
				assert.Empty(t, m.Marks)
				assert.Contains(t, []int{marker1.ID, marker2.ID}, m.MarkerID)
			}
		}

		// markers got notified
		require.NotEmpty(t, emailsvc.SentMessages)
		msg := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
		assert.Equal(t, "new_assignment", msg.TemplateName)
		assert.Len(t, msg.To, 2)
	})
}

func Test_assignmentApi_list_completion(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker1 := createUser(t, env.usrRepo, "marker1", "m1@test.cd", "", user.RoleMarker, "Str0ngPass!")
	marker2 := createUser(t, env.usrRepo, "marker2", "m2@test.cd", "", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)
	m1Key := env.sessionKey(t, marker1)

	aID, subIDs := createAssignment(t, env, adminKey, `{"Content": 10}`, "Alice")

	completed := func(key string, usr user.User) bool {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/%d/assignments", usr.ID), key)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		items := decodeBody(t, rec)["assignments"].([]interface{})
		require.Len(t, items, 1)
		return items[0].(map[string]interface{})["completed"].(bool)
	}

	assert.False(t, completed(m1Key, marker1), "fresh assignment cannot be complete")
	assert.False(t, completed(adminKey, admin))

	// marker1 finalizes their only mark: done for them, not for the admin
	writeMark(t, env, marker1, m1Key, aID, subIDs[0], core.ScoreMap{"Content": 8}, true)
	assert.True(t, completed(m1Key, marker1))
	assert.False(t, completed(adminKey, admin), "marker2 is still outstanding")

	// marker2 finalizes too: everyone is done
	writeMark(t, env, marker2, env.sessionKey(t, marker2), aID, subIDs[0], core.ScoreMap{"Content": 6}, true)
	assert.True(t, completed(adminKey, admin))
}

func Test_assignmentApi_edit_invalidation(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker := createUser(t, env.usrRepo, "marker1", "m1@test.cd", "", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)
	markerKey := env.sessionKey(t, marker)

	aID, subIDs := createAssignment(t, env, adminKey, `{"Content": 10, "Style": 5}`, "Alice", "Bob")
	writeMark(t, env, marker, markerKey, aID, subIDs[0], core.ScoreMap{"Content": 8, "Style": 4}, true)
	writeMark(t, env, marker, markerKey, aID, subIDs[1], core.ScoreMap{"Content": 6, "Style": 3}, true)

	getMark := func(subID int) map[string]interface{} {
		req, rec := newAuthRequest(http.MethodGet, markPath(marker, aID, subID), markerKey)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody(t, rec)["mark"].(map[string]interface{})
	}

	editFields := func(criteria string) map[string]string {
		fields := map[string]string{
			"name":          "Essay 1 v2",
			"due_date":      time.Now().Add(14 * 24 * time.Hour).UTC().Format(time.RFC3339),
			"mark_criteria": criteria,
		}
		for i, name := range []string{"Alice", "Bob"} {
			fields[fmt.Sprintf("submissions[%d][name]", i)] = name
			fields[fmt.Sprintf("submissions[%d][comment]", i)] = "updated"
			fields[fmt.Sprintf("submissions[%d][admin_marks]", i)] = `{"Content": 7}`
		}
		return fields
	}

	t.Run("Metadata edit keeps marks", func(t *testing.T) {
		// same rubric, different key order
		req, rec := newMultipartRequest(t, http.MethodPost, fmt.Sprintf("/assignment/%d/edit", aID), adminKey,
			editFields(`{"Style": 5, "Content": 10}`), nil)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		m := getMark(subIDs[0])
		assert.Equal(t, true, m["is_finalized"])
		assert.NotEmpty(t, m["marks"])
	})

	t.Run("Same-name re-upload keeps marks", func(t *testing.T) {
		// corrected scan of the same document, not new work
		files := map[string]fileSpec{
			"submissions[0][submission_file]": {name: "Alice.pdf", content: "rescanned submission"},
		}
		req, rec := newMultipartRequest(t, http.MethodPost, fmt.Sprintf("/assignment/%d/edit", aID), adminKey,
			editFields(`{"Style": 5, "Content": 10}`), files)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		m := getMark(subIDs[0])
		assert.Equal(t, true, m["is_finalized"])
		assert.NotEmpty(t, m["marks"])
	})

	t.Run("Renaming one submission file voids its marks only", func(t *testing.T) {
		files := map[string]fileSpec{
			"submissions[1][submission_file]": {name: "bob-v2.pdf", content: "resubmitted"},
		}
		req, rec := newMultipartRequest(t, http.MethodPost, fmt.Sprintf("/assignment/%d/edit", aID), adminKey,
			editFields(`{"Style": 5, "Content": 10}`), files)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		kept := getMark(subIDs[0])
		assert.Equal(t, true, kept["is_finalized"], "untouched submission keeps its marks")
		voided := getMark(subIDs[1])
		assert.Equal(t, false, voided["is_finalized"])
		assert.Empty(t, voided["marks"])
	})

	t.Run("Rubric change voids all marks", func(t *testing.T) {
		writeMark(t, env, marker, markerKey, aID, subIDs[1], core.ScoreMap{"Content": 9}, true)

		fields := editFields(`{"Content": 10, "Structure": 10}`)
		fields["submissions[0][admin_marks]"] = `{"Content": 7}`
		fields["submissions[1][admin_marks]"] = `{"Content": 7}`
		req, rec := newMultipartRequest(t, http.MethodPost, fmt.Sprintf("/assignment/%d/edit", aID), adminKey, fields, nil)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		for _, subID := range subIDs {
			m := getMark(subID)
			assert.Equal(t, false, m["is_finalized"])
			assert.Empty(t, m["marks"])
		}
	})

	t.Run("Submission count cannot change", func(t *testing.T) {
		fields := editFields(`{"Content": 10, "Structure": 10}`)
		fields["submissions[2][name]"] = "Carol"
		fields["submissions[2][comment]"] = ""
		fields["submissions[2][admin_marks]"] = ""
		req, rec := newMultipartRequest(t, http.MethodPost, fmt.Sprintf("/assignment/%d/edit", aID), adminKey, fields, nil)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}

func Test_assignmentApi_detail_aggregation(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker1 := createUser(t, env.usrRepo, "marker1", "m1@test.cd", "", user.RoleMarker, "Str0ngPass!")
	marker2 := createUser(t, env.usrRepo, "marker2", "m2@test.cd", "", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)

	aID, subIDs := createAssignment(t, env, adminKey, `{"Content": 10, "Style": 10}`, "Alice")

	// (8 + 6 + 10) / 3 = 8.0 across both markers
	writeMark(t, env, marker1, env.sessionKey(t, marker1), aID, subIDs[0], core.ScoreMap{"Content": 8, "Style": 6}, true)
	writeMark(t, env, marker2, env.sessionKey(t, marker2), aID, subIDs[0], core.ScoreMap{"Content": 10}, true)

	req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/assignment/%d", aID), adminKey)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	detail := decodeBody(t, rec)["assignment"].(map[string]interface{})
	subs := detail["submissions"].([]interface{})
	require.Len(t, subs, 1)
	agg := subs[0].(map[string]interface{})["aggregate"].(map[string]interface{})
	assert.Equal(t, float64(2), agg["marker_count"])
	assert.Equal(t, float64(8), agg["average"])
}

func Test_assignmentApi_download(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker := createUser(t, env.usrRepo, "marker1", "m1@test.cd", "", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)

	aID, subIDs := createAssignment(t, env, adminKey, `{"Content": 10}`, "Alice")

	t.Run("Rubric", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/assignment/%d/rubric/download", aID), env.sessionKey(t, marker))
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `"rubric.pdf"`)
		assert.Equal(t, "rubric bytes", rec.Body.String())
	})

	t.Run("Assignment file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/assignment/%d/download", aID), adminKey)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "essay bytes", rec.Body.String())
	})

	t.Run("Submission file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/submission/%d/download", subIDs[0]), adminKey)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "submission Alice", rec.Body.String())
	})

	t.Run("Unknown submission", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/submission/999/download", adminKey)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, fmt.Sprintf("/assignment/%d/download", aID))
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_assignmentApi_delete(t *testing.T) {
	env := setup(t)
	admin := createUser(t, env.usrRepo, "admin", "admin@test.cd", "", user.RoleAdmin, "Str0ngPass!")
	marker := createUser(t, env.usrRepo, "marker1", "m1@test.cd", "", user.RoleMarker, "Str0ngPass!")
	adminKey := env.sessionKey(t, admin)

	aID, subIDs := createAssignment(t, env, adminKey, `{"Content": 10}`, "Alice")
	writeMark(t, env, marker, env.sessionKey(t, marker), aID, subIDs[0], core.ScoreMap{"Content": 5}, false)

	t.Run("Markers cannot delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, fmt.Sprintf("/assignment/%d/delete", aID), env.sessionKey(t, marker))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)}, rec)
	})

	t.Run("Delete cascades", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, fmt.Sprintf("/assignment/%d/delete", aID), adminKey)
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, fmt.Sprintf("/assignment/%d", aID), adminKey)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		marks, err := env.markRepo.QueryMarksBySubmission(context.Background(), subIDs[0])
		require.NoError(t, err)
		assert.Empty(t, marks)
	})

	t.Run("Unknown assignment", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/assignment/999/delete", adminKey)
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
