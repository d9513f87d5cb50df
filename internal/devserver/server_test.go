package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"pamana/notes/internal/auth"
	"pamana/notes/internal/config"
	"pamana/notes/internal/gateway"
	"pamana/notes/internal/model"
)

type testApp struct {
	cfg    config.Config
	repo   *MemoryRepository
	server *Server
	http   *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.Config{
		JWTSecret:       "test-secret",
		JWTIssuer:       "test-issuer",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewMemoryRepository()
	if err := Seed(context.Background(), repo, logger); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	server := NewServer(cfg, repo, WithLogger(logger))
	app := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})
	return &testApp{cfg: cfg, repo: repo, server: server, http: app}
}

func (a *testApp) token(t *testing.T, schoolID string) string {
	t.Helper()
	user, err := a.repo.GetUserBySchoolID(context.Background(), schoolID)
	if err != nil {
		t.Fatalf("unknown demo user %s: %v", schoolID, err)
	}
	token, err := auth.NewAccessToken(a.cfg.JWTSecret, a.cfg.JWTIssuer, 10*time.Minute, auth.Claims{
		UserID:   user.ID,
		SchoolID: user.SchoolID,
		Role:     string(user.Role),
		Course:   user.Course,
		IsStaff:  user.Staff(),
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return token
}

func (a *testApp) noteByTitle(t *testing.T, title string) model.Note {
	t.Helper()
	notes, err := a.repo.ListNotes(context.Background(), NoteQuery{})
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	for _, n := range notes {
		if n.Title == title {
			return n
		}
	}
	t.Fatalf("note %q not seeded", title)
	return model.Note{}
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp := doReq(t, http.MethodGet, app.http.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTokenAndRefreshRotation(t *testing.T) {
	app := newTestApp(t)

	resp := doReq(t, http.MethodPost, app.http.URL+"/accounts/api/auth/token/", "", map[string]string{
		"school_id": "2021-00042",
		"password":  "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.http.URL+"/accounts/api/auth/token/", "", map[string]string{
		"school_id": "2021-00042",
		"password":  DemoPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var first tokenResponse
	decodeBody(t, resp, &first)
	if first.Access == "" || first.Refresh == "" {
		t.Fatalf("expected both tokens, got %+v", first)
	}
	claims, err := auth.ParseToken(app.cfg.JWTSecret, app.cfg.JWTIssuer, first.Access)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.SchoolID != "2021-00042" || claims.Course != "BSIT" || claims.ResolvedRole() != model.RoleStudent {
		t.Fatalf("unexpected claims %+v", claims)
	}

	resp = doReq(t, http.MethodPost, app.http.URL+"/accounts/api/auth/token/refresh/", "", map[string]string{"refresh": first.Refresh})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d", resp.StatusCode)
	}
	var second tokenResponse
	decodeBody(t, resp, &second)
	if second.Refresh == "" || second.Refresh == first.Refresh {
		t.Fatalf("expected rotated refresh token")
	}

	resp = doReq(t, http.MethodPost, app.http.URL+"/accounts/api/auth/token/refresh/", "", map[string]string{"refresh": first.Refresh})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reused refresh token, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	app := newTestApp(t)
	resp := doReq(t, http.MethodGet, app.http.URL+"/api/wall/posts/", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app.http.URL+"/api/wall/posts/", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestPendingQueueRoles(t *testing.T) {
	app := newTestApp(t)

	resp := doReq(t, http.MethodGet, app.http.URL+"/notes/api/pending/", app.token(t, "2021-00042"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for student, got %d", resp.StatusCode)
	}

	// A moderator asking for another course still gets their own.
	resp = doReq(t, http.MethodGet, app.http.URL+"/notes/api/pending/?course=BSCS", app.token(t, "2020-00101"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var notes []model.Note
	decodeBody(t, resp, &notes)
	if len(notes) != 1 || notes[0].Course() != "BSIT" {
		t.Fatalf("expected the single BSIT pending note, got %+v", notes)
	}

	resp = doReq(t, http.MethodGet, app.http.URL+"/notes/api/pending/", app.token(t, "0000-00001"), nil)
	decodeBody(t, resp, &notes)
	if len(notes) != 2 {
		t.Fatalf("expected admin to see every pending note, got %d", len(notes))
	}
}

func TestModeratorCannotReviewOtherCourse(t *testing.T) {
	app := newTestApp(t)
	bscs := app.noteByTitle(t, "Set theory reviewer")

	resp := doReq(t, http.MethodPost, app.http.URL+"/notes/api/approve/"+itoa(bscs.ID)+"/", app.token(t, "2020-00101"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	after, _ := app.repo.GetNote(context.Background(), bscs.ID)
	if after.Status() != model.StatusPending {
		t.Fatalf("expected note to stay pending, got %s", after.Status())
	}
}

func TestRejectRequiresReason(t *testing.T) {
	app := newTestApp(t)
	note := app.noteByTitle(t, "Linked lists cheat sheet")
	url := app.http.URL + "/notes/api/reject/" + itoa(note.ID) + "/"

	resp := doReq(t, http.MethodPost, url, app.token(t, "2020-00101"), map[string]string{"reason": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "Rejection reason is required" {
		t.Fatalf("unexpected error body %v", body)
	}

	resp = doReq(t, http.MethodPost, url, app.token(t, "2020-00101"), map[string]string{"reason": "Blurry scan"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	after, _ := app.repo.GetNote(context.Background(), note.ID)
	if after.Status() != model.StatusRejected || after.RejectionReason != "Blurry scan" {
		t.Fatalf("expected rejected note with reason, got %+v", after)
	}
}

func TestUploadRejectsScopeOutsideSubjectRule(t *testing.T) {
	app := newTestApp(t)
	subjects, _ := app.repo.ListSubjects(context.Background())
	var general model.Subject
	for _, s := range subjects {
		if s.Type() == model.SubjectGeneral {
			general = s
		}
	}

	req, err := gateway.MultipartRequest(http.MethodPost, "/notes/api/student/upload/", map[string]string{
		"title":      "Course-only general note",
		"subject":    itoa(general.ID),
		"visibility": "course",
	}, &gateway.FilePart{Name: "notes.pdf", Contents: strings.NewReader("%PDF")})
	if err != nil {
		t.Fatalf("multipart error: %v", err)
	}
	httpReq, _ := http.NewRequest(req.Method, app.http.URL+req.Path, bytes.NewReader(req.Raw))
	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.Header.Set("Authorization", "Bearer "+app.token(t, "2021-00042"))
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOnlyAuthorCanUpdateNote(t *testing.T) {
	app := newTestApp(t)
	note := app.noteByTitle(t, "Set theory reviewer")

	resp := doReq(t, http.MethodPatch, app.http.URL+"/notes/api/student/notes/"+itoa(note.ID)+"/", app.token(t, "2021-00042"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestOnlyAuthorCanDeleteNote(t *testing.T) {
	app := newTestApp(t)
	note := app.noteByTitle(t, "Set theory reviewer")
	url := app.http.URL + "/notes/api/student/notes/" + itoa(note.ID) + "/"

	resp := doReq(t, http.MethodDelete, url, app.token(t, "2021-00042"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodDelete, url, app.token(t, "2021-00077"), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if _, err := app.repo.GetNote(context.Background(), note.ID); err == nil {
		t.Fatalf("expected note to be gone")
	}
	resp = doReq(t, http.MethodDelete, url, app.token(t, "2021-00077"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on a second delete, got %d", resp.StatusCode)
	}
}

func TestPublicNotesNeedNoToken(t *testing.T) {
	app := newTestApp(t)

	resp := doReq(t, http.MethodGet, app.http.URL+"/notes/api/public/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var page struct {
		Count int          `json:"count"`
		Notes []model.Note `json:"notes"`
	}
	decodeBody(t, resp, &page)
	if page.Count != 1 || len(page.Notes) != 1 || page.Notes[0].Title != "Essay structure guide" {
		t.Fatalf("expected only the approved public note, got %+v", page)
	}
}

func TestDashboardCountsOwnNotes(t *testing.T) {
	app := newTestApp(t)

	resp := doReq(t, http.MethodGet, app.http.URL+"/notes/api/student/dashboard/", app.token(t, "2021-00042"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var dash Dashboard
	decodeBody(t, resp, &dash)
	if dash != (Dashboard{MyNotes: 2, Approved: 1, Pending: 1}) {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
}

func TestNoteLikeToggles(t *testing.T) {
	app := newTestApp(t)
	note := app.noteByTitle(t, "Essay structure guide")
	url := app.http.URL + "/notes/api/notes/" + itoa(note.ID) + "/like/"

	var state likeResponse
	decodeBody(t, doReq(t, http.MethodPost, url, app.token(t, "2021-00042"), nil), &state)
	if !state.Liked || state.LikesCount != 1 {
		t.Fatalf("expected liked with count 1, got %+v", state)
	}
	decodeBody(t, doReq(t, http.MethodPost, url, app.token(t, "2021-00077"), nil), &state)
	if !state.Liked || state.LikesCount != 2 {
		t.Fatalf("expected liked with count 2, got %+v", state)
	}
	decodeBody(t, doReq(t, http.MethodPost, url, app.token(t, "2021-00042"), nil), &state)
	if state.Liked || state.LikesCount != 1 {
		t.Fatalf("expected unliked with count 1, got %+v", state)
	}
}

func TestCourseNotesHiddenFromOtherCourses(t *testing.T) {
	app := newTestApp(t)
	bsit := app.noteByTitle(t, "Graph traversal walkthrough")

	resp := doReq(t, http.MethodGet, app.http.URL+"/notes/api/notes/"+itoa(bsit.ID)+"/comments/", app.token(t, "2021-00077"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for another course, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.http.URL+"/notes/api/notes/"+itoa(bsit.ID)+"/save/", app.token(t, "2021-00077"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on save, got %d", resp.StatusCode)
	}
}

func TestReportNeedsKnownReason(t *testing.T) {
	app := newTestApp(t)
	comments, _ := app.repo.ListWallComments(context.Background(), "")
	if len(comments) == 0 {
		t.Fatalf("expected a seeded wall comment")
	}
	url := app.http.URL + "/api/wall/comments/" + itoa(comments[0].ID) + "/report/"

	resp := doReq(t, http.MethodPost, url, app.token(t, "2021-00077"), map[string]string{"reason": "boring"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, url, app.token(t, "2021-00077"), map[string]string{"reason": "Spam"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if reports := app.repo.Reports(); len(reports) != 1 || reports[0].Reason != model.ReportSpam {
		t.Fatalf("expected one spam report, got %+v", reports)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
