package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"jobjunction/m/domain"
	"jobjunction/m/internal/api"
	"jobjunction/m/internal/migrations"
	"jobjunction/m/internal/notify"
	"jobjunction/m/internal/service"
	"jobjunction/m/internal/upload"
)

// pngBytes is a minimal valid PNG header, enough for content sniffing.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Enqueue(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func newTestServer(t *testing.T) (*httptest.Server, *recordingNotifier) {
	t.Helper()
	tmp := t.TempDir()
	db, err := sqlx.Connect("sqlite", filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	migrations.Run(db)

	uploads, err := upload.NewStore(filepath.Join(tmp, "uploads"), 1<<20)
	if err != nil {
		t.Fatalf("upload store: %v", err)
	}

	rec := &recordingNotifier{}
	handler := api.New(service.New(db, rec), uploads, "testsecret", tmp)
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv, rec
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// registerForm posts a multipart /register request, optionally with an image.
func registerForm(t *testing.T, base, name, email, password string, image []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", name)
	_ = mw.WriteField("email", email)
	_ = mw.WriteField("password", password)
	if image != nil {
		fw, err := mw.CreateFormFile("profile_image", "me.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(image); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	mw.Close()

	resp, err := http.Post(base+"/register", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /register: %v", err)
	}
	return resp
}

type authBody struct {
	Message string      `json:"message"`
	User    domain.User `json:"user"`
	Token   string      `json:"token"`
}

func TestEndToEndScenario(t *testing.T) {
	srv, rec := newTestServer(t)

	// register("Ann","ann@x.com","pw1") -> 201
	resp := registerForm(t, srv.URL, "Ann", "ann@x.com", "pw1", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// login("ann@x.com","pw1") -> 200 with user id
	resp = postJSON(t, srv.URL+"/login", map[string]string{"email": "ann@x.com", "password": "pw1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var login authBody
	decodeBody(t, resp, &login)
	if login.User.ID == 0 {
		t.Fatal("login returned no user id")
	}
	if login.Token == "" {
		t.Fatal("login returned no token")
	}

	// add-job -> 201 with job id
	resp = postJSON(t, srv.URL+"/add-job", map[string]string{
		"title": "Dev", "company": "Acme", "location": "Remote", "description": "Build things",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add-job status = %d, want 201", resp.StatusCode)
	}
	var added struct {
		Job domain.Job `json:"job"`
	}
	decodeBody(t, resp, &added)
	if added.Job.ID == 0 {
		t.Fatal("add-job returned no job id")
	}

	// apply(N,M) -> 201, notification attempted
	resp = postJSON(t, srv.URL+"/apply", map[string]any{"user_id": login.User.ID, "job_id": added.Job.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("apply status = %d, want 201", resp.StatusCode)
	}
	var applied struct {
		Application domain.Application `json:"application"`
	}
	decodeBody(t, resp, &applied)
	if rec.count() != 1 {
		t.Errorf("notifications attempted = %d, want 1", rec.count())
	}

	// profile(N) -> applications contains one entry for job M
	resp, err := http.Get(fmt.Sprintf("%s/profile/%d", srv.URL, login.User.ID))
	if err != nil {
		t.Fatalf("GET /profile: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d, want 200", resp.StatusCode)
	}
	var profile struct {
		Profile      domain.User                `json:"profile"`
		Applications []domain.ApplicationDetail `json:"applications"`
	}
	decodeBody(t, resp, &profile)
	if len(profile.Applications) != 1 {
		t.Fatalf("profile has %d applications, want 1", len(profile.Applications))
	}
	if profile.Applications[0].JobID != added.Job.ID || profile.Applications[0].Title != "Dev" {
		t.Errorf("profile application does not match job: %+v", profile.Applications[0])
	}

	// withdraw with the owner's token -> 200
	req, _ := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/withdraw/%d", srv.URL, applied.Application.ID), nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /withdraw: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("withdraw status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Ann", "dup@x.com", "pw", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = registerForm(t, srv.URL, "Ann Again", "dup@x.com", "pw", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "Email already registered" {
		t.Errorf("duplicate register message = %q", body["error"])
	}
}

func TestRegisterWithImage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Pic", "pic@x.com", "pw", pngBytes)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register = %d, want 201", resp.StatusCode)
	}
	var body authBody
	decodeBody(t, resp, &body)
	if body.User.ProfileImage == nil {
		t.Fatal("registered user has no profile image reference")
	}
	ref := *body.User.ProfileImage

	// The stored image is served back from the reference.
	resp, err := http.Get(srv.URL + ref)
	if err != nil {
		t.Fatalf("GET %s: %v", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("image fetch = %d, want 200", resp.StatusCode)
	}
	served, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(served, pngBytes) {
		t.Error("served image differs from upload")
	}
}

func TestRegisterRejectsNonImageUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Bad", "bad@x.com", "pw", []byte("#!/bin/sh\necho hi"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("register with script upload = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Ann", "ann@x.com", "pw1", nil)
	resp.Body.Close()

	for _, creds := range []map[string]string{
		{"email": "ann@x.com", "password": "wrong"},
		{"email": "nobody@x.com", "password": "pw1"},
	} {
		resp := postJSON(t, srv.URL+"/login", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("login %v = %d, want 401", creds, resp.StatusCode)
		}
		var body map[string]string
		decodeBody(t, resp, &body)
		if body["error"] != "Invalid credentials" {
			t.Errorf("login %v message = %q", creds, body["error"])
		}
	}
}

func TestAddJobMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/add-job", map[string]string{"title": "Dev", "company": "Acme"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("add-job = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestApplyDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Ann", "ann@x.com", "pw", nil)
	var reg authBody
	decodeBody(t, resp, &reg)

	resp = postJSON(t, srv.URL+"/add-job", map[string]string{
		"title": "Dev", "company": "Acme", "location": "Remote", "description": "d",
	})
	var added struct {
		Job domain.Job `json:"job"`
	}
	decodeBody(t, resp, &added)

	payload := map[string]any{"user_id": reg.User.ID, "job_id": added.Job.ID}
	resp = postJSON(t, srv.URL+"/apply", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first apply = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/apply", payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second apply = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "You already applied for this job." {
		t.Errorf("duplicate apply message = %q", body["error"])
	}
}

func TestWithdrawRequiresOwnership(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Ann", "ann@x.com", "pw", nil)
	var ann authBody
	decodeBody(t, resp, &ann)
	resp = registerForm(t, srv.URL, "Bob", "bob@x.com", "pw", nil)
	var bob authBody
	decodeBody(t, resp, &bob)

	resp = postJSON(t, srv.URL+"/add-job", map[string]string{
		"title": "Dev", "company": "Acme", "location": "Remote", "description": "d",
	})
	var added struct {
		Job domain.Job `json:"job"`
	}
	decodeBody(t, resp, &added)

	resp = postJSON(t, srv.URL+"/apply", map[string]any{"user_id": ann.User.ID, "job_id": added.Job.ID})
	var applied struct {
		Application domain.Application `json:"application"`
	}
	decodeBody(t, resp, &applied)

	withdraw := func(token string) int {
		req, _ := http.NewRequest(http.MethodDelete,
			fmt.Sprintf("%s/withdraw/%d", srv.URL, applied.Application.ID), nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE /withdraw: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := withdraw(""); code != http.StatusUnauthorized {
		t.Errorf("withdraw without token = %d, want 401", code)
	}
	if code := withdraw(bob.Token); code != http.StatusForbidden {
		t.Errorf("withdraw with foreign token = %d, want 403", code)
	}
	if code := withdraw(ann.Token); code != http.StatusOK {
		t.Errorf("withdraw by owner = %d, want 200", code)
	}
	// Idempotent: the row is already gone.
	if code := withdraw(ann.Token); code != http.StatusOK {
		t.Errorf("repeat withdraw = %d, want 200", code)
	}
}

func TestProfileUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/profile/9999")
	if err != nil {
		t.Fatalf("GET /profile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown profile = %d, want 404", resp.StatusCode)
	}
}

func TestUpdateProfileMultipart(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerForm(t, srv.URL, "Ann", "ann@x.com", "pw1", nil)
	var reg authBody
	decodeBody(t, resp, &reg)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("id", fmt.Sprint(reg.User.ID))
	_ = mw.WriteField("name", "Annette")
	fw, _ := mw.CreateFormFile("profile_image", "new.png")
	_, _ = fw.Write(pngBytes)
	mw.Close()

	resp, err := http.Post(srv.URL+"/update-profile", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /update-profile: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update-profile = %d, want 200", resp.StatusCode)
	}
	var body struct {
		UpdatedUser domain.User `json:"updatedUser"`
	}
	decodeBody(t, resp, &body)
	if body.UpdatedUser.Name != "Annette" {
		t.Errorf("updated name = %q, want Annette", body.UpdatedUser.Name)
	}
	if body.UpdatedUser.ProfileImage == nil {
		t.Error("updated user has no profile image reference")
	}

	// Password unchanged.
	resp = postJSON(t, srv.URL+"/login", map[string]string{"email": "ann@x.com", "password": "pw1"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login after profile update = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListJobsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("jobs = %d, want 200", resp.StatusCode)
	}
	var jobs []domain.Job
	decodeBody(t, resp, &jobs)
	if len(jobs) != 0 {
		t.Errorf("got %d jobs, want 0", len(jobs))
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d, want 200", resp.StatusCode)
	}
}
