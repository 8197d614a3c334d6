package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

func testIntegration() *models.Integration {
	return &models.Integration{
		ID:          1,
		ProjectID:   1,
		Type:        models.IntegrationTypeGitHub,
		Owner:       "acme",
		Repo:        "webapp",
		AccessToken: "ghp_testtoken",
		Labels:      "bug,from-widget",
	}
}

func newTestClient(serverURL string, files Files) *GitHub {
	return NewGitHub(testIntegration(), files).WithBaseURL(serverURL)
}

type fakeFiles struct {
	attachments []models.Attachment
	content     []byte
	readErr     error
}

func (f *fakeFiles) ByReport(reportID uint) ([]models.Attachment, error) {
	return f.attachments, nil
}

func (f *fakeFiles) Read(att *models.Attachment) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.content, nil
}

func TestNewFactory(t *testing.T) {
	integ := testIntegration()
	client, err := New(integ, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := client.(*GitHub); !ok {
		t.Errorf("New() returned %T, expected *GitHub", client)
	}

	integ.Type = "jira"
	if _, err := New(integ, nil); err == nil {
		t.Error("New() with unsupported type expected error, got nil")
	}
}

func TestTestConnectionClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErrSub string
	}{
		{"not found", http.StatusNotFound, "not found or no access"},
		{"bad token", http.StatusUnauthorized, "invalid access token"},
		{"server error", http.StatusInternalServerError, "connection test failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, nil).TestConnection(context.Background())
			if err == nil {
				t.Fatal("TestConnection() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Errorf("error = %q, expected to contain %q", err.Error(), tt.wantErrSub)
			}
		})
	}
}

func TestTestConnectionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/webapp" {
			t.Errorf("path = %s, expected /repos/acme/webapp", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ghp_testtoken" {
			t.Errorf("Authorization = %q, expected bearer token", got)
		}
		json.NewEncoder(w).Encode(Repository{ID: 7, FullName: "acme/webapp", Private: true})
	}))
	defer server.Close()

	repo, err := newTestClient(server.URL, nil).TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if repo.FullName != "acme/webapp" {
		t.Errorf("FullName = %q, expected %q", repo.FullName, "acme/webapp")
	}
}

func TestCreateIssueMergesLabelsAndAssignees(t *testing.T) {
	var payload struct {
		Title     string   `json:"title"`
		Body      string   `json:"body"`
		Labels    []string `json:"labels"`
		Assignees []string `json:"assignees"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, expected POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Issue{Number: 42, State: "open", HTMLURL: "https://github.example/acme/webapp/issues/42"})
	}))
	defer server.Close()

	report := &models.Report{ID: 9, Title: "Button misaligned", Description: "On checkout the pay button overflows."}
	ref, err := newTestClient(server.URL, nil).CreateIssue(context.Background(), report, []string{"p1"}, []string{"dev1"})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}

	if ref.Number != 42 {
		t.Errorf("Number = %d, expected 42", ref.Number)
	}
	if ref.URL != "https://github.example/acme/webapp/issues/42" {
		t.Errorf("URL = %q, unexpected", ref.URL)
	}
	if payload.Title != "Button misaligned" {
		t.Errorf("title = %q, expected report title", payload.Title)
	}
	wantLabels := []string{"bug", "from-widget", "p1"}
	if len(payload.Labels) != len(wantLabels) {
		t.Fatalf("labels = %v, expected %v", payload.Labels, wantLabels)
	}
	for i, l := range wantLabels {
		if payload.Labels[i] != l {
			t.Errorf("labels[%d] = %q, expected %q", i, payload.Labels[i], l)
		}
	}
	if len(payload.Assignees) != 1 || payload.Assignees[0] != "dev1" {
		t.Errorf("assignees = %v, expected [dev1]", payload.Assignees)
	}
	if !strings.Contains(payload.Body, "On checkout the pay button overflows.") {
		t.Error("body does not contain report description")
	}
}

func TestUpdateIssueStateMapping(t *testing.T) {
	tests := []struct {
		status    string
		wantState string
	}{
		{models.ReportStatusOpen, "open"},
		{models.ReportStatusInProgress, "open"},
		{models.ReportStatusResolved, "closed"},
		{models.ReportStatusClosed, "closed"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var gotState string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPatch {
					t.Errorf("method = %s, expected PATCH", r.Method)
				}
				var payload map[string]interface{}
				json.NewDecoder(r.Body).Decode(&payload)
				gotState, _ = payload["state"].(string)
				json.NewEncoder(w).Encode(Issue{Number: 5, HTMLURL: "u"})
			}))
			defer server.Close()

			report := &models.Report{ID: 3, Title: "t", Status: tt.status}
			if _, err := newTestClient(server.URL, nil).UpdateIssue(context.Background(), 5, report); err != nil {
				t.Fatalf("UpdateIssue() error = %v", err)
			}
			if gotState != tt.wantState {
				t.Errorf("state = %q, expected %q", gotState, tt.wantState)
			}
		})
	}
}

func TestCreateWebhookClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErrSub string
	}{
		{"missing admin", http.StatusNotFound, "admin permission required"},
		{"duplicate", http.StatusUnprocessableEntity, "already exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"denied"}`)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, nil).CreateWebhook(context.Background(), "https://bugpin.example/api/webhooks/github/1", "s3cret")
			if err == nil {
				t.Fatal("CreateWebhook() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Errorf("error = %q, expected to contain %q", err.Error(), tt.wantErrSub)
			}
		})
	}
}

func TestCreateWebhookSuccess(t *testing.T) {
	var payload struct {
		Name   string            `json:"name"`
		Events []string          `json:"events"`
		Config map[string]string `json:"config"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/webapp/hooks" {
			t.Errorf("path = %s, expected /repos/acme/webapp/hooks", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":12345}`)
	}))
	defer server.Close()

	id, err := newTestClient(server.URL, nil).CreateWebhook(context.Background(), "https://bugpin.example/api/webhooks/github/1", "s3cret")
	if err != nil {
		t.Fatalf("CreateWebhook() error = %v", err)
	}
	if id != 12345 {
		t.Errorf("id = %d, expected 12345", id)
	}
	if len(payload.Events) != 1 || payload.Events[0] != "issues" {
		t.Errorf("events = %v, expected [issues]", payload.Events)
	}
	if payload.Config["secret"] != "s3cret" {
		t.Errorf("config.secret = %q, expected s3cret", payload.Config["secret"])
	}
	if payload.Config["url"] != "https://bugpin.example/api/webhooks/github/1" {
		t.Errorf("config.url = %q, unexpected", payload.Config["url"])
	}
}

func TestDeleteWebhookGoneIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if err := newTestClient(server.URL, nil).DeleteWebhook(context.Background(), 99); err != nil {
		t.Errorf("DeleteWebhook() on 404 = %v, expected nil", err)
	}
}

func TestDeleteWebhookServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := newTestClient(server.URL, nil).DeleteWebhook(context.Background(), 99); err == nil {
		t.Error("DeleteWebhook() on 500 expected error, got nil")
	}
}

func TestListRepositoriesPagination(t *testing.T) {
	var page2URL string
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, page2URL))
			json.NewEncoder(w).Encode([]Repository{{ID: 1, FullName: "acme/one"}})
		case "2":
			json.NewEncoder(w).Encode([]Repository{{ID: 2, FullName: "acme/two"}})
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	page2URL = server.URL + "/user/repos?page=2"

	repos, err := newTestClient(server.URL, nil).ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("len(repos) = %d, expected 2", len(repos))
	}
	if repos[1].FullName != "acme/two" {
		t.Errorf("repos[1].FullName = %q, expected acme/two", repos[1].FullName)
	}
}

func TestAttachmentUploadDeniedAbortsRemaining(t *testing.T) {
	files := &fakeFiles{
		attachments: []models.Attachment{
			{ID: 1, ReportID: 9, FileName: "shot1.png", MimeType: "image/png", FileSize: 1024, URL: "https://bugpin.example/files/shot1.png"},
			{ID: 2, ReportID: 9, FileName: "shot2.png", MimeType: "image/png", FileSize: 1024, URL: "https://bugpin.example/files/shot2.png"},
		},
		content: []byte("png-bytes"),
	}

	var issueBody atomic.Value
	var puts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/contents/"):
			if r.Method == http.MethodGet {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			atomic.AddInt32(&puts, 1)
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"Resource not accessible by integration"}`)
		case strings.HasSuffix(r.URL.Path, "/issues"):
			var payload map[string]interface{}
			json.NewDecoder(r.Body).Decode(&payload)
			issueBody.Store(payload["body"].(string))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Issue{Number: 7, HTMLURL: "u"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	integ := testIntegration()
	integ.UploadAttachments = true
	client := NewGitHub(integ, files).WithBaseURL(server.URL)

	report := &models.Report{ID: 9, Title: "t"}
	if _, err := client.CreateIssue(context.Background(), report, nil, nil); err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}

	if got := atomic.LoadInt32(&puts); got != 1 {
		t.Errorf("upload attempts = %d, expected 1 (denied upload aborts the rest)", got)
	}
	body := issueBody.Load().(string)
	if !strings.Contains(body, "https://bugpin.example/files/shot1.png") || !strings.Contains(body, "https://bugpin.example/files/shot2.png") {
		t.Error("issue body should fall back to hosted attachment URLs")
	}
}

func TestUploadEligible(t *testing.T) {
	tests := []struct {
		name string
		att  models.Attachment
		want bool
	}{
		{"small image", models.Attachment{MimeType: "image/png", FileSize: 2048}, true},
		{"video", models.Attachment{MimeType: "video/webm", FileSize: 2048}, false},
		{"oversized", models.Attachment{MimeType: "image/png", FileSize: maxUploadBytes + 1}, false},
		{"at limit", models.Attachment{MimeType: "application/json", FileSize: maxUploadBytes}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uploadEligible(&tt.att); got != tt.want {
				t.Errorf("uploadEligible() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{StatusCode: 500}, true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"not found", &APIError{StatusCode: 404}, false},
		{"unprocessable", &APIError{StatusCode: 422}, false},
		{"wrapped api error", fmt.Errorf("failed: %w", &APIError{StatusCode: 403}), false},
		{"network error", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"bug", []string{"bug"}},
		{"bug, p1 ,  ", []string{"bug", "p1"}},
	}

	for _, tt := range tests {
		got := splitCSV(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitCSV(%q) = %v, expected %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitCSV(%q)[%d] = %q, expected %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
