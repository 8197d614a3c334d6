package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services/webhook"
	"github.com/aranticlabs/bugpin/backend/internal/tracker"
)

type fakeIntegrationStore struct {
	items     []*models.Integration
	touched   int
	updateErr error
}

func (f *fakeIntegrationStore) find(id uint) *models.Integration {
	for _, it := range f.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (f *fakeIntegrationStore) ByID(id uint) (*models.Integration, error) {
	it := f.find(id)
	if it == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *it
	return &copied, nil
}

func (f *fakeIntegrationStore) ByProject(projectID uint) ([]models.Integration, error) {
	var out []models.Integration
	for _, it := range f.items {
		if it.ProjectID == projectID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeIntegrationStore) Update(id uint, fields map[string]interface{}) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	it := f.find(id)
	if it == nil {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "sync_mode":
			it.SyncMode = v.(string)
		case "webhook_id":
			if v == nil {
				it.WebhookID = nil
			} else {
				hookID := v.(int64)
				it.WebhookID = &hookID
			}
		case "webhook_secret":
			it.WebhookSecret = v.(string)
		}
	}
	return nil
}

func (f *fakeIntegrationStore) TouchSynced(id uint) error {
	f.touched++
	return nil
}

type fakeReportStore struct {
	items     []*models.Report
	pending   [][]uint
	updateErr error
}

func (f *fakeReportStore) find(id uint) *models.Report {
	for _, it := range f.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (f *fakeReportStore) ByID(id uint) (*models.Report, error) {
	it := f.find(id)
	if it == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *it
	return &copied, nil
}

func (f *fakeReportStore) ByIssueNumber(projectID uint, issueNumber int) (*models.Report, error) {
	for _, it := range f.items {
		if it.ProjectID == projectID && it.IssueNumber != nil && *it.IssueNumber == issueNumber {
			copied := *it
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReportStore) Update(id uint, fields map[string]interface{}) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	it := f.find(id)
	if it == nil {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			it.Status = v.(string)
		case "sync_status":
			it.SyncStatus = v.(string)
		case "sync_error":
			it.SyncError = v.(string)
		case "issue_number":
			num := v.(int)
			it.IssueNumber = &num
		case "issue_url":
			it.IssueURL = v.(string)
		case "synced_at":
			at := v.(time.Time)
			it.SyncedAt = &at
		}
	}
	return nil
}

func (f *fakeReportStore) MarkPending(ids []uint) error {
	f.pending = append(f.pending, ids)
	for _, id := range ids {
		if it := f.find(id); it != nil {
			it.SyncStatus = models.SyncStatusPending
			it.SyncError = ""
		}
	}
	return nil
}

func (f *fakeReportStore) UnsyncedByProject(projectID uint) ([]models.Report, error) {
	var out []models.Report
	for _, it := range f.items {
		if it.ProjectID == projectID && it.IssueNumber == nil {
			out = append(out, *it)
		}
	}
	return out, nil
}

type fakeTracker struct {
	createIssueFn   func(*models.Report) (*tracker.IssueRef, error)
	updateIssueFn   func(int, *models.Report) (*tracker.IssueRef, error)
	createWebhookFn func(callbackURL, secret string) (int64, error)
	deleteWebhookFn func(int64) error

	createCalls  int
	updateCalls  int
	webhookCalls int
	deleteCalls  int
	lastCallback string
	lastSecret   string
}

func (f *fakeTracker) TestConnection(ctx context.Context) (*tracker.Repository, error) {
	return &tracker.Repository{FullName: "acme/webapp"}, nil
}

func (f *fakeTracker) CreateIssue(ctx context.Context, report *models.Report, extraLabels, extraAssignees []string) (*tracker.IssueRef, error) {
	f.createCalls++
	if f.createIssueFn != nil {
		return f.createIssueFn(report)
	}
	return &tracker.IssueRef{Number: 101, URL: "https://github.com/acme/webapp/issues/101"}, nil
}

func (f *fakeTracker) UpdateIssue(ctx context.Context, issueNumber int, report *models.Report) (*tracker.IssueRef, error) {
	f.updateCalls++
	if f.updateIssueFn != nil {
		return f.updateIssueFn(issueNumber, report)
	}
	return &tracker.IssueRef{Number: issueNumber, URL: fmt.Sprintf("https://github.com/acme/webapp/issues/%d", issueNumber)}, nil
}

func (f *fakeTracker) GetIssue(ctx context.Context, issueNumber int) (*tracker.Issue, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTracker) CreateWebhook(ctx context.Context, callbackURL, secret string) (int64, error) {
	f.webhookCalls++
	f.lastCallback = callbackURL
	f.lastSecret = secret
	if f.createWebhookFn != nil {
		return f.createWebhookFn(callbackURL, secret)
	}
	return 42, nil
}

func (f *fakeTracker) DeleteWebhook(ctx context.Context, webhookID int64) error {
	f.deleteCalls++
	if f.deleteWebhookFn != nil {
		return f.deleteWebhookFn(webhookID)
	}
	return nil
}

func (f *fakeTracker) ListRepositories(ctx context.Context) ([]tracker.Repository, error) {
	return nil, nil
}

func (f *fakeTracker) ListLabels(ctx context.Context) ([]tracker.Label, error) {
	return nil, nil
}

func (f *fakeTracker) ListAssignees(ctx context.Context) ([]tracker.User, error) {
	return nil, nil
}

type fakeSettings struct {
	baseURL string
}

func (f *fakeSettings) PublicBaseURL() string { return f.baseURL }

func syncTestReport(id uint) *models.Report {
	return &models.Report{
		ID:         id,
		ProjectID:  1,
		Title:      "Checkout button unresponsive",
		Status:     models.ReportStatusOpen,
		SyncStatus: models.SyncStatusNone,
	}
}

func syncTestIntegration(id uint) *models.Integration {
	return &models.Integration{
		ID:          id,
		ProjectID:   1,
		Name:        "GitHub",
		Type:        models.IntegrationTypeGitHub,
		Owner:       "acme",
		Repo:        "webapp",
		AccessToken: "token",
		SyncMode:    models.SyncModeManual,
		IsActive:    true,
	}
}

func newTestSyncService(fi *fakeIntegrationStore, fr *fakeReportStore, ft *fakeTracker, baseURL string) *SyncService {
	svc := NewSyncService(fi, fr, nil, &fakeSettings{baseURL: baseURL})
	svc.trackerFor = func(*models.Integration) (tracker.Client, error) { return ft, nil }
	svc.retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	svc.batchDelay = time.Millisecond
	return svc
}

func TestSyncReportCreatesIssue(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1)}}
	ft := &fakeTracker{}
	svc := newTestSyncService(fi, fr, ft, "")

	result := svc.SyncReport(context.Background(), 1, 1)

	if !result.Success {
		t.Fatalf("SyncReport failed: %s %s", result.Code, result.Message)
	}
	if result.IssueNumber != 101 {
		t.Errorf("IssueNumber = %d, expected 101", result.IssueNumber)
	}
	if ft.createCalls != 1 || ft.updateCalls != 0 {
		t.Errorf("createCalls = %d, updateCalls = %d, expected 1 and 0", ft.createCalls, ft.updateCalls)
	}

	report := fr.find(1)
	if report.SyncStatus != models.SyncStatusSynced {
		t.Errorf("SyncStatus = %q, expected %q", report.SyncStatus, models.SyncStatusSynced)
	}
	if report.IssueNumber == nil || *report.IssueNumber != 101 {
		t.Errorf("IssueNumber = %v, expected 101", report.IssueNumber)
	}
	if report.IssueURL != "https://github.com/acme/webapp/issues/101" {
		t.Errorf("IssueURL = %q", report.IssueURL)
	}
	if report.SyncedAt == nil {
		t.Error("SyncedAt should be set after a successful sync")
	}
	if fi.touched != 1 {
		t.Errorf("integration usage bumped %d times, expected 1", fi.touched)
	}
}

func TestSyncReportUpdatesExistingIssue(t *testing.T) {
	report := syncTestReport(1)
	num := 55
	report.IssueNumber = &num

	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	fr := &fakeReportStore{items: []*models.Report{report}}
	ft := &fakeTracker{}
	svc := newTestSyncService(fi, fr, ft, "")

	result := svc.SyncReport(context.Background(), 1, 1)

	if !result.Success {
		t.Fatalf("SyncReport failed: %s %s", result.Code, result.Message)
	}
	if ft.updateCalls != 1 || ft.createCalls != 0 {
		t.Errorf("updateCalls = %d, createCalls = %d, expected 1 and 0", ft.updateCalls, ft.createCalls)
	}
	if result.IssueNumber != 55 {
		t.Errorf("IssueNumber = %d, expected 55", result.IssueNumber)
	}
}

func TestSyncReportValidation(t *testing.T) {
	inactive := syncTestIntegration(2)
	inactive.IsActive = false

	wrongType := syncTestIntegration(3)
	wrongType.Type = "jira"

	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1), inactive, wrongType}}

	tests := []struct {
		name          string
		reportID      uint
		integrationID uint
		expectedCode  string
		reportMarked  bool
	}{
		{"missing report", 99, 1, SyncErrNotFound, false},
		{"missing integration", 1, 99, SyncErrNotFound, true},
		{"wrong tracker type", 1, 3, SyncErrInvalidType, true},
		{"inactive integration", 1, 2, SyncErrInactive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeReportStore{items: []*models.Report{syncTestReport(1)}}
			ft := &fakeTracker{}
			svc := newTestSyncService(fi, fr, ft, "")

			result := svc.SyncReport(context.Background(), tt.reportID, tt.integrationID)

			if result.Success {
				t.Fatal("SyncReport should have failed")
			}
			if result.Code != tt.expectedCode {
				t.Errorf("Code = %q, expected %q", result.Code, tt.expectedCode)
			}
			if ft.createCalls+ft.updateCalls != 0 {
				t.Errorf("tracker was called %d times, expected 0", ft.createCalls+ft.updateCalls)
			}

			report := fr.find(1)
			if tt.reportMarked && report.SyncStatus != models.SyncStatusError {
				t.Errorf("SyncStatus = %q, expected %q", report.SyncStatus, models.SyncStatusError)
			}
			if !tt.reportMarked && report.SyncStatus != models.SyncStatusNone {
				t.Errorf("SyncStatus = %q, expected untouched %q", report.SyncStatus, models.SyncStatusNone)
			}
		})
	}
}

func TestSyncReportRecordsRemoteFailure(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1)}}
	ft := &fakeTracker{
		createIssueFn: func(*models.Report) (*tracker.IssueRef, error) {
			return nil, &tracker.APIError{StatusCode: 502, Message: "bad gateway"}
		},
	}
	svc := newTestSyncService(fi, fr, ft, "")

	result := svc.SyncReport(context.Background(), 1, 1)

	if result.Success {
		t.Fatal("SyncReport should have failed")
	}
	if result.Code != SyncErrFailed {
		t.Errorf("Code = %q, expected %q", result.Code, SyncErrFailed)
	}

	report := fr.find(1)
	if report.SyncStatus != models.SyncStatusError {
		t.Errorf("SyncStatus = %q, expected %q", report.SyncStatus, models.SyncStatusError)
	}
	if !strings.Contains(report.SyncError, "bad gateway") {
		t.Errorf("SyncError = %q, expected it to mention the remote failure", report.SyncError)
	}
	if fi.touched != 0 {
		t.Errorf("integration usage bumped %d times, expected 0", fi.touched)
	}
}

func TestSyncReportRecoversPanic(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1)}}
	ft := &fakeTracker{
		createIssueFn: func(*models.Report) (*tracker.IssueRef, error) {
			panic("nil dereference in renderer")
		},
	}
	svc := newTestSyncService(fi, fr, ft, "")

	result := svc.SyncReport(context.Background(), 1, 1)

	if result.Success {
		t.Fatal("SyncReport should have failed")
	}
	if result.Code != SyncErrFailed {
		t.Errorf("Code = %q, expected %q", result.Code, SyncErrFailed)
	}
	if !strings.Contains(result.Message, "internal error") {
		t.Errorf("Message = %q, expected an internal error marker", result.Message)
	}
	if fr.find(1).SyncStatus != models.SyncStatusError {
		t.Errorf("SyncStatus = %q, expected %q", fr.find(1).SyncStatus, models.SyncStatusError)
	}
}

func TestSyncWithRetryStopsOnNonRetryable(t *testing.T) {
	svc := newTestSyncService(&fakeIntegrationStore{}, &fakeReportStore{items: []*models.Report{syncTestReport(1)}}, &fakeTracker{}, "")

	calls := 0
	svc.syncFn = func(ctx context.Context, reportID, integrationID uint) *SyncResult {
		calls++
		return (&SyncResult{ReportID: reportID}).fail(SyncErrInactive, "integration 1 is disabled")
	}

	result := svc.SyncWithRetry(context.Background(), 1, 1)

	if calls != 1 {
		t.Errorf("sync attempts = %d, expected 1", calls)
	}
	if result.Code != SyncErrInactive {
		t.Errorf("Code = %q, expected %q", result.Code, SyncErrInactive)
	}
}

func TestSyncWithRetryEventuallySucceeds(t *testing.T) {
	svc := newTestSyncService(&fakeIntegrationStore{}, &fakeReportStore{items: []*models.Report{syncTestReport(1)}}, &fakeTracker{}, "")

	calls := 0
	svc.syncFn = func(ctx context.Context, reportID, integrationID uint) *SyncResult {
		calls++
		if calls < 3 {
			return (&SyncResult{ReportID: reportID}).fail(SyncErrFailed, "remote hiccup")
		}
		return &SyncResult{ReportID: reportID, Success: true, IssueNumber: 7}
	}

	result := svc.SyncWithRetry(context.Background(), 1, 1)

	if calls != 3 {
		t.Errorf("sync attempts = %d, expected 3", calls)
	}
	if !result.Success {
		t.Fatalf("SyncWithRetry failed: %s", result.Message)
	}
	if result.IssueNumber != 7 {
		t.Errorf("IssueNumber = %d, expected 7", result.IssueNumber)
	}
}

func TestSyncWithRetryExhaustsAttempts(t *testing.T) {
	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1)}}
	svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

	calls := 0
	svc.syncFn = func(ctx context.Context, reportID, integrationID uint) *SyncResult {
		calls++
		return (&SyncResult{ReportID: reportID}).fail(SyncErrFailed, "remote hiccup")
	}

	result := svc.SyncWithRetry(context.Background(), 1, 1)

	if calls != 3 {
		t.Errorf("sync attempts = %d, expected 3", calls)
	}
	if result.Success {
		t.Fatal("SyncWithRetry should have failed")
	}
	if !strings.Contains(result.Message, "after 3 attempts") {
		t.Errorf("Message = %q, expected it to name the attempt count", result.Message)
	}
	if !strings.Contains(fr.find(1).SyncError, "after 3 attempts") {
		t.Errorf("SyncError = %q, expected the final message on the report", fr.find(1).SyncError)
	}
}

func TestSyncReportsBatch(t *testing.T) {
	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1), syncTestReport(2), syncTestReport(3)}}
	svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

	var order []uint
	svc.syncFn = func(ctx context.Context, reportID, integrationID uint) *SyncResult {
		order = append(order, reportID)
		if reportID == 2 {
			return (&SyncResult{ReportID: reportID}).fail(SyncErrFailed, "remote hiccup")
		}
		return &SyncResult{ReportID: reportID, Success: true}
	}

	batch := svc.SyncReports(context.Background(), []uint{1, 2, 3}, 1)

	if batch.Total != 3 || batch.Succeeded != 2 || batch.Failed != 1 {
		t.Errorf("batch = %d/%d/%d, expected total 3, succeeded 2, failed 1", batch.Total, batch.Succeeded, batch.Failed)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("sync order = %v, expected sequential [1 2 3]", order)
	}
	if len(fr.pending) != 1 || len(fr.pending[0]) != 3 {
		t.Errorf("MarkPending calls = %v, expected one call covering all ids", fr.pending)
	}
}

func TestSyncReportsEmpty(t *testing.T) {
	fr := &fakeReportStore{}
	svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

	batch := svc.SyncReports(context.Background(), nil, 1)

	if batch.Total != 0 || len(batch.Results) != 0 {
		t.Errorf("batch = %+v, expected empty", batch)
	}
	if len(fr.pending) != 0 {
		t.Error("MarkPending should not run for an empty batch")
	}
}

func TestEnableAutoSyncWithoutBaseURL(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	ft := &fakeTracker{}
	svc := newTestSyncService(fi, &fakeReportStore{}, ft, "")

	_, err := svc.EnableAutoSync(context.Background(), 1)

	if err == nil {
		t.Fatal("EnableAutoSync should fail without a public base URL")
	}
	if SyncErrorCode(err) != SyncErrConfig {
		t.Errorf("code = %q, expected %q", SyncErrorCode(err), SyncErrConfig)
	}
	if ft.webhookCalls != 0 {
		t.Errorf("webhook calls = %d, expected 0 before config validation passes", ft.webhookCalls)
	}
	if fi.find(1).SyncMode != models.SyncModeManual {
		t.Errorf("SyncMode = %q, expected unchanged %q", fi.find(1).SyncMode, models.SyncModeManual)
	}
}

func TestEnableAutoSyncRegistersWebhook(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(7)}}
	ft := &fakeTracker{}
	svc := newTestSyncService(fi, &fakeReportStore{}, ft, "https://bugs.example.com/")

	integ, err := svc.EnableAutoSync(context.Background(), 7)
	if err != nil {
		t.Fatalf("EnableAutoSync() error = %v", err)
	}

	if ft.lastCallback != "https://bugs.example.com/api/webhooks/github/7" {
		t.Errorf("callback = %q, expected trailing slash trimmed and id appended", ft.lastCallback)
	}
	if len(ft.lastSecret) != 64 {
		t.Errorf("secret length = %d, expected 64 hex chars", len(ft.lastSecret))
	}
	if integ.SyncMode != models.SyncModeAutomatic {
		t.Errorf("SyncMode = %q, expected %q", integ.SyncMode, models.SyncModeAutomatic)
	}
	if integ.WebhookID == nil || *integ.WebhookID != 42 {
		t.Errorf("WebhookID = %v, expected 42", integ.WebhookID)
	}
	if integ.WebhookSecret != ft.lastSecret {
		t.Error("stored secret should match the one registered remotely")
	}
}

func TestEnableAutoSyncDegradesOnRegistrationFailure(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	ft := &fakeTracker{
		createWebhookFn: func(string, string) (int64, error) {
			return 0, &tracker.APIError{StatusCode: 404, Message: "cannot create webhook: admin permission required on acme/webapp"}
		},
	}
	svc := newTestSyncService(fi, &fakeReportStore{}, ft, "https://bugs.example.com")

	integ, err := svc.EnableAutoSync(context.Background(), 1)
	if err != nil {
		t.Fatalf("EnableAutoSync() error = %v, expected degraded success", err)
	}

	if integ.SyncMode != models.SyncModeAutomatic {
		t.Errorf("SyncMode = %q, expected %q even when registration fails", integ.SyncMode, models.SyncModeAutomatic)
	}
	if integ.WebhookID != nil {
		t.Errorf("WebhookID = %v, expected unset", *integ.WebhookID)
	}
	if integ.WebhookSecret != "" {
		t.Error("WebhookSecret should stay unset when registration fails")
	}
}

func TestDisableAutoSyncClearsState(t *testing.T) {
	integ := syncTestIntegration(1)
	integ.SyncMode = models.SyncModeAutomatic
	hookID := int64(42)
	integ.WebhookID = &hookID
	integ.WebhookSecret = "secret"

	fi := &fakeIntegrationStore{items: []*models.Integration{integ}}
	ft := &fakeTracker{
		deleteWebhookFn: func(int64) error {
			return &tracker.APIError{StatusCode: 500, Message: "server error"}
		},
	}
	svc := newTestSyncService(fi, &fakeReportStore{}, ft, "")

	got, err := svc.DisableAutoSync(context.Background(), 1)
	if err != nil {
		t.Fatalf("DisableAutoSync() error = %v", err)
	}

	if ft.deleteCalls != 1 {
		t.Errorf("delete calls = %d, expected 1", ft.deleteCalls)
	}
	if got.SyncMode != models.SyncModeManual {
		t.Errorf("SyncMode = %q, expected %q", got.SyncMode, models.SyncModeManual)
	}
	if got.WebhookID != nil {
		t.Errorf("WebhookID = %v, expected cleared", *got.WebhookID)
	}
	if got.WebhookSecret != "" {
		t.Error("WebhookSecret should be cleared")
	}
}

func TestDisableAutoSyncWithoutWebhook(t *testing.T) {
	integ := syncTestIntegration(1)
	integ.SyncMode = models.SyncModeAutomatic

	fi := &fakeIntegrationStore{items: []*models.Integration{integ}}
	ft := &fakeTracker{}
	svc := newTestSyncService(fi, &fakeReportStore{}, ft, "")

	got, err := svc.DisableAutoSync(context.Background(), 1)
	if err != nil {
		t.Fatalf("DisableAutoSync() error = %v", err)
	}
	if ft.deleteCalls != 0 {
		t.Errorf("delete calls = %d, expected 0 when no webhook is registered", ft.deleteCalls)
	}
	if got.SyncMode != models.SyncModeManual {
		t.Errorf("SyncMode = %q, expected %q", got.SyncMode, models.SyncModeManual)
	}
}

func TestHandleIssueEventTransitions(t *testing.T) {
	tests := []struct {
		name           string
		reportStatus   string
		action         string
		issueState     string
		expectedStatus string
	}{
		{"close resolves open report", models.ReportStatusOpen, webhook.ActionClosed, "closed", models.ReportStatusResolved},
		{"close resolves in-progress report", models.ReportStatusInProgress, webhook.ActionClosed, "closed", models.ReportStatusResolved},
		{"close keeps resolved report", models.ReportStatusResolved, webhook.ActionClosed, "closed", models.ReportStatusResolved},
		{"close keeps closed report", models.ReportStatusClosed, webhook.ActionClosed, "closed", models.ReportStatusClosed},
		{"reopen reopens resolved report", models.ReportStatusResolved, webhook.ActionReopened, "open", models.ReportStatusOpen},
		{"reopen reopens closed report", models.ReportStatusClosed, webhook.ActionReopened, "open", models.ReportStatusOpen},
		{"reopen keeps open report", models.ReportStatusOpen, webhook.ActionReopened, "open", models.ReportStatusOpen},
		{"mismatched close state ignored", models.ReportStatusOpen, webhook.ActionClosed, "open", models.ReportStatusOpen},
		{"other action ignored", models.ReportStatusOpen, "labeled", "open", models.ReportStatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := syncTestReport(1)
			report.Status = tt.reportStatus
			num := 55
			report.IssueNumber = &num

			fr := &fakeReportStore{items: []*models.Report{report}}
			svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

			event := &webhook.IssuesEvent{Action: tt.action}
			event.Issue.Number = 55
			event.Issue.State = tt.issueState

			if err := svc.HandleIssueEvent(context.Background(), syncTestIntegration(1), event); err != nil {
				t.Fatalf("HandleIssueEvent() error = %v", err)
			}
			if fr.find(1).Status != tt.expectedStatus {
				t.Errorf("Status = %q, expected %q", fr.find(1).Status, tt.expectedStatus)
			}
		})
	}
}

func TestHandleIssueEventUnknownIssue(t *testing.T) {
	fr := &fakeReportStore{}
	svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

	event := &webhook.IssuesEvent{Action: webhook.ActionClosed}
	event.Issue.Number = 999
	event.Issue.State = "closed"

	if err := svc.HandleIssueEvent(context.Background(), syncTestIntegration(1), event); err != nil {
		t.Errorf("HandleIssueEvent() error = %v, expected nil for an untracked issue", err)
	}
}

func TestHandleIssueEventStoreFailure(t *testing.T) {
	report := syncTestReport(1)
	num := 55
	report.IssueNumber = &num

	fr := &fakeReportStore{items: []*models.Report{report}, updateErr: errors.New("disk full")}
	svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

	event := &webhook.IssuesEvent{Action: webhook.ActionClosed}
	event.Issue.Number = 55
	event.Issue.State = "closed"

	if err := svc.HandleIssueEvent(context.Background(), syncTestIntegration(1), event); err == nil {
		t.Error("HandleIssueEvent() should surface a store failure")
	}
}

func TestActiveIntegrationPrefersAutomatic(t *testing.T) {
	manual := syncTestIntegration(1)
	auto := syncTestIntegration(2)
	auto.SyncMode = models.SyncModeAutomatic
	inactive := syncTestIntegration(3)
	inactive.SyncMode = models.SyncModeAutomatic
	inactive.IsActive = false

	fi := &fakeIntegrationStore{items: []*models.Integration{manual, inactive, auto}}
	svc := newTestSyncService(fi, &fakeReportStore{}, &fakeTracker{}, "")

	integ, err := svc.ActiveIntegration(1)
	if err != nil {
		t.Fatalf("ActiveIntegration() error = %v", err)
	}
	if integ == nil || integ.ID != 2 {
		t.Errorf("ActiveIntegration = %v, expected the automatic integration 2", integ)
	}

	auto.IsActive = false
	integ, err = svc.ActiveIntegration(1)
	if err != nil {
		t.Fatalf("ActiveIntegration() error = %v", err)
	}
	if integ == nil || integ.ID != 1 {
		t.Errorf("ActiveIntegration = %v, expected fallback to manual integration 1", integ)
	}
}

func TestAutoSyncIntegration(t *testing.T) {
	manual := syncTestIntegration(1)
	fi := &fakeIntegrationStore{items: []*models.Integration{manual}}
	svc := newTestSyncService(fi, &fakeReportStore{}, &fakeTracker{}, "")

	integ, err := svc.AutoSyncIntegration(1)
	if err != nil {
		t.Fatalf("AutoSyncIntegration() error = %v", err)
	}
	if integ != nil {
		t.Errorf("AutoSyncIntegration = %v, expected nil for manual-only project", integ)
	}

	manual.SyncMode = models.SyncModeAutomatic
	integ, err = svc.AutoSyncIntegration(1)
	if err != nil {
		t.Fatalf("AutoSyncIntegration() error = %v", err)
	}
	if integ == nil || integ.ID != 1 {
		t.Errorf("AutoSyncIntegration = %v, expected integration 1", integ)
	}
}

func TestUnsyncedReportIDs(t *testing.T) {
	synced := syncTestReport(2)
	num := 10
	synced.IssueNumber = &num

	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1), synced, syncTestReport(3)}}
	svc := newTestSyncService(&fakeIntegrationStore{}, fr, &fakeTracker{}, "")

	ids, err := svc.UnsyncedReportIDs(1)
	if err != nil {
		t.Fatalf("UnsyncedReportIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ids = %v, expected [1 3]", ids)
	}

	count, err := svc.UnsyncedCount(1)
	if err != nil {
		t.Fatalf("UnsyncedCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, expected 2", count)
	}
}

func TestSyncRoundTrip(t *testing.T) {
	fi := &fakeIntegrationStore{items: []*models.Integration{syncTestIntegration(1)}}
	fr := &fakeReportStore{items: []*models.Report{syncTestReport(1)}}
	ft := &fakeTracker{}
	svc := newTestSyncService(fi, fr, ft, "https://bugs.example.com")

	result := svc.SyncReport(context.Background(), 1, 1)
	if !result.Success {
		t.Fatalf("SyncReport failed: %s", result.Message)
	}

	event := &webhook.IssuesEvent{Action: webhook.ActionClosed}
	event.Issue.Number = result.IssueNumber
	event.Issue.State = "closed"

	if err := svc.HandleIssueEvent(context.Background(), syncTestIntegration(1), event); err != nil {
		t.Fatalf("HandleIssueEvent() error = %v", err)
	}

	report := fr.find(1)
	if report.Status != models.ReportStatusResolved {
		t.Errorf("Status = %q, expected %q after the remote issue closed", report.Status, models.ReportStatusResolved)
	}
	if report.SyncStatus != models.SyncStatusSynced {
		t.Errorf("SyncStatus = %q, expected it untouched by the webhook", report.SyncStatus)
	}
}
