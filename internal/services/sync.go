package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services/webhook"
	"github.com/aranticlabs/bugpin/backend/internal/tracker"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

// webhookPathPrefix is the fixed path segment callback URLs are built
// from; the integration id is appended.
const webhookPathPrefix = "/api/webhooks/github/"

// IntegrationStore is the integration persistence surface the sync
// engine depends on.
type IntegrationStore interface {
	ByID(id uint) (*models.Integration, error)
	ByProject(projectID uint) ([]models.Integration, error)
	Update(id uint, fields map[string]interface{}) error
	TouchSynced(id uint) error
}

// ReportStore is the report persistence surface the sync engine depends
// on.
type ReportStore interface {
	ByID(id uint) (*models.Report, error)
	ByIssueNumber(projectID uint, issueNumber int) (*models.Report, error)
	Update(id uint, fields map[string]interface{}) error
	MarkPending(ids []uint) error
	UnsyncedByProject(projectID uint) ([]models.Report, error)
}

// Settings supplies runtime configuration the sync engine reads.
type Settings interface {
	PublicBaseURL() string
}

// SyncService owns the mapping between local reports and remote issues:
// create-vs-update decisions, retry policy, per-integration auto-sync
// and inbound webhook transitions.
type SyncService struct {
	integrations IntegrationStore
	reports      ReportStore
	files        tracker.Files
	settings     Settings

	trackerFor  func(*models.Integration) (tracker.Client, error)
	syncFn      func(ctx context.Context, reportID, integrationID uint) *SyncResult
	maxAttempts int
	retryDelays []time.Duration
	batchDelay  time.Duration
}

func NewSyncService(integrations IntegrationStore, reports ReportStore, files tracker.Files, settings Settings) *SyncService {
	s := &SyncService{
		integrations: integrations,
		reports:      reports,
		files:        files,
		settings:     settings,
		maxAttempts:  3,
		retryDelays:  []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		batchDelay:   500 * time.Millisecond,
	}
	s.trackerFor = func(integ *models.Integration) (tracker.Client, error) {
		return tracker.New(integ, files)
	}
	s.syncFn = s.SyncReport
	return s
}

// SyncReport pushes one report to the integration's tracker. All
// failures, including panics from the client, end up in the result;
// remote failures are also recorded on the report row.
func (s *SyncService) SyncReport(ctx context.Context, reportID, integrationID uint) (result *SyncResult) {
	result = &SyncResult{ReportID: reportID}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Sync] panic syncing report %d: %v", reportID, r)
			message := fmt.Sprintf("internal error: %v", r)
			s.recordFailure(reportID, message)
			result.fail(SyncErrFailed, message)
		}
	}()

	report, err := s.reports.ByID(reportID)
	if err != nil {
		return result.fail(SyncErrNotFound, fmt.Sprintf("report %d not found", reportID))
	}

	integ, err := s.integrations.ByID(integrationID)
	if err != nil {
		s.recordFailure(reportID, fmt.Sprintf("integration %d not found", integrationID))
		return result.fail(SyncErrNotFound, fmt.Sprintf("integration %d not found", integrationID))
	}
	if integ.Type != models.IntegrationTypeGitHub {
		message := fmt.Sprintf("integration %d has type %s, expected %s", integ.ID, integ.Type, models.IntegrationTypeGitHub)
		s.recordFailure(reportID, message)
		return result.fail(SyncErrInvalidType, message)
	}
	if !integ.IsActive {
		message := fmt.Sprintf("integration %d is disabled", integ.ID)
		s.recordFailure(reportID, message)
		return result.fail(SyncErrInactive, message)
	}

	client, err := s.trackerFor(integ)
	if err != nil {
		s.recordFailure(reportID, err.Error())
		return result.fail(SyncErrInvalidType, err.Error())
	}

	var ref *tracker.IssueRef
	if report.IssueNumber != nil {
		ref, err = client.UpdateIssue(ctx, *report.IssueNumber, report)
	} else {
		ref, err = client.CreateIssue(ctx, report, nil, nil)
	}
	if err != nil {
		s.recordFailure(reportID, err.Error())
		return result.fail(SyncErrFailed, err.Error())
	}

	if err := s.reports.Update(reportID, map[string]interface{}{
		"sync_status":  models.SyncStatusSynced,
		"sync_error":   "",
		"issue_number": ref.Number,
		"issue_url":    ref.URL,
		"synced_at":    time.Now(),
	}); err != nil {
		message := fmt.Sprintf("issue #%d created but recording the result failed: %v", ref.Number, err)
		s.recordFailure(reportID, message)
		return result.fail(SyncErrFailed, message)
	}
	if err := s.integrations.TouchSynced(integ.ID); err != nil {
		logger.Warnf("[Sync] failed to bump usage for integration %d: %v", integ.ID, err)
	}

	logger.Infof("[Sync] report %d synced to issue #%d", reportID, ref.Number)
	PublishSyncEvent(SyncEvent{
		ReportID:      reportID,
		ProjectID:     report.ProjectID,
		IntegrationID: integ.ID,
		SyncStatus:    models.SyncStatusSynced,
		IssueNumber:   ref.Number,
		IssueURL:      ref.URL,
	})
	result.Success = true
	result.IssueNumber = ref.Number
	result.IssueURL = ref.URL
	return result
}

// SyncWithRetry runs SyncReport up to the attempt bound, sleeping the
// fixed schedule between attempts. Non-retryable codes stop the loop at
// once. After the bound, the report's error names the attempt count.
func (s *SyncService) SyncWithRetry(ctx context.Context, reportID, integrationID uint) *SyncResult {
	var last *SyncResult

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		last = s.syncFn(ctx, reportID, integrationID)
		if last.Success || !retryableCode(last.Code) {
			return last
		}

		if attempt < s.maxAttempts {
			delay := s.retryDelays[len(s.retryDelays)-1]
			if attempt-1 < len(s.retryDelays) {
				delay = s.retryDelays[attempt-1]
			}
			logger.Infof("[Sync] report %d attempt %d/%d failed, retrying in %v", reportID, attempt, s.maxAttempts, delay)
			select {
			case <-ctx.Done():
				return last
			case <-time.After(delay):
			}
		}
	}

	message := fmt.Sprintf("sync failed after %d attempts: %s", s.maxAttempts, last.Message)
	s.recordFailure(reportID, message)
	last.Message = message
	return last
}

// SyncReports pushes a set of reports sequentially. Every report is
// marked pending up front; a short delay between calls respects the
// tracker's rate limits. One report's failure never aborts the rest.
func (s *SyncService) SyncReports(ctx context.Context, reportIDs []uint, integrationID uint) *BatchSyncResult {
	batch := &BatchSyncResult{Total: len(reportIDs)}
	if len(reportIDs) == 0 {
		return batch
	}

	if err := s.reports.MarkPending(reportIDs); err != nil {
		logger.Warnf("[Sync] failed to mark %d reports pending: %v", len(reportIDs), err)
	}

	for i, id := range reportIDs {
		res := s.syncFn(ctx, id, integrationID)
		batch.Results = append(batch.Results, res)
		if res.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}

		if i < len(reportIDs)-1 {
			select {
			case <-ctx.Done():
				return batch
			case <-time.After(s.batchDelay):
			}
		}
	}

	logger.Infof("[Sync] batch finished: %d synced, %d failed", batch.Succeeded, batch.Failed)
	return batch
}

// EnableAutoSync switches the integration to automatic mode and
// registers an inbound webhook with a fresh random secret. When
// registration fails the integration still goes automatic, degraded to
// outbound-only; webhook id and secret stay unset.
func (s *SyncService) EnableAutoSync(ctx context.Context, integrationID uint) (*models.Integration, error) {
	integ, err := s.integrations.ByID(integrationID)
	if err != nil {
		return nil, NewSyncError(SyncErrNotFound, "integration %d not found", integrationID)
	}
	if integ.Type != models.IntegrationTypeGitHub {
		return nil, NewSyncError(SyncErrInvalidType, "integration %d has type %s, expected %s", integ.ID, integ.Type, models.IntegrationTypeGitHub)
	}

	baseURL := s.settings.PublicBaseURL()
	if baseURL == "" {
		return nil, NewSyncError(SyncErrConfig, "public base URL is not configured, set it before enabling automatic sync")
	}

	secret, err := generateWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	callbackURL := fmt.Sprintf("%s%s%d", strings.TrimRight(baseURL, "/"), webhookPathPrefix, integ.ID)

	fields := map[string]interface{}{"sync_mode": models.SyncModeAutomatic}

	client, err := s.trackerFor(integ)
	if err == nil {
		webhookID, werr := client.CreateWebhook(ctx, callbackURL, secret)
		if werr == nil {
			fields["webhook_id"] = webhookID
			fields["webhook_secret"] = secret
			logger.Infof("[Sync] webhook %d registered for integration %d at %s", webhookID, integ.ID, callbackURL)
		} else {
			err = werr
		}
	}
	if err != nil {
		logger.Warnf("[Sync] webhook registration failed for integration %d, continuing outbound-only: %v", integ.ID, err)
		LogWarning("sync", "enable_auto_sync",
			fmt.Sprintf("webhook registration failed for integration %d: %v", integ.ID, err), nil, "", "", nil)
	}

	if err := s.integrations.Update(integ.ID, fields); err != nil {
		return nil, fmt.Errorf("failed to update integration %d: %w", integ.ID, err)
	}
	return s.integrations.ByID(integ.ID)
}

// DisableAutoSync switches the integration back to manual mode. The
// remote webhook delete is best-effort; local webhook id and secret are
// cleared no matter what the tracker answered.
func (s *SyncService) DisableAutoSync(ctx context.Context, integrationID uint) (*models.Integration, error) {
	integ, err := s.integrations.ByID(integrationID)
	if err != nil {
		return nil, NewSyncError(SyncErrNotFound, "integration %d not found", integrationID)
	}
	if integ.Type != models.IntegrationTypeGitHub {
		return nil, NewSyncError(SyncErrInvalidType, "integration %d has type %s, expected %s", integ.ID, integ.Type, models.IntegrationTypeGitHub)
	}

	if integ.WebhookID != nil {
		if client, cerr := s.trackerFor(integ); cerr == nil {
			if derr := client.DeleteWebhook(ctx, *integ.WebhookID); derr != nil {
				logger.Warnf("[Sync] remote webhook delete failed for integration %d: %v", integ.ID, derr)
			}
		}
	}

	if err := s.integrations.Update(integ.ID, map[string]interface{}{
		"sync_mode":      models.SyncModeManual,
		"webhook_id":     nil,
		"webhook_secret": "",
	}); err != nil {
		return nil, fmt.Errorf("failed to update integration %d: %w", integ.ID, err)
	}
	return s.integrations.ByID(integ.ID)
}

// HandleIssueEvent applies one inbound issues event to local state.
// Issues that map to no report and transitions outside the two watched
// directions are no-ops; only a store failure is an error.
func (s *SyncService) HandleIssueEvent(ctx context.Context, integ *models.Integration, event *webhook.IssuesEvent) error {
	report, err := s.reports.ByIssueNumber(integ.ProjectID, event.Issue.Number)
	if err != nil {
		// Not every remote issue corresponds to a tracked report.
		return nil
	}

	var newStatus string
	switch {
	case event.Action == webhook.ActionClosed && event.Issue.State == "closed":
		if report.Status != models.ReportStatusResolved && report.Status != models.ReportStatusClosed {
			newStatus = models.ReportStatusResolved
		}
	case event.Action == webhook.ActionReopened && event.Issue.State == "open":
		if report.Status == models.ReportStatusResolved || report.Status == models.ReportStatusClosed {
			newStatus = models.ReportStatusOpen
		}
	}
	if newStatus == "" {
		return nil
	}

	if err := s.reports.Update(report.ID, map[string]interface{}{"status": newStatus}); err != nil {
		return fmt.Errorf("failed to update report %d from webhook: %w", report.ID, err)
	}

	logger.Infof("[Sync] report %d moved to %s by issue #%d %s", report.ID, newStatus, event.Issue.Number, event.Action)
	PublishSyncEvent(SyncEvent{
		ReportID:      report.ID,
		ProjectID:     integ.ProjectID,
		IntegrationID: integ.ID,
		Status:        newStatus,
		IssueNumber:   event.Issue.Number,
	})
	return nil
}

// AutoSyncIntegration returns the project's active automatic-mode
// integration, or nil when none is configured.
func (s *SyncService) AutoSyncIntegration(projectID uint) (*models.Integration, error) {
	integrations, err := s.integrations.ByProject(projectID)
	if err != nil {
		return nil, err
	}
	for i := range integrations {
		integ := &integrations[i]
		if integ.Type == models.IntegrationTypeGitHub && integ.IsActive && integ.SyncMode == models.SyncModeAutomatic {
			return integ, nil
		}
	}
	return nil, nil
}

// ActiveIntegration returns the project's active tracker integration
// regardless of sync mode, preferring an automatic one.
func (s *SyncService) ActiveIntegration(projectID uint) (*models.Integration, error) {
	integrations, err := s.integrations.ByProject(projectID)
	if err != nil {
		return nil, err
	}
	var fallback *models.Integration
	for i := range integrations {
		integ := &integrations[i]
		if integ.Type != models.IntegrationTypeGitHub || !integ.IsActive {
			continue
		}
		if integ.SyncMode == models.SyncModeAutomatic {
			return integ, nil
		}
		if fallback == nil {
			fallback = integ
		}
	}
	return fallback, nil
}

// UnsyncedCount returns how many of the project's reports have never
// been linked to a remote issue.
func (s *SyncService) UnsyncedCount(projectID uint) (int, error) {
	reports, err := s.reports.UnsyncedByProject(projectID)
	if err != nil {
		return 0, err
	}
	return len(reports), nil
}

// UnsyncedReportIDs lists the ids behind UnsyncedCount, for bulk
// enqueueing.
func (s *SyncService) UnsyncedReportIDs(projectID uint) ([]uint, error) {
	reports, err := s.reports.UnsyncedByProject(projectID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(reports))
	for i := range reports {
		ids = append(ids, reports[i].ID)
	}
	return ids, nil
}

func (s *SyncService) recordFailure(reportID uint, message string) {
	if err := s.reports.Update(reportID, map[string]interface{}{
		"sync_status": models.SyncStatusError,
		"sync_error":  message,
	}); err != nil {
		logger.Errorf("[Sync] failed to record sync error for report %d: %v", reportID, err)
	}
	PublishSyncEvent(SyncEvent{
		ReportID:   reportID,
		SyncStatus: models.SyncStatusError,
		Error:      message,
	})
}

func generateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
