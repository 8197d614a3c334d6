// Package tracker adapts external issue trackers behind a narrow client
// contract. The sync engine only ever talks to the Client interface; the
// concrete tracker is selected from the integration's type discriminant.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

// Client is the surface the sync engine needs from an external tracker.
// All operations are remote calls. Callers must treat failures as
// retryable unless classified otherwise by the error's status code.
type Client interface {
	// TestConnection validates the credential and repository locator.
	TestConnection(ctx context.Context) (*Repository, error)

	// CreateIssue renders the report into an issue body and creates a
	// remote issue. Extra labels and assignees are merged with the
	// integration's configured defaults.
	CreateIssue(ctx context.Context, report *models.Report, extraLabels, extraAssignees []string) (*IssueRef, error)

	// UpdateIssue re-renders the body and maps the report status onto the
	// tracker's open/closed state.
	UpdateIssue(ctx context.Context, issueNumber int, report *models.Report) (*IssueRef, error)

	// GetIssue fetches a single remote issue.
	GetIssue(ctx context.Context, issueNumber int) (*Issue, error)

	// CreateWebhook registers a remote webhook subscribed to issue events
	// only, returning the remote webhook id.
	CreateWebhook(ctx context.Context, callbackURL, secret string) (int64, error)

	// DeleteWebhook removes a remote webhook. A webhook that is already
	// gone counts as success.
	DeleteWebhook(ctx context.Context, webhookID int64) error

	// Admin UI lookups.
	ListRepositories(ctx context.Context) ([]Repository, error)
	ListLabels(ctx context.Context) ([]Label, error)
	ListAssignees(ctx context.Context) ([]User, error)
}

// Files is the attachment storage surface the client reads from when an
// integration uploads report files into the tracker.
type Files interface {
	ByReport(reportID uint) ([]models.Attachment, error)
	Read(att *models.Attachment) ([]byte, error)
}

// New returns the client for the integration's tracker type.
func New(integ *models.Integration, files Files) (Client, error) {
	switch integ.Type {
	case models.IntegrationTypeGitHub:
		return NewGitHub(integ, files), nil
	default:
		return nil, fmt.Errorf("unsupported tracker type: %s", integ.Type)
	}
}

// APIError is a non-2xx response from the tracker API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker API error: %s (status %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsRetryable reports whether err is worth another attempt. Client errors
// other than rate limiting are permanent; network-level failures and
// server errors are transient.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
