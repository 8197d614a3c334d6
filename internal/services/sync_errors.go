package services

import (
	"errors"
	"fmt"
)

// Sync failure codes. NOT_FOUND, INVALID_TYPE and INACTIVE come from
// validation and never retry; CONFIG_ERROR needs an admin to fix the
// deployment; SYNC_FAILED is a remote failure worth retrying.
const (
	SyncErrNotFound    = "NOT_FOUND"
	SyncErrInvalidType = "INVALID_TYPE"
	SyncErrInactive    = "INACTIVE"
	SyncErrConfig      = "CONFIG_ERROR"
	SyncErrFailed      = "SYNC_FAILED"
)

// SyncError is a classified sync failure.
type SyncError struct {
	Code    string
	Message string
}

func (e *SyncError) Error() string {
	return e.Message
}

// NewSyncError builds a classified failure.
func NewSyncError(code, format string, args ...interface{}) *SyncError {
	return &SyncError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// SyncErrorCode extracts the failure code from an error, defaulting to
// SYNC_FAILED for unclassified errors.
func SyncErrorCode(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return SyncErrFailed
}

// retryableCode reports whether a failure code is transient.
func retryableCode(code string) bool {
	return code == SyncErrFailed
}

// SyncResult is the outcome of one sync attempt for one report.
type SyncResult struct {
	ReportID    uint   `json:"report_id"`
	Success     bool   `json:"success"`
	IssueNumber int    `json:"issue_number,omitempty"`
	IssueURL    string `json:"issue_url,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (r *SyncResult) fail(code, message string) *SyncResult {
	r.Success = false
	r.Code = code
	r.Message = message
	return r
}

// BatchSyncResult aggregates a multi-report sync.
type BatchSyncResult struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []*SyncResult `json:"results"`
}
