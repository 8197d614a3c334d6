package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

const (
	defaultAPIEndpoint = "https://api.github.com"
	defaultTimeout     = 30 * time.Second

	maxPageSize = 100
	maxPages    = 10

	// Files above this size or with a video mime type stay behind their
	// hosted URL instead of being uploaded into the repository.
	maxUploadBytes = 10 * 1024 * 1024
)

// GitHub implements Client against a GitHub-style REST API for one
// integration.
type GitHub struct {
	token             string
	owner             string
	repo              string
	defaultLabels     []string
	defaultAssignees  []string
	uploadAttachments bool
	baseURL           string
	httpClient        *http.Client
	files             Files
}

// NewGitHub builds a client from the integration's configuration.
func NewGitHub(integ *models.Integration, files Files) *GitHub {
	base := integ.BaseURL
	if base == "" {
		base = defaultAPIEndpoint
	}
	return &GitHub{
		token:             integ.AccessToken,
		owner:             integ.Owner,
		repo:              integ.Repo,
		defaultLabels:     splitCSV(integ.Labels),
		defaultAssignees:  splitCSV(integ.Assignees),
		uploadAttachments: integ.UploadAttachments,
		baseURL:           strings.TrimRight(base, "/"),
		httpClient:        &http.Client{Timeout: defaultTimeout},
		files:             files,
	}
}

// WithBaseURL returns a copy pointed at a custom API endpoint.
func (c *GitHub) WithBaseURL(baseURL string) *GitHub {
	out := *c
	out.baseURL = strings.TrimRight(baseURL, "/")
	return &out
}

// WithHTTPClient returns a copy using a custom HTTP client.
func (c *GitHub) WithHTTPClient(httpClient *http.Client) *GitHub {
	out := *c
	out.httpClient = httpClient
	return &out
}

func (c *GitHub) repoPath() string {
	return c.owner + "/" + c.repo
}

// buildURL constructs a full API URL.
func (c *GitHub) buildURL(path string, params map[string]string) string {
	u := c.baseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// doRequest performs one authenticated API call. Retry policy lives with
// the callers, so a non-2xx response comes back as a single *APIError.
func (c *GitHub) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(respBody)}
	}

	return respBody, resp.Header, nil
}

// apiMessage pulls the "message" field the API puts in error bodies.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}

// linkNextPattern matches the "next" relation in Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// TestConnection fetches the repository, classifying the two failure
// modes the admin UI can act on.
func (c *GitHub) TestConnection(ctx context.Context) (*Repository, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath(), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		switch {
		case IsStatus(err, http.StatusNotFound):
			return nil, fmt.Errorf("repository %s not found or no access", c.repoPath())
		case IsStatus(err, http.StatusUnauthorized):
			return nil, fmt.Errorf("invalid access token")
		}
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	var repo Repository
	if err := json.Unmarshal(respBody, &repo); err != nil {
		return nil, fmt.Errorf("failed to parse repository response: %w", err)
	}
	return &repo, nil
}

// CreateIssue renders the report and creates a remote issue. Labels and
// assignees merge configured defaults with request-time extras;
// duplicates pass through, the remote API tolerates them.
func (c *GitHub) CreateIssue(ctx context.Context, report *models.Report, extraLabels, extraAssignees []string) (*IssueRef, error) {
	payload := map[string]interface{}{
		"title": report.Title,
		"body":  renderIssueBody(report, c.attachmentLinks(ctx, report)),
	}
	if labels := mergeValues(c.defaultLabels, extraLabels); len(labels) > 0 {
		payload["labels"] = labels
	}
	if assignees := mergeValues(c.defaultAssignees, extraAssignees); len(assignees) > 0 {
		payload["assignees"] = assignees
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	return &IssueRef{Number: issue.Number, URL: issue.HTMLURL}, nil
}

// UpdateIssue re-renders the body and maps the report status onto the
// tracker's open/closed state.
func (c *GitHub) UpdateIssue(ctx context.Context, issueNumber int, report *models.Report) (*IssueRef, error) {
	payload := map[string]interface{}{
		"title": report.Title,
		"body":  renderIssueBody(report, c.attachmentLinks(ctx, report)),
		"state": issueStateFor(report.Status),
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(issueNumber), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue #%d: %w", issueNumber, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &IssueRef{Number: issue.Number, URL: issue.HTMLURL}, nil
}

// GetIssue retrieves a single issue by number.
func (c *GitHub) GetIssue(ctx context.Context, issueNumber int) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(issueNumber), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue #%d: %w", issueNumber, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}
	return &issue, nil
}

// CreateWebhook registers a webhook subscribed to issue events only.
func (c *GitHub) CreateWebhook(ctx context.Context, callbackURL, secret string) (int64, error) {
	payload := map[string]interface{}{
		"name":   "web",
		"active": true,
		"events": []string{"issues"},
		"config": map[string]string{
			"url":          callbackURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/hooks", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, payload)
	if err != nil {
		switch {
		case IsStatus(err, http.StatusNotFound):
			return 0, fmt.Errorf("cannot create webhook: admin permission required on %s", c.repoPath())
		case IsStatus(err, http.StatusUnprocessableEntity):
			return 0, fmt.Errorf("webhook already exists on %s", c.repoPath())
		}
		return 0, fmt.Errorf("failed to create webhook: %w", err)
	}

	var hook struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(respBody, &hook); err != nil {
		return 0, fmt.Errorf("failed to parse webhook response: %w", err)
	}
	return hook.ID, nil
}

// DeleteWebhook removes a webhook. An already deleted webhook is success.
func (c *GitHub) DeleteWebhook(ctx context.Context, webhookID int64) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/hooks/"+strconv.FormatInt(webhookID, 10), nil)
	if _, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, nil); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// ListRepositories pages through repositories accessible to the token,
// bounded so a huge account cannot stall the admin UI.
func (c *GitHub) ListRepositories(ctx context.Context) ([]Repository, error) {
	var all []Repository
	for page := 1; page <= maxPages; page++ {
		params := map[string]string{
			"per_page": strconv.Itoa(maxPageSize),
			"page":     strconv.Itoa(page),
			"sort":     "updated",
		}
		urlStr := c.buildURL("/user/repos", params)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}

		var repos []Repository
		if err := json.Unmarshal(respBody, &repos); err != nil {
			return nil, fmt.Errorf("failed to parse repositories response: %w", err)
		}
		if len(repos) == 0 {
			break
		}
		all = append(all, repos...)

		if _, ok := hasNextPage(headers); !ok {
			break
		}
	}
	return all, nil
}

// ListLabels retrieves the repository's labels.
func (c *GitHub) ListLabels(ctx context.Context) ([]Label, error) {
	params := map[string]string{"per_page": strconv.Itoa(maxPageSize)}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", params)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	var labels []Label
	if err := json.Unmarshal(respBody, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels response: %w", err)
	}
	return labels, nil
}

// ListAssignees retrieves users assignable to issues in the repository.
func (c *GitHub) ListAssignees(ctx context.Context) ([]User, error) {
	params := map[string]string{"per_page": strconv.Itoa(maxPageSize)}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/assignees", params)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}

	var users []User
	if err := json.Unmarshal(respBody, &users); err != nil {
		return nil, fmt.Errorf("failed to parse assignees response: %w", err)
	}
	return users, nil
}

// attachmentLinks resolves the report's files to the URLs embedded in the
// issue body. A permission-denied upload aborts remaining uploads for the
// report; the files fall back to their hosted URLs and issue creation
// proceeds.
func (c *GitHub) attachmentLinks(ctx context.Context, report *models.Report) []AttachmentLink {
	if c.files == nil {
		return nil
	}
	atts, err := c.files.ByReport(report.ID)
	if err != nil || len(atts) == 0 {
		return nil
	}

	links := make([]AttachmentLink, 0, len(atts))
	uploadDenied := false
	for i := range atts {
		att := &atts[i]
		link := AttachmentLink{
			Name:    att.FileName,
			URL:     att.URL,
			IsImage: strings.HasPrefix(att.MimeType, "image/"),
		}
		if c.uploadAttachments && !uploadDenied && uploadEligible(att) {
			uploaded, err := c.uploadAttachment(ctx, report.ID, att)
			switch {
			case err == nil:
				link.URL = uploaded
			case IsStatus(err, http.StatusForbidden):
				uploadDenied = true
				logger.Warn().Uint("report_id", report.ID).Msg("[Tracker] attachment upload denied, skipping remaining uploads")
			default:
				logger.Debug().Err(err).Str("file", att.FileName).Msg("[Tracker] attachment upload failed")
			}
		}
		if link.URL != "" {
			links = append(links, link)
		}
	}
	return links
}

// uploadEligible excludes videos and oversized files from repository
// uploads.
func uploadEligible(att *models.Attachment) bool {
	if strings.HasPrefix(att.MimeType, "video/") {
		return false
	}
	return att.FileSize <= maxUploadBytes
}

// uploadAttachment puts one file under a content path keyed by report id,
// reusing an existing upload from an earlier sync when present.
func (c *GitHub) uploadAttachment(ctx context.Context, reportID uint, att *models.Attachment) (string, error) {
	contentPath := fmt.Sprintf("bugpin-uploads/report-%d/%s", reportID, url.PathEscape(att.FileName))
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/contents/"+contentPath, nil)

	if respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil); err == nil {
		var existing struct {
			DownloadURL string `json:"download_url"`
		}
		if err := json.Unmarshal(respBody, &existing); err == nil && existing.DownloadURL != "" {
			return existing.DownloadURL, nil
		}
	}

	data, err := c.files.Read(att)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment %s: %w", att.FileName, err)
	}

	payload := map[string]interface{}{
		"message": fmt.Sprintf("Upload attachment for report #%d", reportID),
		"content": base64.StdEncoding.EncodeToString(data),
	}
	respBody, _, err := c.doRequest(ctx, http.MethodPut, urlStr, payload)
	if err != nil {
		return "", err
	}

	var created struct {
		Content struct {
			DownloadURL string `json:"download_url"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	return created.Content.DownloadURL, nil
}

// issueStateFor maps a report status onto the tracker's two issue states.
func issueStateFor(status string) string {
	switch status {
	case models.ReportStatusResolved, models.ReportStatusClosed:
		return "closed"
	default:
		return "open"
	}
}

// mergeValues appends request-time values to configured defaults.
func mergeValues(defaults, extra []string) []string {
	out := make([]string, 0, len(defaults)+len(extra))
	out = append(out, defaults...)
	out = append(out, extra...)
	return out
}

// splitCSV splits a comma-separated config value, dropping empties.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
