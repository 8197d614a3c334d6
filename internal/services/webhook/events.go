package webhook

// Delivery headers set by the tracker.
const (
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
	SignatureHeader = "X-Hub-Signature-256"
)

// Event types the pipeline dispatches on. Everything else is
// acknowledged and ignored.
const (
	EventPing   = "ping"
	EventIssues = "issues"
)

// Issue actions that can drive a report transition.
const (
	ActionOpened   = "opened"
	ActionClosed   = "closed"
	ActionReopened = "reopened"
)

// IssueRef is the nested issue fragment of an issues event.
type IssueRef struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
}

// IssuesEvent is the subset of an inbound issues payload the sync engine
// inspects.
type IssuesEvent struct {
	Action     string   `json:"action"`
	Issue      IssueRef `json:"issue"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// PingEvent is sent by the tracker right after webhook registration.
type PingEvent struct {
	Zen    string `json:"zen"`
	HookID int64  `json:"hook_id"`
}
