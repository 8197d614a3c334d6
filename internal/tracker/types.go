package tracker

// Issue is the subset of remote issue fields the sync engine reads.
type Issue struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Body    string  `json:"body,omitempty"`
	State   string  `json:"state"`
	HTMLURL string  `json:"html_url"`
	Labels  []Label `json:"labels,omitempty"`
}

// IssueRef is the remote locator written back onto a report after a
// successful create or update.
type IssueRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Repository describes a remote repository for admin lookups and
// connection tests.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
}

// Label is a remote issue label.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// User is a remote user account, used for assignee lookups.
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// AttachmentLink is one report file as it should appear in a rendered
// issue body, either uploaded into the tracker or linked at its locally
// hosted URL.
type AttachmentLink struct {
	Name    string
	URL     string
	IsImage bool
}
