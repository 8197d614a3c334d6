package tracker

import (
	"testing"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantOwner   string
		wantRepo    string
		wantBaseURL string
		wantErr     bool
	}{
		{
			name:      "public repository",
			url:       "https://github.com/acme/app",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:      "with .git suffix",
			url:       "https://github.com/acme/app.git",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:      "trailing slash",
			url:       "https://github.com/acme/app/",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:      "deep link to an issue",
			url:       "https://github.com/acme/app/issues/42",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:      "deep link to a branch",
			url:       "https://github.com/acme/app/tree/main/docs",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:        "self-hosted instance",
			url:         "https://git.company.com/team/app",
			wantOwner:   "team",
			wantRepo:    "app",
			wantBaseURL: "https://git.company.com/api/v3",
		},
		{
			name:        "self-hosted over http",
			url:         "http://git.local/team/app",
			wantOwner:   "team",
			wantRepo:    "app",
			wantBaseURL: "http://git.local/api/v3",
		},
		{
			name:      "host casing ignored",
			url:       "https://GitHub.com/acme/app",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:      "surrounding whitespace",
			url:       "  https://github.com/acme/app  ",
			wantOwner: "acme",
			wantRepo:  "app",
		},
		{
			name:    "no scheme",
			url:     "github.com/acme/app",
			wantErr: true,
		},
		{
			name:    "ssh scheme",
			url:     "ssh://git@github.com/acme/app",
			wantErr: true,
		},
		{
			name:    "no path",
			url:     "https://github.com",
			wantErr: true,
		},
		{
			name:    "only slash",
			url:     "https://github.com/",
			wantErr: true,
		},
		{
			name:    "owner without repo",
			url:     "https://github.com/acme",
			wantErr: true,
		},
		{
			name:    "empty url",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseRepoURL(tt.url)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if ref.Owner != tt.wantOwner {
				t.Errorf("Owner = %q, want %q", ref.Owner, tt.wantOwner)
			}
			if ref.Repo != tt.wantRepo {
				t.Errorf("Repo = %q, want %q", ref.Repo, tt.wantRepo)
			}
			if ref.APIBaseURL != tt.wantBaseURL {
				t.Errorf("APIBaseURL = %q, want %q", ref.APIBaseURL, tt.wantBaseURL)
			}
		})
	}
}
