package tracker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

// Captured traces are collapsed and capped so a chatty page cannot push
// the body past the remote size limit.
const maxSectionChars = 4000

// renderIssueBody produces the markdown body for a report's issue.
func renderIssueBody(report *models.Report, attachments []AttachmentLink) string {
	var b strings.Builder

	if report.Description != "" {
		b.WriteString(report.Description)
		b.WriteString("\n\n")
	}

	b.WriteString("## Environment\n\n")
	b.WriteString("| | |\n|---|---|\n")
	writeEnvRow(&b, "Page URL", report.PageURL)
	writeEnvRow(&b, "Browser", report.Browser)
	writeEnvRow(&b, "OS", report.OS)
	writeEnvRow(&b, "Screen", report.ScreenSize)
	writeEnvRow(&b, "Device", report.DeviceType)
	writeEnvRow(&b, "Priority", report.Priority)
	b.WriteString("\n")

	if report.ReporterName != "" || report.ReporterEmail != "" {
		name := report.ReporterName
		if name == "" {
			name = "anonymous"
		}
		if report.ReporterEmail != "" {
			fmt.Fprintf(&b, "Reported by %s (%s)\n\n", name, report.ReporterEmail)
		} else {
			fmt.Fprintf(&b, "Reported by %s\n\n", name)
		}
	}

	if len(attachments) > 0 {
		b.WriteString("## Attachments\n\n")
		for _, att := range attachments {
			if att.IsImage {
				fmt.Fprintf(&b, "![%s](%s)\n", att.Name, att.URL)
			} else {
				fmt.Fprintf(&b, "- [%s](%s)\n", att.Name, att.URL)
			}
		}
		b.WriteString("\n")
	}

	writeTraceSection(&b, "Console Logs", report.ConsoleLogs)
	writeTraceSection(&b, "Network Requests", report.NetworkLogs)
	writeTraceSection(&b, "User Actions", report.ActivityTrail)

	fmt.Fprintf(&b, "---\n_Synced from bugpin report #%d_\n", report.ID)
	return b.String()
}

func writeEnvRow(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "| %s | %s |\n", label, value)
}

// writeTraceSection renders a captured JSON payload inside a collapsed
// details block.
func writeTraceSection(b *strings.Builder, title, payload string) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[]" {
		return
	}

	pretty := payload
	var decoded interface{}
	if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
		if out, err := json.MarshalIndent(decoded, "", "  "); err == nil {
			pretty = string(out)
		}
	}
	if len(pretty) > maxSectionChars {
		pretty = pretty[:maxSectionChars] + "\n... (truncated)"
	}

	fmt.Fprintf(b, "<details>\n<summary>%s</summary>\n\n```json\n%s\n```\n\n</details>\n\n", title, pretty)
}
