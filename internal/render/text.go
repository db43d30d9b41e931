// Package render turns a room's message list into plain text, one line per
// message, for terminal output.
package render

import (
	"fmt"
	"strings"

	"studyroom/internal/models"

	"github.com/aquilax/truncate"
	"github.com/dustin/go-humanize"
)

const (
	MarkerPending = "…"
	MarkerFailed  = "!"

	TimeLayout       = "15:04"
	MaxFilenameWidth = 32
	SelfName         = "You"
)

// Render returns the full list, oldest first. Every call redraws everything;
// callers print the result after each buffer change.
func Render(messages []models.Message, selfID string) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(Line(m, selfID))
		b.WriteByte('\n')
	}
	return b.String()
}

// Line renders a single message.
func Line(m models.Message, selfID string) string {
	stamp := m.CreatedAt.Format(TimeLayout)

	if m.Kind == models.KindSystem {
		return fmt.Sprintf("[%s] * %s", stamp, m.Text)
	}

	line := fmt.Sprintf("[%s] %s: %s", stamp, author(m, selfID), body(m))

	switch m.Status {
	case models.StatusPending:
		line += " " + MarkerPending
	case models.StatusFailed:
		reason := m.FailureReason
		if reason == "" {
			reason = "not sent"
		}
		line += fmt.Sprintf(" %s %s (/retry %s)", MarkerFailed, reason, m.ID)
	}
	return line
}

func author(m models.Message, selfID string) string {
	if selfID != "" && m.AuthorID == selfID {
		return SelfName
	}
	if m.AuthorName != "" {
		return m.AuthorName
	}
	return m.AuthorID
}

func body(m models.Message) string {
	if !m.Kind.HasAttachment() || m.Attachment == nil {
		return m.Text
	}

	a := m.Attachment
	name := a.Filename
	if name == "" {
		name = "attachment"
	}
	name = truncate.Truncate(name, MaxFilenameWidth, "...", truncate.PositionMiddle)

	out := fmt.Sprintf("[%s] %s", m.Kind, name)
	if a.Size > 0 {
		out += " (" + humanize.Bytes(uint64(a.Size)) + ")"
	}
	if a.URL != "" {
		out += " " + a.URL
	}
	if m.Text != "" {
		out += " " + m.Text
	}
	return out
}
