package cmd

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"just_us/internal/domain"
)

// formatMessage - одна строка на сообщение, как в ленте чата.
func formatMessage(m *domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", m.Timestamp.Local().Format("Jan 02 15:04"), m.Username)

	if m.IsDeleted {
		b.WriteString(": (unsent)")
		fmt.Fprintf(&b, "  #%s", shortID(m.ID))
		return b.String()
	}

	if m.ReplyTo != nil {
		fmt.Fprintf(&b, " ↪ %s: %q", m.ReplyTo.Username, truncate(m.ReplyTo.Message, 30))
	}
	b.WriteString(": ")
	b.WriteString(m.Message)

	switch {
	case m.Asset != nil:
		fmt.Fprintf(&b, " [image %s]", m.Asset.SecureURL)
	case m.Audio != nil:
		fmt.Fprintf(&b, " [voice %s]", m.Audio.SecureURL)
	case m.Gif != nil:
		fmt.Fprintf(&b, " [gif %s]", m.Gif.URL)
	}
	if m.EditedAt != nil {
		b.WriteString(" (edited)")
	}
	if m.Reaction != nil {
		fmt.Fprintf(&b, " %s %s", m.Reaction.Reaction, m.Reaction.ReactorUsername)
	}
	if m.IsSeen {
		b.WriteString(" ✓✓")
	}
	fmt.Fprintf(&b, "  #%s", shortID(m.ID))
	return b.String()
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// fileDataURL читает файл и кодирует его в data URL с определенным по содержимому типом.
func fileDataURL(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	mime := mimetype.Detect(data)
	return "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func printLine(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format+"\n", args...)
}
