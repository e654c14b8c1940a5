package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
)

// maxOutputLen keeps messages well below Telegram's 4096 character limit.
const maxOutputLen = 1500

// renderReport formats a job report as Telegram HTML.
//
//	✅ ensure on web01
//	🖥 192.168.1.100 · ⏱ 1.2s
//	🔖 <run id> · started 10:30:00
//	<pre>output</pre>
func renderReport(msg models.TelegramMessage) string {
	var b strings.Builder

	icon, verdict := "✅", "succeeded"
	if !msg.Success {
		icon, verdict = "❌", "failed"
	}
	fmt.Fprintf(&b, "%s <b>%s on %s %s</b>\n", icon, esc(msg.Action), esc(msg.Target), verdict)

	if msg.Host != "" && msg.Host != msg.Target {
		fmt.Fprintf(&b, "🖥 %s · ", esc(msg.Host))
	}
	fmt.Fprintf(&b, "⏱ %s\n", msg.Duration.Round(time.Millisecond))

	if msg.RunID != "" {
		fmt.Fprintf(&b, "🔖 <code>%s</code> · ", esc(msg.RunID))
	}
	fmt.Fprintf(&b, "started %s\n", msg.StartTime.Format("2006-01-02 15:04:05"))

	if msg.Success {
		writeBlock(&b, "", msg.Output)
		return b.String()
	}

	step := msg.FailedStep
	if step == "" {
		step = msg.Action
	}
	writeBlock(&b, "Failed at "+step, msg.ErrorMessage)
	return b.String()
}

// writeBlock appends body as preformatted text under an optional heading.
// Blank bodies are skipped.
func writeBlock(b *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if heading != "" {
		fmt.Fprintf(b, "\n<b>%s</b>\n", esc(heading))
	}
	if body == "" {
		return
	}
	if heading == "" {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "<pre>%s</pre>\n", esc(truncate(body, maxOutputLen)))
}

func esc(s string) string {
	return html.EscapeString(s)
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
