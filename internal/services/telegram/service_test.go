package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return reply(http.StatusOK, `{"ok":true}`), nil
}

func reply(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// botAPI records what was posted to sendMessage.
type botAPI struct {
	req  *http.Request
	body sendMessageRequest
}

func (a *botAPI) client() *mockHTTPClient {
	return &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			a.req = req
			raw, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(raw, &a.body)
			return reply(http.StatusOK, `{"ok":true}`), nil
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.TelegramConfig {
	return models.TelegramConfig{
		BotToken: "123456:ABC-DEF",
		ChatID:   "-100123456789",
	}
}

func ensureReport() models.TelegramMessage {
	return models.TelegramMessage{
		Success:   true,
		RunID:     "0b5e8f52-7c1a-4c55-9a3e-8d1f0e6b2a11",
		Action:    "ensure",
		Target:    "web01",
		Host:      "192.168.1.100",
		StartTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Output:    "apache2 is now running and accessible",
	}
}

func TestSendNotification_PostsReport(t *testing.T) {
	api := &botAPI{}
	svc := NewWithClient(testLogger(), api.client(), "https://api.telegram.org")

	result, err := svc.SendNotification(context.Background(), testConfig(), ensureReport())

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)

	require.NotNil(t, api.req)
	assert.Equal(t, http.MethodPost, api.req.Method)
	assert.Equal(t, "https://api.telegram.org/bot123456:ABC-DEF/sendMessage", api.req.URL.String())
	assert.Equal(t, "application/json", api.req.Header.Get("Content-Type"))

	assert.Equal(t, "-100123456789", api.body.ChatID)
	assert.Equal(t, "HTML", api.body.ParseMode)
	assert.True(t, api.body.DisableWebPagePreview)
	assert.Equal(t, renderReport(ensureReport()), api.body.Text)
}

func TestSendNotification_DeliveryErrors(t *testing.T) {
	tests := []struct {
		name    string
		do      func(req *http.Request) (*http.Response, error)
		wantErr string
	}{
		{
			name:    "transport error",
			do:      func(*http.Request) (*http.Response, error) { return nil, errors.New("network error") },
			wantErr: "failed to send request: network error",
		},
		{
			name: "API rejection with description",
			do: func(*http.Request) (*http.Response, error) {
				return reply(http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`), nil
			},
			wantErr: "status 400: Bad Request: chat not found",
		},
		{
			name: "API rejection without body",
			do: func(*http.Request) (*http.Response, error) {
				return reply(http.StatusBadGateway, "<html>bad gateway</html>"), nil
			},
			wantErr: "telegram API returned status 502",
		},
		{
			name:    "context cancelled",
			do:      func(*http.Request) (*http.Response, error) { return nil, context.Canceled },
			wantErr: "context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewWithClient(testLogger(), &mockHTTPClient{doFunc: tt.do}, "https://api.telegram.org")

			result, err := svc.SendNotification(context.Background(), testConfig(), ensureReport())

			require.NoError(t, err)
			assert.False(t, result.MessageSent)
			require.Error(t, result.Error)
			assert.Contains(t, result.Error.Error(), tt.wantErr)
		})
	}
}

func TestRenderReport_Success(t *testing.T) {
	msg := ensureReport()
	msg.Action = "exec"
	msg.Output = "Filesystem  Size  Used\n/dev/sda1   50G   <20G\n"

	text := renderReport(msg)

	lines := strings.Split(text, "\n")
	assert.Equal(t, "✅ <b>exec on web01 succeeded</b>", lines[0])
	assert.Equal(t, "🖥 192.168.1.100 · ⏱ 1.5s", lines[1])
	assert.Equal(t, "🔖 <code>0b5e8f52-7c1a-4c55-9a3e-8d1f0e6b2a11</code> · started 2024-01-15 10:30:00", lines[2])
	assert.Contains(t, text, "<pre>Filesystem  Size  Used\n/dev/sda1   50G   &lt;20G</pre>")
	assert.NotContains(t, text, "Failed at")
}

func TestRenderReport_HostOmittedWhenSameAsTarget(t *testing.T) {
	msg := ensureReport()
	msg.Target = "192.168.1.100"
	msg.RunID = ""

	lines := strings.Split(renderReport(msg), "\n")

	assert.Equal(t, "⏱ 1.5s", lines[1])
	assert.Equal(t, "started 2024-01-15 10:30:00", lines[2])
}

func TestRenderReport_EmptyOutputOmitted(t *testing.T) {
	msg := ensureReport()
	msg.Action = "stop"
	msg.Output = "\n"

	assert.NotContains(t, renderReport(msg), "<pre>")
}

func TestRenderReport_Failure(t *testing.T) {
	msg := ensureReport()
	msg.Success = false
	msg.Output = ""
	msg.FailedStep = "wol"
	msg.ErrorMessage = "WOL failed: timeout waiting for target at 192.168.1.100:22 after 30 attempts"

	text := renderReport(msg)

	assert.True(t, strings.HasPrefix(text, "❌ <b>ensure on web01 failed</b>\n"))
	assert.Contains(t, text, "<b>Failed at wol</b>\n<pre>WOL failed: timeout waiting")
}

func TestRenderReport_FailureWithoutStep(t *testing.T) {
	msg := ensureReport()
	msg.Success = false
	msg.ErrorMessage = "Failed to start apache2: Job for apache2.service failed"

	assert.Contains(t, renderReport(msg), "<b>Failed at ensure</b>")
}

func TestRenderReport_TruncatesLongOutput(t *testing.T) {
	msg := ensureReport()
	msg.Output = strings.Repeat("x", maxOutputLen+500)

	text := renderReport(msg)

	assert.Contains(t, text, strings.Repeat("x", maxOutputLen)+"…</pre>")
	assert.NotContains(t, text, strings.Repeat("x", maxOutputLen+1))
}

func TestEsc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"<script>", "&lt;script&gt;"},
		{"a & b", "a &amp; b"},
		{"<>&", "&lt;&gt;&amp;"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, esc(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long", 3, "too…"},
		{"ümlaut", 2, "üm…"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, truncate(tt.input, tt.n))
		})
	}
}
