package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// Notifier pushes operator escalations to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyAdmin posts the escalation as a Markdown message.
func (n *Notifier) NotifyAdmin(ctx context.Context, notification domain.AdminNotification) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatMessage(notification))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatMessage(n domain.AdminNotification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*[%s]* project %q needs attention\n", strings.ToUpper(string(n.Severity)), n.ProjectName)
	fmt.Fprintf(&b, "%s\n", n.Message)
	if n.Error != "" {
		fmt.Fprintf(&b, "last error: `%s`\n", n.Error)
	}
	fmt.Fprintf(&b, "project: %s  user: %s", n.ProjectID, n.UserID)
	return b.String()
}
