package alerts

import (
	"context"
	"strings"
	"time"

	"github.com/steveyegge/stepview/internal/types"
)

// NotificationPrefix namespaces notification ids
const NotificationPrefix = "stepview:"

// SanitizeNotificationID replaces every character outside ASCII letters,
// digits and "-_:." with "-" and truncates to 180 characters
func SanitizeNotificationID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if b.Len() == types.NotificationIDMax {
			break
		}
		if allowedIDRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func allowedIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == ':', r == '.':
		return true
	}
	return false
}

// NotificationFor builds the notification shown for a new alert
func NotificationFor(item types.AlertItem) Notification {
	body := item.Summary
	if item.Status != "" {
		body = "[" + item.Status + "] " + body
	}
	return Notification{
		ID:    SanitizeNotificationID(NotificationPrefix + item.ID),
		Title: "Jira update: " + item.Key,
		Body:  truncateRunes(body, types.NotificationBodyMax),
		Link:  item.Link,
	}
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ResolveNotification maps a clicked notification back to the link of its
// alert. Both the sanitized id and the raw marker are accepted.
func (e *Engine) ResolveNotification(ctx context.Context, notificationID string) (string, bool) {
	if !strings.HasPrefix(notificationID, NotificationPrefix) {
		return "", false
	}
	marker := strings.TrimPrefix(notificationID, NotificationPrefix)

	items, err := e.store.ListAlerts(ctx, 0)
	if err != nil {
		e.logger.Warn("failed to load inbox", "error", err)
		return "", false
	}
	for _, item := range items {
		if SanitizeNotificationID(NotificationPrefix+item.ID) == notificationID || item.ID == marker {
			return item.Link, item.Link != ""
		}
	}
	return "", false
}

// FormatUpdated renders a tracker timestamp for display in local time.
// Unparseable input is returned as is.
func FormatUpdated(iso string) string {
	t := types.ParseTimestamp(iso)
	if t.IsZero() {
		return iso
	}
	return t.Local().Format(time.DateTime)
}
