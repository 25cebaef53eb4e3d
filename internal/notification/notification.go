// Package notification sends desktop notifications when a long remote
// operation finishes. It uses the beeep library on macOS, Linux and Windows.
package notification

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/zhubert/weft/internal/logger"
)

// AppName titles every notification.
const AppName = "weft"

var notifier = beeep.Notify

// SetNotifier replaces the function that displays notifications.
func SetNotifier(f func(title, message string, icon any) error) {
	notifier = f
}

// ResetNotifier restores the beeep notifier.
func ResetNotifier() {
	notifier = beeep.Notify
}

// Send displays a notification. An empty icon lets beeep pick the platform
// default.
func Send(title, message string) error {
	log := logger.ComponentLogger("Notification")
	log.Debug("sending notification", "title", title, "message", message)
	err := notifier(title, message, "")
	if err != nil {
		log.Warn("failed to send notification", "error", err)
	}
	return err
}

// RemoteOperationFinished reports the outcome of a push or fetch.
// failure is empty when the operation succeeded.
func RemoteOperationFinished(operation, workspace, failure string) error {
	if failure != "" {
		return Send(AppName, fmt.Sprintf("%s failed in %s: %s", operation, workspace, failure))
	}
	return Send(AppName, fmt.Sprintf("%s finished in %s", operation, workspace))
}
