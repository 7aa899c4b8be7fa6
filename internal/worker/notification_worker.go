// Package worker runs the bot's background jobs.
package worker

import (
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
