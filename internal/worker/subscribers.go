package worker

import (
	"github.com/spec-kit/alertbridge/internal/service"
)

// StartSubscribers registers the event handlers that run beside the pipeline.
// Either service may be nil when its feature is disabled.
func StartSubscribers(notificationService *service.NotificationService, annotationService *service.AnnotationService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if annotationService != nil {
		annotationService.RegisterHandlers()
	}
}
