package models

// NotificationTemplate names a plain-text subject/body pair rendered by the
// notification service.
type NotificationTemplate string

const (
	TemplateRecordSubmitted   NotificationTemplate = "record_submitted"
	TemplateRecordResubmitted NotificationTemplate = "record_resubmitted"
	TemplateRecordApproved    NotificationTemplate = "record_approved"
	TemplateRecordRejected    NotificationTemplate = "record_rejected"
	TemplateRecordDeleted     NotificationTemplate = "record_deleted"
)

// Notification is the intent emitted by the workflow after a state change
// has been committed. Delivery happens asynchronously in the dispatcher
// worker; a failed delivery never affects the originating operation.
type Notification struct {
	Recipient string               `json:"recipient"`
	Template  NotificationTemplate `json:"template"`
	Data      map[string]string    `json:"data"`
}
