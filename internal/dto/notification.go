package dto

// MarkReadResponse reports how many notifications were flagged as read.
type MarkReadResponse struct {
	NotificationID string `json:"notificationId,omitempty"`
	Marked         int64  `json:"marked"`
}
