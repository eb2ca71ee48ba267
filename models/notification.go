package models

import "time"

// NotificationType classifies in-app notifications
type NotificationType string

// Notification types
const (
	NotificationRescueNew       NotificationType = "rescue_new"
	NotificationRescueEscalated NotificationType = "rescue_escalated"
	NotificationRescueAccepted  NotificationType = "rescue_accepted"
	NotificationRescueUpdated   NotificationType = "rescue_updated"
	NotificationRescueCompleted NotificationType = "rescue_completed"
	NotificationWalletCredit    NotificationType = "wallet_credit"
	NotificationWalletRefund    NotificationType = "wallet_refund"
	NotificationApproval        NotificationType = "approval_granted"
)

// Notification holds the structure for the notifications collection in mongo
type Notification struct {
	ID         string           `json:"_id" bson:"_id"`
	Recipient  string           `json:"recipient" bson:"recipient"`
	Title      string           `json:"title" bson:"title"`
	Message    string           `json:"message" bson:"message"`
	Type       NotificationType `json:"type" bson:"type"`
	Read       bool             `json:"isRead" bson:"isRead"`
	RescueCase *string          `json:"rescueRequest" bson:"rescueRequest"`
	CreatedAt  time.Time        `json:"createdAt" bson:"createdAt"`
}
