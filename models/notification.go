package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types produced by the room engine.
const (
	NotificationPvpInvite = "pvp_invite"
)

// Notification is a persisted, addressed message (room invites). Delivery to
// connected clients happens over the websocket hub; the row stays for the
// target's inbox either way.
type Notification struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string         `gorm:"not null;index" json:"user_id"`
	Type      string         `gorm:"type:varchar(32);not null" json:"type"`
	Message   string         `json:"message"`
	Read      bool           `gorm:"not null;default:false" json:"read"`
	Link      string         `json:"link,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
}
