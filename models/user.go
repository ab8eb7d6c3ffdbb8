package models

import "time"

// User is the local balance holder. Identity and sessions live in the auth
// service; this service only reads the gateway-provided user id and moves the
// balance column under its own transactions.
type User struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string    `gorm:"index" json:"username"`
	Balance   float64   `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
