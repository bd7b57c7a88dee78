package models

import "time"

// User is owned by the authentication service. This module only reads it
// (joins for usernames) and inserts rows from the development seeder.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
