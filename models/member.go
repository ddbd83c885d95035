package models

import "time"

// Member is the read side of a forum account. Accounts are managed by the
// login subsystem; boards only reference them by number.
type Member struct {
	No        uint      `gorm:"primaryKey;column:member_no" json:"no"`
	Name      string    `gorm:"size:64" json:"name,omitempty"`
	Email     string    `gorm:"size:255" json:"-"`
	CreatedAt time.Time `json:"-"`
}
