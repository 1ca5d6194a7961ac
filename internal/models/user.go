// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// UserRole distinguishes students from administrators.
type UserRole string

const (
	// UserRoleStudent is the default role for signed up users.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is reserved for moderators.
	UserRoleAdmin UserRole = "admin"
)

// User is a student account. Swap requests snapshot its name and email.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(120);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Role      UserRole  `gorm:"type:varchar(20);not null;default:'student'" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
