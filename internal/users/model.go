package users

import "time"

// Account is a registered user identified by email.
type Account struct {
	Email        string    `gorm:"column:email;primaryKey;size:320;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	PasswordHash string    `gorm:"column:password_hash;size:190;not null"`
	Role         string    `gorm:"column:role;size:32;not null;default:'user'"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "user_accounts"
}
