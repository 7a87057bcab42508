package models

import "time"

// OTPMessage is one extracted passcode, keyed by the provider's message id
// so re-fetching the same mailbox never duplicates rows.
type OTPMessage struct {
	ID         string `gorm:"primaryKey"` // provider message id
	Account    string `gorm:"index"`
	Code       string
	Sender     string
	Subject    string
	ReceivedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}
