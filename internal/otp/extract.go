// Package otp extracts passcode fields from fetched mail messages.
package otp

import (
	"regexp"
	"time"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/mail"
)

// The passcode is taken as the first six-digit run anywhere in the body.
// Daraz OTP mails put the code first, so this holds in practice, but any
// earlier six-digit number (an order id, an amount) would be picked instead.
var codePattern = regexp.MustCompile(`\d{6}`)

// Record is one extracted passcode with its surrounding mail fields.
type Record struct {
	MessageID  string
	Account    string
	Code       string
	Sender     string
	Subject    string
	ReceivedAt time.Time
}

// Extract pulls the passcode and display fields out of a message. Returns
// false when the body carries no six-digit run.
func Extract(accountID string, msg mail.Message) (Record, bool) {
	body := msg.Body
	if body == "" {
		body = msg.Snippet
	}
	code := codePattern.FindString(body)
	if code == "" {
		return Record{}, false
	}
	return Record{
		MessageID:  msg.ID,
		Account:    accountID,
		Code:       code,
		Sender:     msg.From,
		Subject:    msg.Subject,
		ReceivedAt: msg.Received,
	}, true
}

// ExtractAll maps Extract over a batch, dropping messages without a code.
func ExtractAll(accountID string, msgs []mail.Message) []Record {
	records := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		if rec, ok := Extract(accountID, msg); ok {
			records = append(records, rec)
		}
	}
	return records
}
