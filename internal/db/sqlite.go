// Package db owns the SQLite history of extracted passcodes.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/db/models"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/otp"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := gdb.AutoMigrate(&models.OTPMessage{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return gdb, nil
}

// SaveRecords inserts extracted passcodes, silently skipping message ids
// already recorded. Returns how many rows were actually new.
func SaveRecords(gdb *gorm.DB, records []otp.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([]models.OTPMessage, len(records))
	for i, rec := range records {
		rows[i] = models.OTPMessage{
			ID:         rec.MessageID,
			Account:    rec.Account,
			Code:       rec.Code,
			Sender:     rec.Sender,
			Subject:    rec.Subject,
			ReceivedAt: rec.ReceivedAt,
		}
	}
	res := gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("save otp records: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// RecentMessages returns the newest rows across all accounts.
func RecentMessages(gdb *gorm.DB, limit int) ([]models.OTPMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OTPMessage
	err := gdb.Order("received_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load recent otps: %w", err)
	}
	return rows, nil
}

// MessagesForAccount returns the newest rows for one account.
func MessagesForAccount(gdb *gorm.DB, account string, limit int) ([]models.OTPMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OTPMessage
	err := gdb.Where("account = ?", account).Order("received_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load otps for %s: %w", account, err)
	}
	return rows, nil
}
