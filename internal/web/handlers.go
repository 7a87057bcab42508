// Package web exposes the HTTP surface: account status, batch
// authorization, fetch rounds, and the OTP history API.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/config"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/db"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/db/models"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/logging"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/mail"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/otp"
)

type accountStatus struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"` // authorized | pending
}

// AccountsHandler lists the configured accounts with their authorization
// state.
func AccountsHandler(cfg *config.Config, authz *auth.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, accountStatuses(r.Context(), cfg, authz))
	}
}

func accountStatuses(ctx context.Context, cfg *config.Config, authz *auth.Authorizer) []accountStatus {
	statuses := make([]accountStatus, len(cfg.Accounts))
	for i, acct := range cfg.Accounts {
		status := "authorized"
		if _, err := authz.ClientFromStored(ctx, acct); err != nil {
			status = "pending"
		}
		statuses[i] = accountStatus{Email: acct.Email, Name: acct.Name, Status: status}
	}
	return statuses
}

type authorizeResult struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"` // ready | failed
	Error  string `json:"error,omitempty"`
}

// AuthorizeAllHandler runs the batch authorization. The response carries one
// slot per account; a single account's failure never turns into a request
// failure.
func AuthorizeAllHandler(cfg *config.Config, authz *auth.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := logging.RequestID(r.Context())
		log.Printf("[Web] %s Authorizing %d accounts", reqID, len(cfg.Accounts))

		results := authz.AuthorizeAll(r.Context(), cfg.Accounts)
		out := make([]authorizeResult, len(results))
		for i, res := range results {
			out[i] = authorizeResult{Email: res.Account.Email, Name: res.Account.Name, Status: "ready"}
			if res.Err != nil {
				out[i].Status = "failed"
				out[i].Error = res.Err.Error()
			}
		}
		writeJSON(w, out)
	}
}

type fetchResult struct {
	Email   string `json:"email"`
	Fetched int    `json:"fetched"`
	New     int    `json:"new"`
	Error   string `json:"error,omitempty"`
}

// FetchHandler pulls recent OTP mails for every authorized account, extracts
// passcodes, and records them. Accounts without a stored credential are
// skipped, and one account's fetch failure never aborts its siblings.
// mailBaseURL other than "" overrides the mail API root.
func FetchHandler(cfg *config.Config, authz *auth.Authorizer, gdb *gorm.DB, mailBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := logging.RequestID(r.Context())
		out := make([]fetchResult, 0, len(cfg.Accounts))
		for _, acct := range cfg.Accounts {
			res := fetchResult{Email: acct.Email}

			client, err := authz.ClientFromStored(r.Context(), acct)
			if err != nil {
				res.Error = "not authorized"
				out = append(out, res)
				continue
			}

			msgs, err := mail.NewClient(client.HTTP, mailBaseURL).ListOTPMessages(r.Context(), "", 0)
			if err != nil {
				log.Printf("[Web] %s Fetch failed for %s: %v", reqID, acct.Email, err)
				res.Error = err.Error()
				out = append(out, res)
				continue
			}
			res.Fetched = len(msgs)

			records := otp.ExtractAll(acct.Email, msgs)
			added, err := db.SaveRecords(gdb, records)
			if err != nil {
				log.Printf("[Web] %s Record failed for %s: %v", reqID, acct.Email, err)
				res.Error = err.Error()
				out = append(out, res)
				continue
			}
			res.New = added
			log.Printf("[Web] %s Fetched %d messages for %s, %d new", reqID, len(msgs), acct.Email, added)
			out = append(out, res)
		}
		writeJSON(w, out)
	}
}

type otpRow struct {
	MessageID  string `json:"message_id"`
	Account    string `json:"account"`
	Code       string `json:"code"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	ReceivedAt string `json:"received_at"`
}

// OTPsHandler serves recent passcodes, optionally filtered to one account.
func OTPsHandler(gdb *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var err error
		var rows []models.OTPMessage
		if account := r.URL.Query().Get("account"); account != "" {
			rows, err = db.MessagesForAccount(gdb, account, limit)
		} else {
			rows, err = db.RecentMessages(gdb, limit)
		}
		if err != nil {
			log.Printf("[Web] %s OTP history load failed: %v", logging.RequestID(r.Context()), err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}

		out := make([]otpRow, len(rows))
		for i, row := range rows {
			out[i] = otpRow{
				MessageID:  row.ID,
				Account:    row.Account,
				Code:       row.Code,
				Sender:     row.Sender,
				Subject:    row.Subject,
				ReceivedAt: row.ReceivedAt.Format("2006-01-02 15:04:05"),
			}
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
