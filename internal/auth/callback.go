package auth

import (
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth/flow"
)

// Machine-readable error kinds carried in the X-Auth-Error header so the
// failure pages stay distinguishable even when the HTML looks alike.
const (
	errKindProvider     = "provider"
	errKindMissingCode  = "missing_code"
	errKindBadState     = "bad_state"
	errKindUnknownState = "unknown_state"
	errKindExchange     = "exchange"
)

// HandleCallback receives the provider redirect that finishes a consent
// flow started elsewhere. Its only jobs are to recover which pending
// authorization the redirect belongs to, exchange the code, and signal the
// waiting orchestrator; persistence stays on the orchestrator side.
func HandleCallback(cfg *oauth2.Config, reg *flow.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")

		account, decodeErr := flow.DecodeState(state)

		// The provider reports denial via error instead of code. Fail the
		// waiter if we can still tell which flow this was.
		if provErr := q.Get("error"); provErr != "" {
			if decodeErr == nil {
				if err := reg.Fail(state, fmt.Errorf("provider error: %s", provErr)); err == nil {
					log.Printf("[OAuth] Provider rejected consent for %s: %s", account, provErr)
				}
			}
			errorPage(w, errKindProvider, fmt.Sprintf("The provider reported an error: %s.", html.EscapeString(provErr)))
			return
		}

		if decodeErr != nil {
			log.Printf("[OAuth] Callback with undecodable state: %v", decodeErr)
			errorPage(w, errKindBadState, "The callback carried no usable state, so it cannot be matched to an account.")
			return
		}

		code := q.Get("code")
		if code == "" {
			errorPage(w, errKindMissingCode, "The callback carried no authorization code.")
			return
		}

		if _, ok := reg.Lookup(state); !ok {
			log.Printf("[OAuth] Callback for %s matches no pending authorization", account)
			errorPage(w, errKindUnknownState, "No pending authorization matches this callback. It may have expired or already completed.")
			return
		}

		tok, err := cfg.Exchange(r.Context(), code)
		if err != nil {
			log.Printf("[OAuth] Code exchange failed for %s: %v", account, err)
			reg.Fail(state, fmt.Errorf("code exchange: %w", err))
			errorPage(w, errKindExchange, "Exchanging the authorization code failed. Restart the authorization for this account.")
			return
		}

		if err := reg.Complete(state, tok); err != nil {
			// Lost the race against the sweeper or a duplicate callback.
			if errors.Is(err, flow.ErrNoPending) {
				log.Printf("[OAuth] Exchange for %s finished but the flow was already resolved", account)
				errorPage(w, errKindUnknownState, "No pending authorization matches this callback. It may have expired or already completed.")
				return
			}
			errorPage(w, errKindUnknownState, "The authorization could not be completed.")
			return
		}

		log.Printf("[OAuth] Completed authorization for %s", account)
		successPage(w, account)
	}
}

func successPage(w http.ResponseWriter, account string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Authorization Complete</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		.success { color: #4ade80; font-size: 24px; margin-bottom: 10px; }
	</style>
</head>
<body>
	<div class="success">&#9989; Authorization Complete</div>
	<p>Account <strong>%s</strong> is now connected.</p>
	<p>You can close this tab and return to the dashboard.</p>
</body>
</html>`, html.EscapeString(account))
}

func errorPage(w http.ResponseWriter, kind, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Auth-Error", kind)
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Authorization Failed</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		.error { color: #f87171; font-size: 24px; margin-bottom: 10px; }
	</style>
</head>
<body>
	<div class="error">&#10060; Authorization Failed</div>
	<p>%s</p>
</body>
</html>`, detail)
}
