package web

import (
	"fmt"
	"html"
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/config"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/db"
)

// DashboardHandler renders the account list and recent passcodes.
func DashboardHandler(cfg *config.Config, authz *auth.Authorizer, gdb *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := accountStatuses(r.Context(), cfg, authz)
		rows, err := db.RecentMessages(gdb, 50)
		if err != nil {
			log.Printf("[Web] Dashboard history load failed: %v", err)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Daraz OTP Fetcher</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 900px; margin: 40px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		h1 { font-size: 22px; }
		table { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
		th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #374151; }
		.ok { color: #4ade80; }
		.pending { color: #fbbf24; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; font-size: 16px; }
		.btn { display: inline-block; margin: 0 10px 20px 0; padding: 8px 16px; background: #3b82f6; color: white; border: none; border-radius: 6px; cursor: pointer; }
	</style>
</head>
<body>
	<h1>Daraz OTP Fetcher</h1>
	<button class="btn" onclick="fetch('/api/authorize',{method:'POST'}).then(()=>location.reload())">Authorize accounts</button>
	<button class="btn" onclick="fetch('/api/fetch',{method:'POST'}).then(()=>location.reload())">Fetch OTPs</button>
	<h2>Accounts</h2>
	<table>
	<tr><th>Account</th><th>Name</th><th>Status</th></tr>
`)
		for _, st := range statuses {
			class := "ok"
			if st.Status != "authorized" {
				class = "pending"
			}
			fmt.Fprintf(w, "\t<tr><td>%s</td><td>%s</td><td class=\"%s\">%s</td></tr>\n",
				html.EscapeString(st.Email), html.EscapeString(st.Name), class, st.Status)
		}
		fmt.Fprint(w, `	</table>
	<h2>Recent OTPs</h2>
	<table>
	<tr><th>Code</th><th>Account</th><th>Sender</th><th>Subject</th><th>Received</th></tr>
`)
		for _, row := range rows {
			fmt.Fprintf(w, "\t<tr><td><code>%s</code></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				html.EscapeString(row.Code), html.EscapeString(row.Account),
				html.EscapeString(row.Sender), html.EscapeString(row.Subject),
				row.ReceivedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprint(w, `	</table>
</body>
</html>`)
	}
}
