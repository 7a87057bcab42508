package auth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// URLPresenter surfaces a consent URL to the user. Opening a browser is a
// convenience; the orchestrator logs the URL regardless, so a presenter
// failure never fails the flow.
type URLPresenter func(url string) error

// OpenBrowser launches the platform's default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}
