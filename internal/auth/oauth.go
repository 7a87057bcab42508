// Package auth drives the per-account OAuth lifecycle: durable token
// storage, the consent-flow orchestration, and the provider callback.
package auth

import (
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes is the fixed read-only mail scope. Nothing here writes to a mailbox.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
}

// OAuthConfig builds the oauth2 config for the given client identity and
// callback target.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}
