package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth/flow"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/config"
)

// ErrNotAuthorized means the account has no stored credential; a consent
// flow is required before it can be used.
var ErrNotAuthorized = errors.New("account not authorized")

// Client is a ready-to-use authorized handle for one account.
type Client struct {
	Account config.Account
	HTTP    *http.Client
}

// Authorizer walks each account through the authorization state machine:
// stored credential, else consent flow via the registry, then persist.
type Authorizer struct {
	cfg     *oauth2.Config
	store   *Store
	reg     *flow.Registry
	present URLPresenter
}

// NewAuthorizer wires the orchestrator to its collaborators. present may be
// nil, in which case consent URLs are only logged.
func NewAuthorizer(cfg *oauth2.Config, store *Store, reg *flow.Registry, present URLPresenter) *Authorizer {
	return &Authorizer{cfg: cfg, store: store, reg: reg, present: present}
}

// Registry exposes the pending-flow table for the callback handler.
func (a *Authorizer) Registry() *flow.Registry {
	return a.reg
}

// ClientFromStored builds a client from the stored credential alone.
// Returns ErrNotAuthorized when no usable record exists; no consent flow is
// started.
func (a *Authorizer) ClientFromStored(ctx context.Context, acct config.Account) (*Client, error) {
	tok, err := a.store.Load(acct.Email)
	if err != nil {
		log.Printf("[OAuth] Token load failed for %s, re-consent required: %v", acct.Email, err)
		return nil, ErrNotAuthorized
	}
	if tok == nil {
		return nil, ErrNotAuthorized
	}
	return a.client(ctx, acct, tok), nil
}

// Authorize returns an authorized client for the account. With a stored
// credential this is purely local. Otherwise it registers a pending flow,
// surfaces the consent URL, and suspends until the provider callback
// completes the flow or the registry times it out.
func (a *Authorizer) Authorize(ctx context.Context, acct config.Account) (*Client, error) {
	if c, err := a.ClientFromStored(ctx, acct); err == nil {
		return c, nil
	}

	state, outcome := a.reg.Register(acct.Email)
	url := a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	log.Printf("[OAuth] Authorize %s (%s) by visiting:\n%s", acct.Email, acct.Name, url)
	if a.present != nil {
		if err := a.present(url); err != nil {
			log.Printf("[OAuth] Could not open browser for %s, use the URL above: %v", acct.Email, err)
		}
	}

	select {
	case out := <-outcome:
		if out.Err != nil {
			return nil, fmt.Errorf("authorize %s: %w", acct.Email, out.Err)
		}
		// The callback exchanged the code; persisting is this side's job.
		// A failed write costs durability, not the current session.
		if err := a.store.Save(acct.Email, out.Token); err != nil {
			log.Printf("[OAuth] Failed to persist token for %s: %v", acct.Email, err)
		}
		return a.client(ctx, acct, out.Token), nil
	case <-ctx.Done():
		if err := a.reg.Fail(state, ctx.Err()); err != nil {
			// The flow already resolved; the callback may have told the
			// user it succeeded, so a token sitting in the channel must
			// not be dropped.
			select {
			case out := <-outcome:
				if out.Err == nil {
					if err := a.store.Save(acct.Email, out.Token); err != nil {
						log.Printf("[OAuth] Failed to persist token for %s: %v", acct.Email, err)
					}
				}
			default:
			}
		} else {
			log.Printf("[OAuth] Authorization for %s canceled: %v", acct.Email, ctx.Err())
		}
		return nil, fmt.Errorf("authorize %s: %w", acct.Email, ctx.Err())
	}
}

// Result is one account's slot in a batch authorization.
type Result struct {
	Account config.Account
	Client  *Client
	Err     error
}

// AuthorizeAll authorizes every account independently and concurrently.
// One account's failure never aborts its siblings; each slot carries either
// a client or that account's own error.
func (a *Authorizer) AuthorizeAll(ctx context.Context, accounts []config.Account) []Result {
	results := make([]Result, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct config.Account) {
			defer wg.Done()
			c, err := a.Authorize(ctx, acct)
			if err != nil {
				log.Printf("[OAuth] Account %s failed: %v", acct.Email, err)
			}
			results[i] = Result{Account: acct, Client: c, Err: err}
		}(i, acct)
	}
	wg.Wait()
	return results
}

// client seeds an HTTP client with the token. Refreshes happen inside the
// token source at use time; a rotated token is written back to the store.
func (a *Authorizer) client(ctx context.Context, acct config.Account, tok *oauth2.Token) *Client {
	src := &persistingSource{
		base:    a.cfg.TokenSource(ctx, tok),
		store:   a.store,
		account: acct.Email,
		last:    tok,
	}
	return &Client{
		Account: acct,
		HTTP:    oauth2.NewClient(ctx, src),
	}
}

// persistingSource wraps a token source so refreshed or rotated tokens make
// it back to durable storage.
type persistingSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	store   *Store
	account string
	last    *oauth2.Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if p.last == nil || tok.AccessToken != p.last.AccessToken || tok.RefreshToken != p.last.RefreshToken {
		if tok.RefreshToken != "" && p.last != nil && tok.RefreshToken != p.last.RefreshToken {
			log.Printf("[OAuth] Rotating refresh token for %s", p.account)
		}
		if err := p.store.Save(p.account, tok); err != nil {
			log.Printf("[OAuth] Failed to persist refreshed token for %s: %v", p.account, err)
		}
		p.last = tok
	}
	return tok, nil
}
