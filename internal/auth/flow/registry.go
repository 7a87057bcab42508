// Package flow correlates in-flight consent flows with the accounts that
// started them. An authorization begins in one request context and finishes
// in another (the provider redirect), so the two halves meet here.
package flow

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// DefaultTTL is how long a consent flow may stay unanswered.
	DefaultTTL = 10 * time.Minute
	// DefaultSweepInterval is how often abandoned flows are reaped.
	DefaultSweepInterval = time.Minute
)

var (
	// ErrNoPending means the state token matches no in-flight flow: it
	// expired, already completed, or was never issued.
	ErrNoPending = errors.New("no matching pending authorization")
	// ErrTimeout means the flow was abandoned past the TTL.
	ErrTimeout = errors.New("authorization timed out")
	// ErrSuperseded means a newer flow for the same account replaced this one.
	ErrSuperseded = errors.New("authorization superseded by a newer attempt")
)

// Outcome resolves one pending flow: a token on success, an error otherwise.
type Outcome struct {
	Token *oauth2.Token
	Err   error
}

// statePayload is what the opaque state parameter carries. It round-trips
// through the provider verbatim; the nonce keeps it unguessable.
type statePayload struct {
	Account string `json:"account"`
	Nonce   string `json:"nonce"`
}

// EncodeState packs an account identifier and a fresh nonce into the opaque
// state string threaded through the provider.
func EncodeState(accountID string) string {
	raw, _ := json.Marshal(statePayload{Account: accountID, Nonce: uuid.New().String()})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState recovers the originating account identifier from a state
// string. The state is a correlation handle, not a credential.
func DecodeState(state string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	var p statePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	if p.Account == "" {
		return "", errors.New("decode state: empty account")
	}
	return p.Account, nil
}

type pending struct {
	account string
	created time.Time
	ch      chan Outcome
}

// Registry is the shared table of in-flight authorizations. The orchestrator
// registers, the callback handler completes, and the sweeper expires; all
// three paths serialize on the mutex, and whichever resolves an entry first
// wins. Later resolutions see ErrNoPending.
type Registry struct {
	mu        sync.Mutex
	byState   map[string]*pending
	byAccount map[string]string // account id -> state
	ttl       time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRegistry creates an empty registry. A zero ttl means DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		byState:   make(map[string]*pending),
		byAccount: make(map[string]string),
		ttl:       ttl,
		stop:      make(chan struct{}),
	}
}

// Register opens a fresh flow for the account and returns its state token
// plus the channel the eventual outcome arrives on. If a flow is already
// pending for the same account it is superseded: its waiter is failed with
// ErrSuperseded and the new flow takes its place.
func (r *Registry) Register(accountID string) (string, <-chan Outcome) {
	state := EncodeState(accountID)
	entry := &pending{
		account: accountID,
		created: time.Now(),
		ch:      make(chan Outcome, 1),
	}

	r.mu.Lock()
	if old, ok := r.byAccount[accountID]; ok {
		r.resolveLocked(old, Outcome{Err: ErrSuperseded})
		log.Printf("[OAuth] Superseded pending authorization for %s", accountID)
	}
	r.byState[state] = entry
	r.byAccount[accountID] = state
	r.mu.Unlock()

	return state, entry.ch
}

// Lookup reports the account behind a state token, if the flow is still
// pending.
func (r *Registry) Lookup(state string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byState[state]
	if !ok {
		return "", false
	}
	return entry.account, true
}

// Complete resolves the flow behind the state token with a freshly exchanged
// token. Returns ErrNoPending when the flow already resolved or never
// existed; the registry is left untouched in that case.
func (r *Registry) Complete(state string, tok *oauth2.Token) error {
	return r.resolve(state, Outcome{Token: tok})
}

// Fail resolves the flow behind the state token with an error.
func (r *Registry) Fail(state string, err error) error {
	return r.resolve(state, Outcome{Err: err})
}

func (r *Registry) resolve(state string, out Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byState[state]; !ok {
		return ErrNoPending
	}
	r.resolveLocked(state, out)
	return nil
}

// resolveLocked removes the entry and delivers the outcome. Caller holds the
// mutex. The channel is buffered and each entry is resolved exactly once, so
// the send never blocks.
func (r *Registry) resolveLocked(state string, out Outcome) {
	entry := r.byState[state]
	delete(r.byState, state)
	if r.byAccount[entry.account] == state {
		delete(r.byAccount, entry.account)
	}
	entry.ch <- out
}

// Pending reports how many flows are currently in flight.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byState)
}

// StartSweeper reaps abandoned flows on a fixed interval until Stop is
// called. A zero interval means DefaultSweepInterval.
func (r *Registry) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep(time.Now())
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// sweep fails every entry older than the TTL with ErrTimeout.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for state, entry := range r.byState {
		if now.Sub(entry.created) > r.ttl {
			log.Printf("[OAuth] Expiring abandoned authorization for %s after %v", entry.account, r.ttl)
			r.resolveLocked(state, Outcome{Err: ErrTimeout})
		}
	}
}
