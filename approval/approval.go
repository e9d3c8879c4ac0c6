// Package approval implements the approval gate: for modules whose
// annotations require human sign-off, the executor asks a configured
// Handler before proceeding.
package approval

import (
	"time"

	"github.com/artpar/apcore/adapters/clock"
	"github.com/artpar/apcore/adapters/hasher"
	"github.com/artpar/apcore/apcerrors"
	"github.com/artpar/apcore/execctx"
)

// Clock abstracts time.Now for TTL expiry so tests can control elapsed
// time deterministically.
type Clock interface {
	Now() time.Time
}

// Status is the result of an approval decision.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
	StatusPending  Status = "pending"
)

// Request carries everything a Handler needs to render a decision.
type Request struct {
	ModuleID    string
	Inputs      map[string]any
	Annotations map[string]any
	Description string
	Tags        []string
	Context     *execctx.Context
}

// Decision is a Handler's verdict.
type Decision struct {
	Status     Status
	ApprovalID string
}

// Handler is the pluggable approval backend (Slack bot, web UI, CLI
// prompt, auto-approve for tests, …).
type Handler interface {
	RequestApproval(req Request) (Decision, error)
	CheckApproval(token string) (Decision, error)
}

// AuditLogger receives one line per approval decision. Kept separate
// from the structured logging package so approval can be wired with or
// without the rest of the observability stack.
type AuditLogger func(moduleID, caller string, decision Decision)

// Gate evaluates the approval step of the executor pipeline (§4.7 step
// 6): pop the approval token from inputs if present and check it,
// otherwise request a fresh approval.
type Gate struct {
	Handler Handler
	Audit   AuditLogger
	OnSpan  func(name string, attrs map[string]any)
}

// NewGate builds a Gate. Audit and OnSpan may be nil.
func NewGate(h Handler, audit AuditLogger, onSpan func(string, map[string]any)) *Gate {
	return &Gate{Handler: h, Audit: audit, OnSpan: onSpan}
}

const tokenKey = "_approval_token"

// Evaluate runs the gate. inputs is mutated in place to remove the
// approval token, matching the spec's "pop" semantics.
func (g *Gate) Evaluate(moduleID string, inputs map[string]any, annotations map[string]any, description string, tags []string, ctx *execctx.Context) error {
	var decision Decision
	var err error

	if token, ok := inputs[tokenKey]; ok {
		delete(inputs, tokenKey)
		tokenStr, _ := token.(string)
		decision, err = g.Handler.CheckApproval(tokenStr)
	} else {
		decision, err = g.Handler.RequestApproval(Request{
			ModuleID:    moduleID,
			Inputs:      inputs,
			Annotations: annotations,
			Description: description,
			Tags:        tags,
			Context:     ctx,
		})
	}
	if err != nil {
		return apcerrors.ApprovalDenied(moduleID)
	}

	caller := ctx.CallerOrExternal()
	if g.Audit != nil {
		g.Audit(moduleID, caller, decision)
	}
	if g.OnSpan != nil {
		g.OnSpan("approval_decision", map[string]any{
			"module_id":   moduleID,
			"caller":      caller,
			"status":      string(decision.Status),
			"approval_id": decision.ApprovalID,
		})
	}

	switch decision.Status {
	case StatusApproved:
		return nil
	case StatusTimeout:
		return apcerrors.ApprovalTimeout(moduleID)
	case StatusPending:
		return apcerrors.ApprovalPending(moduleID, decision.ApprovalID)
	default:
		return apcerrors.ApprovalDenied(moduleID)
	}
}

// TokenStore is a minimal in-memory approval-token backend: tokens are
// hashed at rest via a pluggable hasher.Hasher so a leaked store
// snapshot doesn't hand out live tokens.
type TokenStore struct {
	hasher       hasher.Hasher
	clock        Clock
	byApprovalID map[string]tokenEntry
}

type tokenEntry struct {
	hash      []byte
	status    Status
	expiresAt time.Time
}

// NewTokenStore builds an empty in-memory token store backed by bcrypt
// and the real wall clock.
func NewTokenStore() *TokenStore {
	return NewTokenStoreWithDeps(hasher.NewBcrypt(0), clock.Real{})
}

// NewTokenStoreWithDeps builds a token store using h for hashing and c
// for TTL expiry, useful for tests that want hasher.Fake and a
// clock.Fake to avoid bcrypt's cost and wall-clock sleeps.
func NewTokenStoreWithDeps(h hasher.Hasher, c Clock) *TokenStore {
	return &TokenStore{hasher: h, clock: c, byApprovalID: make(map[string]tokenEntry)}
}

// Issue records a pending approval under approvalID that expires after
// ttl. Only the hash of token is stored; the caller keeps the plain token
// to hand back to the requester.
func (s *TokenStore) Issue(approvalID, token string, ttl time.Duration) error {
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return err
	}
	s.byApprovalID[approvalID] = tokenEntry{hash: hash, status: StatusPending, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Resolve marks approvalID as approved or rejected.
func (s *TokenStore) Resolve(approvalID string, status Status) {
	entry, ok := s.byApprovalID[approvalID]
	if !ok {
		return
	}
	entry.status = status
	s.byApprovalID[approvalID] = entry
}

// Verify checks token against approvalID's stored hash and returns the
// current status, or StatusTimeout if the entry expired.
func (s *TokenStore) Verify(approvalID, token string) (Status, bool) {
	entry, ok := s.byApprovalID[approvalID]
	if !ok {
		return "", false
	}
	if s.clock.Now().After(entry.expiresAt) {
		return StatusTimeout, true
	}
	if !s.hasher.Compare(entry.hash, token) {
		return "", false
	}
	return entry.status, true
}
