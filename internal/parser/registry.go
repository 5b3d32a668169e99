package parser

import (
	"errors"
	"strings"

	"banksync/pkg/models"
)

// ErrNoMatch is returned when no registered parser accepts a message.
// Treated as retryable by the consumer: the format may be registered later
// or a parser race may resolve.
var ErrNoMatch = errors.New("no parser matched message")

// Parser converts one institution's alert emails into financial events
type Parser interface {
	Name() string
	Institution() string
	AccountType() string

	// CanParse is a pure content test. Both gates must hold: the sender
	// heuristic (from-address substring, or institution name in the body
	// for forwarded mail) and a body pattern match.
	CanParse(msg *models.EmailMessage) bool

	Parse(msg *models.EmailMessage) (*models.ParsedEvent, error)
}

type registryKey struct {
	institution string
	accountType string
}

// Registry holds parsers in registration order. Dispatch walks the relevant
// chain in that order and returns the first match's result, so registration
// order is the priority: when two institutions' patterns could both match a
// forwarded email, the earlier-registered parser wins.
type Registry struct {
	parsers []Parser
	byKey   map[registryKey][]Parser
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[registryKey][]Parser)}
}

// Register appends a parser; later registrations have lower priority
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
	key := registryKey{institution: p.Institution(), accountType: p.AccountType()}
	r.byKey[key] = append(r.byKey[key], p)
}

// Parsers returns the full chain in registration order
func (r *Registry) Parsers() []Parser {
	return r.parsers
}

// For returns the ordered chain for one (institution, account type) pair
func (r *Registry) For(institution, accountType string) []Parser {
	return r.byKey[registryKey{institution: institution, accountType: accountType}]
}

// Dispatch runs the first matching parser for the source's institution and
// account type. When nothing is registered for the pair, the full chain is
// walked instead, so an institution retag does not silently drop mail.
func (r *Registry) Dispatch(institution, accountType string, msg *models.EmailMessage) (*models.ParsedEvent, error) {
	chain := r.For(institution, accountType)
	if len(chain) == 0 {
		chain = r.parsers
	}
	for _, p := range chain {
		if p.CanParse(msg) {
			return p.Parse(msg)
		}
	}
	return nil, ErrNoMatch
}

// DefaultRegistry builds the canonical parser chain. The order here is a
// first-class configuration artifact covered by tests; do not reorder
// without checking the overlap cases.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewChaseParser())
	r.Register(NewBankOfAmericaParser())
	r.Register(NewAmexParser())
	return r
}

// matcher implements the shared sender heuristic: accept when the
// from-address contains a known substring, or, for forwarded mail where the
// sender is useless, when the institution name appears in the body.
type matcher struct {
	fromSubstrings []string
	bodyHints      []string
}

func (m matcher) senderMatches(msg *models.EmailMessage) bool {
	from := strings.ToLower(msg.From)
	for _, s := range m.fromSubstrings {
		if strings.Contains(from, s) {
			return true
		}
	}
	body := strings.ToLower(msg.BodyText)
	for _, h := range m.bodyHints {
		if strings.Contains(body, h) {
			return true
		}
	}
	return false
}
