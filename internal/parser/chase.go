package parser

import (
	"regexp"
	"strings"

	"banksync/pkg/models"
)

// ChaseParser handles Chase checking-account alert emails: debit card
// transactions, ATM withdrawals and direct deposits.
type ChaseParser struct {
	matcher
	debitPattern   *regexp.Regexp
	depositPattern *regexp.Regexp
	last4Pattern   *regexp.Regexp
	datePattern    *regexp.Regexp
}

// NewChaseParser creates a Chase checking parser
func NewChaseParser() *ChaseParser {
	return &ChaseParser{
		matcher: matcher{
			fromSubstrings: []string{"@chase.com", "@alerts.chase.com"},
			bodyHints:      []string{"chase"},
		},
		// "Your $45.20 debit card transaction with STARBUCKS was ..."
		// "You made a $60.00 ATM withdrawal at CHASE ATM ..."
		debitPattern: regexp.MustCompile(`(?i)\$([0-9,]+\.[0-9]{2})\s+(?:debit card transaction|ATM withdrawal|transaction)\s+(?:with|at|to)\s+([^\r\n.]+?)(?:\s+was\b|\s+on\b|\.|$)`),
		// "You have a direct deposit of $1,250.00"
		depositPattern: regexp.MustCompile(`(?i)(?:direct deposit|deposit)\s+of\s+\$([0-9,]+\.[0-9]{2})`),
		last4Pattern:   regexp.MustCompile(`(?i)account ending in\s*\(?\.{0,3}(\d{4})\)?`),
		datePattern:    regexp.MustCompile(`(?i)\bon\s+([A-Za-z]+ \d{1,2}, \d{4})`),
	}
}

func (p *ChaseParser) Name() string        { return "chase-checking" }
func (p *ChaseParser) Institution() string { return "chase" }
func (p *ChaseParser) AccountType() string { return "checking" }

// CanParse requires both the sender heuristic and a body pattern
func (p *ChaseParser) CanParse(msg *models.EmailMessage) bool {
	if !p.senderMatches(msg) {
		return false
	}
	return p.debitPattern.MatchString(msg.BodyText) || p.depositPattern.MatchString(msg.BodyText)
}

// Parse extracts the matched transaction. Deposits are positive,
// withdrawals negative.
func (p *ChaseParser) Parse(msg *models.EmailMessage) (*models.ParsedEvent, error) {
	date := msg.Date
	if m := p.datePattern.FindStringSubmatch(msg.BodyText); m != nil {
		date = parseAlertDate(m[1], msg.Date)
	}

	var last4 string
	if m := p.last4Pattern.FindStringSubmatch(msg.BodyText); m != nil {
		last4 = m[1]
	}

	if m := p.depositPattern.FindStringSubmatch(msg.BodyText); m != nil {
		amount, err := ParseAmount(m[1])
		if err != nil {
			return nil, err
		}
		return &models.ParsedEvent{
			Type: models.EventTransaction,
			Transaction: &models.ParsedTransaction{
				Amount:    amount, // deposit: positive
				Date:      date,
				Name:      "Direct deposit",
				CardLast4: last4,
			},
		}, nil
	}

	if m := p.debitPattern.FindStringSubmatch(msg.BodyText); m != nil {
		amount, err := ParseAmount(m[1])
		if err != nil {
			return nil, err
		}
		merchant := strings.TrimSpace(m[2])
		return &models.ParsedEvent{
			Type: models.EventTransaction,
			Transaction: &models.ParsedTransaction{
				Amount:       amount.Neg(), // withdrawal: negative
				Date:         date,
				Name:         merchant,
				MerchantName: merchant,
				CardLast4:    last4,
				Pending:      true, // card alerts fire at authorization time
			},
		}, nil
	}

	return &models.ParsedEvent{Type: models.EventUnknown}, nil
}
