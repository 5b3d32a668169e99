package parser

import (
	"regexp"
	"strings"

	"banksync/pkg/models"
)

// BankOfAmericaParser handles Bank of America credit card alerts. BofA uses
// labeled fields ("Amount: ...", "Where: ..."), so extraction works off
// those lines rather than one sentence-shaped pattern.
type BankOfAmericaParser struct {
	matcher
	amountPattern   *regexp.Regexp
	merchantPattern *regexp.Regexp
	datePattern     *regexp.Regexp
	availPattern    *regexp.Regexp
	last4Pattern    *regexp.Regexp
}

// NewBankOfAmericaParser creates a Bank of America credit card parser
func NewBankOfAmericaParser() *BankOfAmericaParser {
	return &BankOfAmericaParser{
		matcher: matcher{
			fromSubstrings: []string{"@bankofamerica.com", "@ealerts.bankofamerica.com"},
			bodyHints:      []string{"bank of america"},
		},
		amountPattern:   regexp.MustCompile(`(?i)^\s*Amount:\s*\$([0-9,]+\.[0-9]{2})`),
		merchantPattern: regexp.MustCompile(`(?i)^\s*Where:\s*(.+)$`),
		datePattern:     regexp.MustCompile(`(?i)^\s*Date:\s*(.+)$`),
		availPattern:    regexp.MustCompile(`(?i)available credit(?:\s+is|:)\s*\$([0-9,]+\.[0-9]{2})`),
		last4Pattern:    regexp.MustCompile(`(?i)(?:card|account) ending in\s*(\d{4})`),
	}
}

func (p *BankOfAmericaParser) Name() string        { return "bofa-credit" }
func (p *BankOfAmericaParser) Institution() string { return "bofa" }
func (p *BankOfAmericaParser) AccountType() string { return "credit" }

// CanParse requires both the sender heuristic and a body pattern
func (p *BankOfAmericaParser) CanParse(msg *models.EmailMessage) bool {
	if !p.senderMatches(msg) {
		return false
	}
	return p.findLine(msg.BodyText, p.amountPattern) != "" || p.availPattern.MatchString(msg.BodyText)
}

// findLine runs a line-anchored pattern over the body and returns the first
// capture group
func (p *BankOfAmericaParser) findLine(body string, re *regexp.Regexp) string {
	for _, line := range strings.Split(body, "\n") {
		if m := re.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// Parse extracts a card transaction or an available-credit update
func (p *BankOfAmericaParser) Parse(msg *models.EmailMessage) (*models.ParsedEvent, error) {
	var last4 string
	if m := p.last4Pattern.FindStringSubmatch(msg.BodyText); m != nil {
		last4 = m[1]
	}

	if raw := p.findLine(msg.BodyText, p.amountPattern); raw != "" {
		amount, err := ParseAmount(raw)
		if err != nil {
			return nil, err
		}
		merchant := p.findLine(msg.BodyText, p.merchantPattern)
		date := parseAlertDate(p.findLine(msg.BodyText, p.datePattern), msg.Date)
		return &models.ParsedEvent{
			Type: models.EventTransaction,
			Transaction: &models.ParsedTransaction{
				Amount:       amount.Neg(), // card purchase: withdrawal
				Date:         date,
				Name:         merchant,
				MerchantName: merchant,
				CardLast4:    last4,
				Pending:      true,
			},
		}, nil
	}

	if m := p.availPattern.FindStringSubmatch(msg.BodyText); m != nil {
		avail, err := ParseAmount(m[1])
		if err != nil {
			return nil, err
		}
		return &models.ParsedEvent{
			Type: models.EventCreditUpdate,
			CreditUpdate: &models.ParsedCreditUpdate{
				AvailableCredit: avail,
				CardLast4:       last4,
				Date:            msg.Date,
			},
		}, nil
	}

	return &models.ParsedEvent{Type: models.EventUnknown}, nil
}
