package parser

import (
	"regexp"
	"strings"

	"banksync/pkg/models"
)

// AmexParser handles American Express card alerts: charge approvals and
// payment confirmations. Payments are recognized but unhandled: they come
// back as EventPayment and the consumer dead-letters them without retrying.
type AmexParser struct {
	matcher
	chargePattern  *regexp.Regexp
	paymentPattern *regexp.Regexp
	last4Pattern   *regexp.Regexp
	datePattern    *regexp.Regexp
}

// NewAmexParser creates an American Express credit parser
func NewAmexParser() *AmexParser {
	return &AmexParser{
		matcher: matcher{
			fromSubstrings: []string{"@americanexpress.com", "@welcome.americanexpress.com"},
			bodyHints:      []string{"american express"},
		},
		// "A charge of $250.00 at DELTA AIR LINES was approved"
		chargePattern: regexp.MustCompile(`(?i)charge of \$([0-9,]+\.[0-9]{2})\s+(?:at|with)\s+(.+?)\s+(?:was|has been)\s+approved`),
		// "Your payment of $500.00 has been received"
		paymentPattern: regexp.MustCompile(`(?i)payment of \$([0-9,]+\.[0-9]{2})\s+(?:was|has been)\s+received`),
		// Amex card numbers end in 5 digits
		last4Pattern: regexp.MustCompile(`(?i)card ending in\s*[\-*]*(\d{4,5})`),
		datePattern:  regexp.MustCompile(`(?i)\bon\s+([A-Za-z]+ \d{1,2}, \d{4})`),
	}
}

func (p *AmexParser) Name() string        { return "amex-credit" }
func (p *AmexParser) Institution() string { return "amex" }
func (p *AmexParser) AccountType() string { return "credit" }

// CanParse requires both the sender heuristic and a body pattern
func (p *AmexParser) CanParse(msg *models.EmailMessage) bool {
	if !p.senderMatches(msg) {
		return false
	}
	return p.chargePattern.MatchString(msg.BodyText) || p.paymentPattern.MatchString(msg.BodyText)
}

// Parse extracts a charge transaction, or flags a payment as unhandled
func (p *AmexParser) Parse(msg *models.EmailMessage) (*models.ParsedEvent, error) {
	var last4 string
	if m := p.last4Pattern.FindStringSubmatch(msg.BodyText); m != nil {
		last4 = m[1]
	}

	date := msg.Date
	if m := p.datePattern.FindStringSubmatch(msg.BodyText); m != nil {
		date = parseAlertDate(m[1], msg.Date)
	}

	if m := p.chargePattern.FindStringSubmatch(msg.BodyText); m != nil {
		amount, err := ParseAmount(m[1])
		if err != nil {
			return nil, err
		}
		merchant := strings.TrimSpace(m[2])
		return &models.ParsedEvent{
			Type: models.EventTransaction,
			Transaction: &models.ParsedTransaction{
				Amount:       amount.Neg(), // charge: withdrawal
				Date:         date,
				Name:         merchant,
				MerchantName: merchant,
				CardLast4:    last4,
				Pending:      true,
			},
		}, nil
	}

	if p.paymentPattern.MatchString(msg.BodyText) {
		return &models.ParsedEvent{Type: models.EventPayment}, nil
	}

	return &models.ParsedEvent{Type: models.EventUnknown}, nil
}
