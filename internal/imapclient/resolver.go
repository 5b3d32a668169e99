package imapclient

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// IMAP endpoints for common providers, so linking a mailbox does not
// require the user to know their server
var knownServers = map[string]string{
	"gmail.com":      "imap.gmail.com",
	"googlemail.com": "imap.gmail.com",
	"outlook.com":    "outlook.office365.com",
	"hotmail.com":    "outlook.office365.com",
	"live.com":       "outlook.office365.com",
	"yahoo.com":      "imap.mail.yahoo.com",
	"icloud.com":     "imap.mail.me.com",
	"me.com":         "imap.mail.me.com",
	"aol.com":        "imap.aol.com",
	"fastmail.com":   "imap.fastmail.com",
	"zoho.com":       "imap.zoho.com",
	"gmx.com":        "imap.gmx.com",
	"yandex.com":     "imap.yandex.com",
	"mail.ru":        "imap.mail.ru",
}

const defaultIMAPPort = 993

// ResolveServer determines the IMAP host and port for an email address:
// known-provider table first, then common host patterns probed over TCP,
// then a derivation from the domain's MX records.
func ResolveServer(email string) (string, int, error) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return "", 0, fmt.Errorf("invalid email address %q", email)
	}
	domain := strings.ToLower(parts[1])

	if host, ok := knownServers[domain]; ok {
		return host, defaultIMAPPort, nil
	}

	for _, host := range []string{"imap." + domain, "mail." + domain} {
		if probe(host, defaultIMAPPort) {
			return host, defaultIMAPPort, nil
		}
	}

	if host, err := resolveViaMX(domain); err == nil {
		return host, defaultIMAPPort, nil
	}

	// Last resort: assume the conventional host and let the connection
	// test report the failure
	return "imap." + domain, defaultIMAPPort, nil
}

func probe(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// resolveViaMX derives an IMAP host from the domain's primary MX record,
// e.g. mx.example.com -> imap.example.com
func resolveViaMX(domain string) (string, error) {
	mxRecords, err := net.LookupMX(domain)
	if err != nil || len(mxRecords) == 0 {
		return "", fmt.Errorf("no MX records for %s", domain)
	}

	mxHost := strings.TrimSuffix(mxRecords[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("could not derive IMAP server from %s", mxHost)
	}

	for _, host := range []string{"imap." + parts[1], "mail." + parts[1]} {
		if probe(host, defaultIMAPPort) {
			return host, nil
		}
	}
	return "", fmt.Errorf("could not determine IMAP server for %s", domain)
}
