package imapclient

import (
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"

	"banksync/pkg/models"
)

// parseMessage parses a raw IMAP message into an EmailMessage
func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*models.EmailMessage, error) {
	email := &models.EmailMessage{
		UID: msg.Uid,
	}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		email.Date = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			email.From = from.Address()
			email.FromName = from.PersonalName
		}
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return email, nil
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep what was already parsed; a broken trailing part should
			// not discard the readable bodies
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/html") {
				email.BodyHTML = string(body)
			} else if strings.HasPrefix(ct, "text/plain") {
				email.BodyText = string(body)
			}
		}
	}

	return email, nil
}
