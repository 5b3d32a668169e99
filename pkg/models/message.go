package models

import (
	"fmt"
	"strconv"
	"time"
)

// EmailMessage is a fetched mail message. UIDs are only unique within one
// (sync source, folder) pair, so any dedup key must be composite.
type EmailMessage struct {
	UID      uint32
	Subject  string
	From     string // sender address
	FromName string
	Date     time.Time
	BodyText string
	BodyHTML string
}

// EmailJob is the queue payload for one email processing job
type EmailJob struct {
	SyncSourceID int64      `json:"syncSourceId"`
	UserID       string     `json:"userId"`
	Message      JobMessage `json:"message"`
}

// JobMessage is the wire shape of the message inside a job payload
type JobMessage struct {
	UID      string `json:"uid"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	Date     string `json:"date"` // ISO-8601
	BodyText string `json:"bodyText"`
	BodyHTML string `json:"bodyHtml,omitempty"`
}

// JobKey returns the queue identity key for one (source, uid) pair. The
// queue deduplicates on it, so repeated enqueues of the same email are no-ops.
func JobKey(syncSourceID int64, uid uint32) string {
	return fmt.Sprintf("%d-%d", syncSourceID, uid)
}

// NewEmailJob builds the job payload for one fetched email
func NewEmailJob(src *SyncSource, msg *EmailMessage) *EmailJob {
	return &EmailJob{
		SyncSourceID: src.ID,
		UserID:       src.UserID,
		Message: JobMessage{
			UID:      strconv.FormatUint(uint64(msg.UID), 10),
			Subject:  msg.Subject,
			From:     msg.From,
			Date:     msg.Date.Format(time.RFC3339),
			BodyText: msg.BodyText,
			BodyHTML: msg.BodyHTML,
		},
	}
}

// UIDValue parses the wire uid back into its numeric form
func (m *JobMessage) UIDValue() (uint32, error) {
	uid, err := strconv.ParseUint(m.UID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message uid %q: %w", m.UID, err)
	}
	return uint32(uid), nil
}

// ToEmailMessage rebuilds the in-memory message from the wire shape
func (m *JobMessage) ToEmailMessage() (*EmailMessage, error) {
	uid, err := m.UIDValue()
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(time.RFC3339, m.Date)
	if err != nil {
		date = time.Time{}
	}
	return &EmailMessage{
		UID:      uid,
		Subject:  m.Subject,
		From:     m.From,
		Date:     date,
		BodyText: m.BodyText,
		BodyHTML: m.BodyHTML,
	}, nil
}
