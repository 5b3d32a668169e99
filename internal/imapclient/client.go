package imapclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"banksync/pkg/models"
)

var (
	// ErrNotConnected is returned for operations that need an open connection
	ErrNotConnected = errors.New("not connected")
	// ErrFolderNotFound is returned when the requested folder cannot be opened
	ErrFolderNotFound = errors.New("folder not found")
)

// State is the connection state: Disconnected -> Connecting -> Ready ->
// FolderOpen -> Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFolderOpen
)

// Config configuration for one IMAP connection
type Config struct {
	Host        string
	Port        int
	Email       string
	Password    string
	DialTimeout time.Duration
	// InsecureTLS relaxes certificate validation for self-signed/legacy
	// servers. SNI is still set explicitly either way.
	InsecureTLS bool
}

// Client is a stateful IMAP connection for a single mailbox
type Client struct {
	cfg    Config
	logger *slog.Logger
	state  State
	client *client.Client
}

// New creates a disconnected client
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("email", cfg.Email, "host", cfg.Host),
	}
}

// State returns the current connection state
func (c *Client) State() State {
	return c.state
}

// Connect opens a TLS connection and authenticates
func (c *Client) Connect(ctx context.Context) error {
	if c.state != StateDisconnected {
		return nil
	}
	c.state = StateConnecting

	timeout := c.cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.InsecureTLS,
	}

	c.logger.Debug("connecting to IMAP server")

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		c.state = StateDisconnected
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		c.state = StateDisconnected
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := imapClient.Login(c.cfg.Email, c.cfg.Password); err != nil {
		imapClient.Logout()
		c.state = StateDisconnected
		return fmt.Errorf("failed to login: %w", err)
	}

	c.client = imapClient
	c.state = StateReady
	c.logger.Debug("connected to IMAP server")

	return nil
}

// Disconnect closes the connection gracefully. Safe to call when already
// disconnected.
func (c *Client) Disconnect() {
	if c.state == StateDisconnected {
		return
	}
	if c.client != nil {
		if err := c.client.Logout(); err != nil {
			c.logger.Debug("logout failed", "error", err)
		}
		c.client = nil
	}
	c.state = StateDisconnected
}

// OpenFolder selects a folder and returns its total message count
func (c *Client) OpenFolder(ctx context.Context, name string, readOnly bool) (uint32, error) {
	if c.state < StateReady || c.client == nil {
		return 0, ErrNotConnected
	}

	mbox, err := c.client.Select(name, readOnly)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrFolderNotFound, name, err)
	}

	c.state = StateFolderOpen
	return mbox.Messages, nil
}

// FetchAllEmails fetches every message in the open folder. With a non-zero
// limit only the newest limit UIDs are fetched.
func (c *Client) FetchAllEmails(ctx context.Context, limit int) ([]*models.EmailMessage, error) {
	uids, err := c.searchAll()
	if err != nil {
		return nil, err
	}
	uids = newestUIDs(uids, limit)
	return c.fetchByUIDs(uids)
}

// FetchEmailsSinceUid fetches messages with UID strictly greater than
// lastUID. IMAP has no portable "UID greater-than" search verb, so the
// search is ALL and the window is applied client-side; UIDs are monotonic
// within one folder.
func (c *Client) FetchEmailsSinceUid(ctx context.Context, lastUID uint32, limit int) ([]*models.EmailMessage, error) {
	uids, err := c.searchAll()
	if err != nil {
		return nil, err
	}
	uids = filterSinceUID(uids, lastUID)
	uids = newestUIDs(uids, limit)
	return c.fetchByUIDs(uids)
}

// FetchEmailsByDateRange fetches messages dated within [start, end). The
// server-side SINCE filter has day granularity only, so the exact bound is
// applied client-side against the parsed message date.
func (c *Client) FetchEmailsByDateRange(ctx context.Context, start, end time.Time) ([]*models.EmailMessage, error) {
	if c.state != StateFolderOpen || c.client == nil {
		return nil, ErrNotConnected
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = start
	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	emails, err := c.fetchByUIDs(uids)
	if err != nil {
		return nil, err
	}

	filtered := emails[:0]
	for _, em := range emails {
		if withinRange(em.Date, start, end) {
			filtered = append(filtered, em)
		}
	}
	return filtered, nil
}

func (c *Client) searchAll() ([]uint32, error) {
	if c.state != StateFolderOpen || c.client == nil {
		return nil, ErrNotConnected
	}
	uids, err := c.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// fetchByUIDs fetches and parses the given UIDs. The message channel is
// drained completely before the fetch error is consulted, so the caller
// always gets a single completed collection; per-message parse failures are
// logged and skipped rather than aborting the batch.
func (c *Client) fetchByUIDs(uids []uint32) ([]*models.EmailMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var emails []*models.EmailMessage
	for msg := range messages {
		email, err := parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message, skipping", "uid", msg.Uid, "error", err)
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return emails, fmt.Errorf("failed to fetch: %w", err)
	}

	sort.Slice(emails, func(i, j int) bool { return emails[i].UID < emails[j].UID })
	return emails, nil
}

// filterSinceUID keeps UIDs strictly greater than lastUID
func filterSinceUID(uids []uint32, lastUID uint32) []uint32 {
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			filtered = append(filtered, uid)
		}
	}
	return filtered
}

// newestUIDs caps an ascending UID list to its highest limit entries
func newestUIDs(uids []uint32, limit int) []uint32 {
	if limit <= 0 || len(uids) <= limit {
		return uids
	}
	return uids[len(uids)-limit:]
}

// withinRange reports whether t falls in [start, end)
func withinRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
