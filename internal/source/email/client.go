// Package email retrieves recent messages from an IMAP inbox and reduces
// them to the fields deadline extraction needs.
package email

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/deadline-tracker/internal/model"
)

// ErrAuth is returned when the server rejects the credentials.
var ErrAuth = errors.New("imap authentication failed")

// IMAPClient wraps go-imap v2 for reading a mailbox.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// NewIMAPClientFromConfig creates a client from the email settings.
func NewIMAPClientFromConfig(cfg model.EmailConfig) *IMAPClient {
	return NewIMAPClient(cfg.IMAPHost, cfg.IMAPPort, cfg.Username, cfg.Password, cfg.TLS)
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c *IMAPClient) Connect(
	_ context.Context,
) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("%w for %s: %v", ErrAuth, c.username, err)
	}

	return client, nil
}

// FetchRecent returns up to limit INBOX messages received in the last
// days days, newest first. A non-positive limit fetches every match.
func (c *IMAPClient) FetchRecent(
	ctx context.Context, days, limit int,
) ([]model.EmailRecord, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{
		Since: time.Now().AddDate(0, 0, -days),
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	// Most recent UIDs sort last.
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	type fetched struct {
		uid    imap.UID
		record model.EmailRecord
	}
	var messages []fetched
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		rec := recordFromEnvelope(uint32(buf.UID), buf.Envelope)
		if raw := buf.FindBodySection(bodySection); raw != nil {
			rec.Body = messageBody(raw)
		}
		messages = append(messages, fetched{uid: buf.UID, record: rec})
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].uid > messages[j].uid
	})

	records := make([]model.EmailRecord, 0, len(messages))
	for _, m := range messages {
		records = append(records, m.record)
	}
	return records, nil
}

// recordFromEnvelope maps envelope data onto an EmailRecord. The
// Message-ID is the record ID when present, otherwise the UID.
func recordFromEnvelope(uid uint32, env *imap.Envelope) model.EmailRecord {
	rec := model.EmailRecord{
		ID: strconv.FormatUint(uint64(uid), 10),
	}
	if env == nil {
		return rec
	}

	if env.MessageID != "" {
		rec.ID = env.MessageID
	}
	rec.Subject = env.Subject
	rec.Date = env.Date

	if len(env.From) > 0 {
		from := env.From[0]
		if from.Name != "" {
			rec.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
		} else {
			rec.From = from.Addr()
		}
	}
	return rec
}
