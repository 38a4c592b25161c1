package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/firefart/dmarcmbox/internal/config"
)

func Connect(conf config.IMAPConfig, logger *slog.Logger) (*client.Client, error) {
	errorLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)
	tlsConfig := tls.Config{} // nolint: gosec
	if conf.IgnoreCert {
		tlsConfig.InsecureSkipVerify = true // nolint:gosec
	}
	if conf.SSL {
		c, err := client.DialTLS(conf.Host, &tlsConfig)
		if err != nil {
			return nil, err
		}
		c.Timeout = conf.Timeout.Duration
		c.ErrorLog = errorLog
		return c, nil
	}
	c, err := client.Dial(conf.Host)
	if err != nil {
		return nil, err
	}
	c.ErrorLog = errorLog
	c.Timeout = conf.Timeout.Duration
	support, err := c.SupportStartTLS()
	if err != nil {
		return nil, err
	}
	if support {
		if err := c.StartTLS(&tlsConfig); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func HasImapFolder(c *client.Client, folderName string) (bool, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	hasFolder := false
	for m := range mailboxes {
		if m.Name == folderName {
			hasFolder = true
			// keep draining so List can finish
		}
	}

	if err := <-done; err != nil {
		return false, err
	}

	return hasFolder, nil
}

// FetchMessages returns the raw content of every message in the selected
// folder that is not flagged as deleted. Messages are fetched in batches
// of batchSize as some servers time out on large fetches.
func FetchMessages(ctx context.Context, c *client.Client, batchSize int, logger *slog.Logger) ([][]byte, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search for mails: %w", err)
	}
	logger.Debug("found mails without the DELETED flag", "count", len(ids))

	if batchSize < 1 {
		batchSize = len(ids)
	}

	var messages [][]byte
	for start := 0; start < len(ids); start += batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+batchSize, len(ids))
		seqset := new(imap.SeqSet)
		seqset.AddNum(ids[start:end]...)
		logger.Debug("fetching messages", "seqset", seqset.String())

		batch, err := fetch(c, seqset)
		if err != nil {
			return nil, err
		}
		messages = append(messages, batch...)
	}
	return messages, nil
}

func fetch(c *client.Client, seqset *imap.SeqSet) ([][]byte, error) {
	ch := make(chan *imap.Message)
	done := make(chan error, 1)

	// Get the whole message body without setting the seen flag
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchUid,
	}
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var messages [][]byte
	var readErr error
	for msg := range ch {
		r := msg.GetBody(section)
		if r == nil {
			readErr = fmt.Errorf("server didn't return message body for UID %d", msg.Uid)
			continue
		}
		b, err := io.ReadAll(r)
		if err != nil {
			readErr = fmt.Errorf("could not read message %d: %w", msg.Uid, err)
			continue
		}
		messages = append(messages, b)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("error on fetch: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}
	return messages, nil
}

// Load connects to the configured server and returns all messages of the
// configured folder. The folder is opened read only.
func Load(ctx context.Context, conf config.IMAPConfig, batchSize int, logger *slog.Logger) ([][]byte, error) {
	c, err := Connect(conf, logger)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", conf.Host, err)
	}
	logger.Debug("connected to imap server")

	if err := c.Login(conf.User, conf.Pass); err != nil {
		return nil, fmt.Errorf("could not login: %w", err)
	}
	logger.Debug("successful login")

	defer func() {
		if err := c.Logout(); err != nil {
			logger.Error("error on logout", "error", err)
		}
	}()

	hasFolder, err := HasImapFolder(c, conf.Folder)
	if err != nil {
		return nil, fmt.Errorf("could not check if folder %s exists: %w", conf.Folder, err)
	}
	if !hasFolder {
		return nil, fmt.Errorf("imap folder %s not found in account", conf.Folder)
	}

	mbox, err := c.Select(conf.Folder, true)
	if err != nil {
		return nil, fmt.Errorf("could not select folder %s: %w", conf.Folder, err)
	}
	logger.Info("opened imap folder", "folder", mbox.Name, "messages", mbox.Messages, "unseen", mbox.Unseen)

	return FetchMessages(ctx, c, batchSize, logger)
}
