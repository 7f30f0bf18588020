// Package mailer composes the digest email and submits it over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-message/mail"
)

// Attachment is a file attached to a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a single-recipient HTML email.
type Message struct {
	From       string
	To         string
	Subject    string
	HTML       string
	Attachment *Attachment
	// Headers are extra header fields, e.g. a run identifier.
	Headers map[string]string
}

// Sender delivers a Message. Implementations make exactly one attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Validate checks that the addresses parse and the subject is set.
func (m Message) Validate() error {
	var errs []error
	if _, err := mail.ParseAddress(m.From); err != nil {
		errs = append(errs, fmt.Errorf("from %q: %w", m.From, err))
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		errs = append(errs, fmt.Errorf("to %q: %w", m.To, err))
	}
	if m.Subject == "" {
		errs = append(errs, errors.New("subject is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("mailer: invalid message: %w", err)
	}
	return nil
}

// Compose writes msg as an RFC 5322 message. With an attachment the message is
// multipart/mixed with an inline HTML part; otherwise it is a single HTML part.
func Compose(w io.Writer, msg Message, now time.Time) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	from, _ := mail.ParseAddress(msg.From)
	to, _ := mail.ParseAddress(msg.To)

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("mailer: message id: %w", err)
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, msg.Headers[k])
	}

	if msg.Attachment == nil {
		h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		body, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("mailer: create body: %w", err)
		}
		if _, err := io.WriteString(body, msg.HTML); err != nil {
			return fmt.Errorf("mailer: write body: %w", err)
		}
		if err := body.Close(); err != nil {
			return fmt.Errorf("mailer: close body: %w", err)
		}
		return nil
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("mailer: create message: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("mailer: create inline: %w", err)
	}
	var ih mail.InlineHeader
	ih.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := iw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("mailer: create html part: %w", err)
	}
	if _, err := io.WriteString(part, msg.HTML); err != nil {
		return fmt.Errorf("mailer: write html part: %w", err)
	}
	if err := part.Close(); err != nil {
		return fmt.Errorf("mailer: close html part: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("mailer: close inline: %w", err)
	}

	ct := msg.Attachment.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	var ah mail.AttachmentHeader
	ah.SetContentType(ct, nil)
	ah.SetFilename(msg.Attachment.Filename)
	ah.Set("Content-Transfer-Encoding", "base64")
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("mailer: create attachment: %w", err)
	}
	if _, err := aw.Write(msg.Attachment.Data); err != nil {
		return fmt.Errorf("mailer: write attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("mailer: close attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("mailer: close message: %w", err)
	}
	return nil
}

func parseAddr(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}
