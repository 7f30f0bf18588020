package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sentAt = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func testMessage() Message {
	return Message{
		From:    "digest@example.com",
		To:      "Candidate <me@example.org>",
		Subject: "Daily Job Search Results - 2026-10-19",
		HTML:    "<h2>Daily Job Search Results - 2026-10-19</h2><p>2 listings</p>",
		Attachment: &Attachment{
			Filename:    "jobs-2026-10-19.csv",
			ContentType: "text/csv",
			Data:        []byte("role,location\nfrontend developer,Chennai\n"),
		},
		Headers: map[string]string{"X-Jobdigest-Run": "run-123"},
	}
}

type parsed struct {
	subject        string
	from, to       string
	runID          string
	html           string
	htmlType       string
	attachmentName string
	attachmentType string
	attachment     []byte
}

func parse(t *testing.T, raw []byte) parsed {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	var p parsed
	p.subject, err = mr.Header.Subject()
	require.NoError(t, err)
	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	p.from = from[0].Address
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	p.to = to[0].Address
	p.runID = mr.Header.Get("X-Jobdigest-Run")

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			p.htmlType, _, _ = h.ContentType()
			p.html = string(body)
		case *mail.AttachmentHeader:
			p.attachmentName, _ = h.Filename()
			p.attachmentType, _, _ = h.ContentType()
			p.attachment = body
		}
	}
	return p
}

func TestCompose_WithAttachment(t *testing.T) {
	msg := testMessage()
	var buf bytes.Buffer
	require.NoError(t, Compose(&buf, msg, sentAt))

	p := parse(t, buf.Bytes())
	assert.Equal(t, msg.Subject, p.subject)
	assert.Equal(t, "digest@example.com", p.from)
	assert.Equal(t, "me@example.org", p.to)
	assert.Equal(t, "run-123", p.runID)
	assert.Equal(t, "text/html", p.htmlType)
	assert.Equal(t, msg.HTML, p.html)
	assert.Equal(t, "jobs-2026-10-19.csv", p.attachmentName)
	assert.Equal(t, "text/csv", p.attachmentType)
	assert.Equal(t, msg.Attachment.Data, p.attachment)
}

func TestCompose_WithoutAttachment(t *testing.T) {
	msg := testMessage()
	msg.Attachment = nil
	msg.HTML = "<p>No matching jobs were found today.</p>"

	var buf bytes.Buffer
	require.NoError(t, Compose(&buf, msg, sentAt))
	assert.NotContains(t, buf.String(), "multipart/mixed")

	p := parse(t, buf.Bytes())
	assert.Equal(t, msg.HTML, p.html)
	assert.Empty(t, p.attachmentName)
}

func TestCompose_InvalidMessage(t *testing.T) {
	msg := testMessage()
	msg.From = "not an address"
	msg.Subject = ""

	var buf bytes.Buffer
	err := Compose(&buf, msg, sentAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from")
	assert.Contains(t, err.Error(), "subject")
	assert.Zero(t, buf.Len())
}

// backend is an in-memory SMTP server that records submitted messages.
type backend struct {
	mu       sync.Mutex
	user     string
	pass     string
	messages []received
	rejectTo string
}

type received struct {
	from string
	to   []string
	data []byte
	user string
	tls  bool
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	_, isTLS := c.TLSConnectionState()
	return &session{b: b, tls: isTLS}, nil
}

type session struct {
	b    *backend
	user string
	tls  bool
	cur  received
}

func (s *session) AuthMechanisms() []string {
	if s.b.user == "" {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.b.user || password != s.b.pass {
			return errors.New("invalid credentials")
		}
		s.user = username
		return nil
	}), nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	if s.b.user != "" && s.user == "" {
		return smtp.ErrAuthRequired
	}
	s.cur.from = from
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if to == s.b.rejectTo {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = data
	s.cur.user = s.user
	s.cur.tls = s.tls
	s.b.mu.Lock()
	s.b.messages = append(s.b.messages, s.cur)
	s.b.mu.Unlock()
	return nil
}

func (s *session) Reset() {
	s.cur = received{}
}

func (s *session) Logout() error {
	return nil
}

func startServer(t *testing.T, be *backend) (host string, port int) {
	t.Helper()
	srv := smtp.NewServer(be)
	srv.AllowInsecureAuth = true
	return serve(t, srv)
}

// startTLSServer offers STARTTLS with a self-signed certificate and only
// allows AUTH once the connection is encrypted.
func startTLSServer(t *testing.T, be *backend) (host string, port int) {
	t.Helper()
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	certs := ts.TLS.Certificates
	ts.Close()

	srv := smtp.NewServer(be)
	srv.TLSConfig = &tls.Config{Certificates: certs}
	srv.AllowInsecureAuth = false
	return serve(t, srv)
}

func serve(t *testing.T, srv *smtp.Server) (host string, port int) {
	t.Helper()
	srv.Domain = "localhost"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	h, p, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port
}

// startSilentServer accepts connections and never sends a greeting.
func startSilentServer(t *testing.T) (host string, port int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	h, p, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port
}

func (b *backend) received() []received {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]received(nil), b.messages...)
}

func TestSMTPSender_Send(t *testing.T) {
	be := &backend{}
	host, port := startServer(t, be)

	s := NewSMTPSender(SMTPConfig{
		Host:    host,
		Port:    port,
		Timeout: 5 * time.Second,
		Now:     func() time.Time { return sentAt },
	})
	require.NoError(t, s.Send(context.Background(), testMessage()))

	msgs := be.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "digest@example.com", msgs[0].from)
	assert.Equal(t, []string{"me@example.org"}, msgs[0].to)

	p := parse(t, msgs[0].data)
	assert.Equal(t, "Daily Job Search Results - 2026-10-19", p.subject)
	assert.Equal(t, "jobs-2026-10-19.csv", p.attachmentName)
}

func TestSMTPSender_Auth(t *testing.T) {
	be := &backend{user: "me@gmail.com", pass: "app-password"}
	host, port := startServer(t, be)

	s := NewSMTPSender(SMTPConfig{
		Host:     host,
		Port:     port,
		Username: "me@gmail.com",
		Password: "app-password",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, s.Send(context.Background(), testMessage()))

	msgs := be.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "me@gmail.com", msgs[0].user)
}

func TestSMTPSender_StartTLS(t *testing.T) {
	be := &backend{user: "me@gmail.com", pass: "app-password"}
	host, port := startTLSServer(t, be)

	s := NewSMTPSender(SMTPConfig{
		Host:      host,
		Port:      port,
		Username:  "me@gmail.com",
		Password:  "app-password",
		StartTLS:  true,
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
		Timeout:   5 * time.Second,
	})
	require.NoError(t, s.Send(context.Background(), testMessage()))

	msgs := be.received()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].tls, "expected the session to run over TLS")
	assert.Equal(t, "me@gmail.com", msgs[0].user)

	p := parse(t, msgs[0].data)
	assert.Equal(t, "jobs-2026-10-19.csv", p.attachmentName)
}

func TestSMTPSender_AuthWithoutTLSRefused(t *testing.T) {
	be := &backend{user: "me@gmail.com", pass: "app-password"}
	host, port := startTLSServer(t, be)

	s := NewSMTPSender(SMTPConfig{
		Host:     host,
		Port:     port,
		Username: "me@gmail.com",
		Password: "app-password",
		Timeout:  5 * time.Second,
	})
	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
	assert.Empty(t, be.received())
}

func TestSMTPSender_StartTLSUnsupported(t *testing.T) {
	be := &backend{}
	host, port := startServer(t, be)

	s := NewSMTPSender(SMTPConfig{
		Host:     host,
		Port:     port,
		StartTLS: true,
		Timeout:  5 * time.Second,
	})
	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starttls")
	assert.Empty(t, be.received())
}

func TestSMTPSender_SilentServerTimesOut(t *testing.T) {
	host, port := startSilentServer(t)

	s := NewSMTPSender(SMTPConfig{
		Host:     host,
		Port:     port,
		StartTLS: true,
		Timeout:  200 * time.Millisecond,
	})

	start := time.Now()
	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSMTPSender_CanceledWhileWaiting(t *testing.T) {
	host, port := startSilentServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, Timeout: time.Minute})

	start := time.Now()
	err := s.Send(ctx, testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSMTPSender_BadPassword(t *testing.T) {
	be := &backend{user: "me@gmail.com", pass: "app-password"}
	host, port := startServer(t, be)

	s := NewSMTPSender(SMTPConfig{
		Host:     host,
		Port:     port,
		Username: "me@gmail.com",
		Password: "wrong",
		Timeout:  5 * time.Second,
	})
	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
	assert.NotContains(t, err.Error(), "wrong")
	assert.Empty(t, be.received())
}

func TestSMTPSender_RecipientRejected(t *testing.T) {
	be := &backend{rejectTo: "me@example.org"}
	host, port := startServer(t, be)

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, Timeout: 5 * time.Second})
	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)

	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
	assert.Empty(t, be.received())
}

func TestSMTPSender_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, p, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(p)
	l.Close()

	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second})
	err = s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect")
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	be := &backend{}
	host, port := startServer(t, be)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port})
	err := s.Send(ctx, testMessage())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, be.received())
}

func TestSMTPSender_InvalidMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1})
	msg := testMessage()
	msg.To = ""
	err := s.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid message")
}
