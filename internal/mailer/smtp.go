package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ImplicitTLSPort is the submission port that expects TLS from the first byte.
const ImplicitTLSPort = 465

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// StartTLS upgrades a plain connection before authenticating. Ignored on
	// ImplicitTLSPort.
	StartTLS bool
	// TLSConfig overrides the default TLS settings. ServerName defaults to Host.
	TLSConfig *tls.Config
	// Timeout bounds each SMTP command and the message submission.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now stamps the Date header. Defaults to time.Now.
	Now func() time.Time
}

// SMTPSender submits messages to a single SMTP server.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender returns a Sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	if s.cfg.TLSConfig != nil {
		c := s.cfg.TLSConfig.Clone()
		if c.ServerName == "" {
			c.ServerName = s.cfg.Host
		}
		return c
	}
	return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
}

// Send composes msg and submits it in a single SMTP transaction. Canceling
// ctx closes the connection.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.Host == "" {
		return errors.New("mailer: smtp host is empty")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	var body bytes.Buffer
	if err := Compose(&body, msg, s.cfg.Now()); err != nil {
		return err
	}
	from, _ := parseAddr(msg.From)
	to, _ := parseAddr(msg.To)

	c, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("mailer: connect %s: %w", s.addr(), err)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	c.CommandTimeout = s.cfg.Timeout
	c.SubmissionTimeout = s.cfg.Timeout

	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("mailer: auth as %s: %w", s.cfg.Username, s.ctxErr(ctx, err))
		}
	}

	if err := c.SendMail(from, []string{to}, &body); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, s.ctxErr(ctx, err))
	}
	if err := c.Quit(); err != nil {
		// the message was accepted; a failed QUIT is not a delivery failure
		s.logger.Debug("smtp quit failed", "error", err)
	}

	s.logger.Info("email sent",
		"to", to,
		"subject", msg.Subject,
		"bytes", body.Len(),
	)
	return nil
}

// dial connects and sets up transport security: TLS from the first byte on
// ImplicitTLSPort, STARTTLS when configured, plain otherwise. Connecting,
// the greeting and the TLS handshake together are bounded by the timeout and
// by ctx.
func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	d := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	c, err := s.newClient(ctx, conn)
	if !stop() {
		// conn was closed underneath the handshake
		if c != nil {
			_ = c.Close()
		}
		if err == nil {
			err = errors.New("connection closed")
		}
		return nil, s.ctxErr(ctx, err)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (s *SMTPSender) newClient(ctx context.Context, conn net.Conn) (*smtp.Client, error) {
	switch {
	case s.cfg.Port == ImplicitTLSPort:
		tc := tls.Client(conn, s.tlsConfig())
		if err := tc.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		return smtp.NewClient(tc), nil
	case s.cfg.StartTLS:
		c, err := smtp.NewClientStartTLS(conn, s.tlsConfig())
		if err != nil {
			return nil, fmt.Errorf("starttls: %w", err)
		}
		return c, nil
	default:
		return smtp.NewClient(conn), nil
	}
}

// ctxErr prefers the context error when cancellation is what broke the
// connection.
func (s *SMTPSender) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}
