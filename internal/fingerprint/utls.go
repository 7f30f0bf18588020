package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/FranksOps/jobdigest/pkg/proxy"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile maps a configuration value onto a Profile. The empty string
// selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
}

func (p Profile) helloID() (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns an http.RoundTripper for the search client. ProfileGo
// yields a clone of http.DefaultTransport; any other profile performs the TLS
// handshake through utls.UClient with the matching ClientHello.
func Transport(p Profile) (http.RoundTripper, error) {
	return transport(p, nil)
}

func transport(p Profile, cfg *utls.Config) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = proxy.FromRequest
	if p == ProfileGo {
		return tr, nil
	}

	id, err := p.helloID()
	if err != nil {
		return nil, err
	}
	// HTTP/2 is only spoken over *tls.Conn, so a utls connection must
	// negotiate http/1.1.
	tr.ForceAttemptHTTP2 = false

	dial := tr.DialContext
	tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		c := &utls.Config{ServerName: host}
		if cfg != nil {
			c = cfg.Clone()
			c.ServerName = host
		}
		spec, err := http1Spec(id)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		uConn := utls.UClient(tcpConn, c, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: apply %s hello: %w", p, err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake: %w", err)
		}
		return uConn, nil
	}
	return tr, nil
}

// http1Spec returns the ClientHello of id with ALPN limited to http/1.1. A
// fresh spec is built per call so GREASE and randomized profiles vary per
// connection.
func http1Spec(id utls.ClientHelloID) (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.ClientHelloSpec{}, fmt.Errorf("fingerprint: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return spec, nil
}
