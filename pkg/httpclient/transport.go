package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS ClientHello fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go" // standard crypto/tls
)

// ParseProfile maps a config value to a Profile. Empty means chrome.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case "":
		return ProfileChrome, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tls profile %q", s)
	}
}

// Transport returns an http.RoundTripper presenting the given TLS fingerprint.
// ProfileGo yields a plain clone of http.DefaultTransport.
//
// The browser presets advertise h2 via ALPN, but http.Transport only speaks
// HTTP/1.1 over a custom DialTLSContext, so ALPN is pinned to http/1.1.
func Transport(p Profile) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p == ProfileGo {
		return transport, nil
	}

	var helloID utls.ClientHelloID
	switch p {
	case ProfileChrome:
		helloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		helloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		helloID = utls.HelloIOS_Auto
	default:
		return nil, fmt.Errorf("unknown tls profile %q", p)
	}

	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return nil, fmt.Errorf("build %s hello: %w", p, err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host}, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("apply %s preset: %w", p, err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}
