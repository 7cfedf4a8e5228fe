package tunnel

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Security modes carried in the security query parameter.
const (
	SecurityNone    = "none"
	SecurityTLS     = "tls"
	SecurityReality = "reality"
)

// ErrUnsupportedScheme is returned for share links of an unknown protocol.
var ErrUnsupportedScheme = errors.New("unsupported share link scheme")

// Link is a client share link such as
// vless://uuid@host:443?security=reality&sni=a.example&fp=chrome&pbk=KEY&sid=01ab#name.
type Link struct {
	Protocol    string
	User        string
	Host        string
	Port        int
	Flow        string
	Security    string
	SNI         string
	Fingerprint string
	PublicKey   string
	ShortID     string
	Type        string
	Name        string
}

// ParseLink decodes a share link.
func ParseLink(raw string) (*Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing share link: %w", err)
	}
	switch u.Scheme {
	case "vless", "trojan":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("share link has no host")
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("share link has invalid port %q", u.Port())
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, errors.New("share link has no user")
	}

	q := u.Query()
	return &Link{
		Protocol:    u.Scheme,
		User:        u.User.Username(),
		Host:        u.Hostname(),
		Port:        port,
		Flow:        q.Get("flow"),
		Security:    q.Get("security"),
		SNI:         q.Get("sni"),
		Fingerprint: q.Get("fp"),
		PublicKey:   q.Get("pbk"),
		ShortID:     q.Get("sid"),
		Type:        q.Get("type"),
		Name:        u.Fragment,
	}, nil
}

// String encodes the link, leaving out empty parameters.
func (l *Link) String() string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("flow", l.Flow)
	set("security", l.Security)
	set("sni", l.SNI)
	set("fp", l.Fingerprint)
	set("pbk", l.PublicKey)
	set("sid", l.ShortID)
	set("type", l.Type)

	u := url.URL{
		Scheme:   l.Protocol,
		User:     url.User(l.User),
		Host:     net.JoinHostPort(l.Host, strconv.Itoa(l.Port)),
		RawQuery: q.Encode(),
		Fragment: l.Name,
	}
	return u.String()
}

// Outbound builds the outbound node for the link, tagged tag.
func (l *Link) Outbound(tag string) (Outbound, error) {
	if l.Type != "" && l.Type != "tcp" {
		return nil, fmt.Errorf("share link transport %q is not supported", l.Type)
	}
	switch l.Security {
	case "", SecurityNone, SecurityTLS, SecurityReality:
	default:
		return nil, fmt.Errorf("share link security %q is not supported", l.Security)
	}
	tls := l.tls()
	switch l.Protocol {
	case "vless":
		return &VLESSOutbound{
			Name:       tag,
			Server:     l.Host,
			ServerPort: l.Port,
			UUID:       l.User,
			Flow:       l.Flow,
			TLS:        tls,
		}, nil
	case "trojan":
		return &TrojanOutbound{
			Name:       tag,
			Server:     l.Host,
			ServerPort: l.Port,
			Password:   l.User,
			TLS:        tls,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, l.Protocol)
	}
}

func (l *Link) tls() *OutboundTLS {
	if l.Security == SecurityNone || l.Security == "" {
		return nil
	}
	t := &OutboundTLS{Enabled: true, ServerName: l.SNI}
	if l.Fingerprint != "" {
		t.UTLS = &UTLS{Enabled: true, Fingerprint: l.Fingerprint}
	}
	if l.Security == SecurityReality {
		t.Reality = &OutboundReality{Enabled: true, PublicKey: l.PublicKey, ShortID: l.ShortID}
	}
	return t
}

// OutboundFromLink decodes raw and builds its outbound node, tagged tag.
func OutboundFromLink(raw, tag string) (Outbound, error) {
	l, err := ParseLink(raw)
	if err != nil {
		return nil, err
	}
	return l.Outbound(tag)
}
