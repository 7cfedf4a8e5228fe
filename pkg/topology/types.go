package topology

import (
	"fmt"
	"net"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Document envelope values.
const (
	APIVersion = "reflector/v1"
	Kind       = "Topology"
)

// InboundVLESS is the only inbound type.
const InboundVLESS = "vless"

// CamoLocal serves a template directory from disk.
const CamoLocal = "local"

// Issuer types.
const (
	IssuerSelfSigned  = "selfsigned"
	IssuerLetsEncrypt = "letsencrypt"
)

// TopologySpec is one loaded topology document. It is not modified after
// Load returns; a reload produces a new value.
type TopologySpec struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Spec       Spec   `yaml:"spec"`
}

// Spec is the body of a topology document.
type Spec struct {
	Inbounds  []InboundSpec `yaml:"inbounds"`
	Outbounds Outbounds     `yaml:"outbounds"`
	Routes    []RouteSpec   `yaml:"routes"`
	Metrics   *Metrics      `yaml:"metrics,omitempty"`
}

// User is an identity that can authenticate on an inbound or be carried to
// a remote outbound.
type User struct {
	Name    string `yaml:"name"`
	UUID    string `yaml:"uuid"`
	Flow    string `yaml:"flow,omitempty"`
	ShortID string `yaml:"short_id"`
}

// InboundSpec is a public VLESS listener fronted by camouflage content.
type InboundSpec struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Listen     string `yaml:"listen,omitempty"`
	ListenPort int    `yaml:"listen_port"`
	PrivateKey string `yaml:"private_key"`
	Users      []User `yaml:"users"`
	Camo       Camo   `yaml:"camo"`
}

// Camo describes the content served to connections that fail the handshake.
type Camo struct {
	Type     string `yaml:"type"`
	Template string `yaml:"template"`
	FQDN     string `yaml:"fqdn"`
	Issuer   Issuer `yaml:"issuer"`
}

// Issuer selects how the camouflage certificate is obtained.
type Issuer struct {
	Type  string `yaml:"type"`
	Email string `yaml:"email,omitempty"`
}

// RouteSpec allows User to egress through Outbound.
type RouteSpec struct {
	User     string `yaml:"user"`
	Outbound string `yaml:"outbound"`
}

// Metrics enables the operator metrics endpoint.
type Metrics struct {
	Listen string `yaml:"listen,omitempty"`
	Port   int    `yaml:"port"`
}

// Addr returns the listen address of the metrics endpoint.
func (m *Metrics) Addr() string {
	listen := m.Listen
	if listen == "" {
		listen = "127.0.0.1"
	}
	return net.JoinHostPort(listen, strconv.Itoa(m.Port))
}

// OutboundKind names an outbound variant.
type OutboundKind string

// Outbound kinds, as written in the type field.
const (
	OutboundLink   OutboundKind = "link"
	OutboundRemote OutboundKind = "vless"
	OutboundDirect OutboundKind = "direct"
)

// OutboundSpec is one of *LinkOutbound, *RemoteOutbound or *DirectOutbound.
type OutboundSpec interface {
	Tag() string
	Kind() OutboundKind
	outbound()
}

// LinkOutbound forwards through a server described by a share link.
type LinkOutbound struct {
	Name string `yaml:"name"`
	Link string `yaml:"link"`
}

// RemoteOutbound forwards through a VLESS+REALITY server, one identity per
// listed user.
type RemoteOutbound struct {
	Name        string `yaml:"name"`
	Server      string `yaml:"server"`
	ServerPort  int    `yaml:"server_port"`
	ServerName  string `yaml:"server_name,omitempty"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
	PublicKey   string `yaml:"public_key"`
	Users       []User `yaml:"users"`
}

// DirectOutbound sends traffic out of this host.
type DirectOutbound struct {
	Name string `yaml:"name"`
}

func (o *LinkOutbound) Tag() string          { return o.Name }
func (o *LinkOutbound) Kind() OutboundKind   { return OutboundLink }
func (*LinkOutbound) outbound()              {}
func (o *RemoteOutbound) Tag() string        { return o.Name }
func (o *RemoteOutbound) Kind() OutboundKind { return OutboundRemote }
func (*RemoteOutbound) outbound()            {}
func (o *DirectOutbound) Tag() string        { return o.Name }
func (o *DirectOutbound) Kind() OutboundKind { return OutboundDirect }
func (*DirectOutbound) outbound()            {}

// Outbounds decodes a YAML sequence of outbounds by their type field.
type Outbounds []OutboundSpec

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Outbounds) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: outbounds must be a list", value.Line)
	}
	out := make(Outbounds, 0, len(value.Content))
	for _, item := range value.Content {
		var head struct {
			Type OutboundKind `yaml:"type"`
		}
		if err := item.Decode(&head); err != nil {
			return err
		}
		var spec OutboundSpec
		switch head.Type {
		case OutboundLink:
			spec = &LinkOutbound{}
		case OutboundRemote:
			spec = &RemoteOutbound{}
		case OutboundDirect:
			spec = &DirectOutbound{}
		default:
			return fmt.Errorf("line %d: unknown outbound type %q", item.Line, head.Type)
		}
		if err := item.Decode(spec); err != nil {
			return err
		}
		out = append(out, spec)
	}
	*o = out
	return nil
}

// Find returns the outbound tagged name.
func (o Outbounds) Find(name string) (OutboundSpec, bool) {
	for _, ob := range o {
		if ob.Tag() == name {
			return ob, true
		}
	}
	return nil, false
}
