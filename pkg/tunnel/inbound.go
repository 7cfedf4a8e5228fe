package tunnel

// Inbound is a sing-box inbound. The only implementation is *VLESSInbound.
type Inbound interface {
	Node
	Tag() string
	inbound()
}

// VLESSInbound accepts VLESS clients behind a REALITY handshake.
type VLESSInbound struct {
	Name       string
	Listen     string
	ListenPort int
	Users      []VLESSUser
	TLS        *InboundTLS
}

// Tag implements Inbound.
func (in *VLESSInbound) Tag() string { return in.Name }

func (*VLESSInbound) inbound() {}

// Fields implements Node.
func (in *VLESSInbound) Fields() []Field {
	var f fields
	f.set("type", "vless")
	f.set("tag", in.Name)
	f.str("listen", in.Listen)
	f.num("listen_port", in.ListenPort)
	f.set("users", lowerAll(in.Users))
	if in.TLS != nil {
		f.set("tls", in.TLS)
	}
	return f
}

// VLESSUser is an identity accepted by an inbound.
type VLESSUser struct {
	Name string
	UUID string
	Flow string
}

// Fields implements Node.
func (u VLESSUser) Fields() []Field {
	var f fields
	f.str("name", u.Name)
	f.str("uuid", u.UUID)
	f.str("flow", u.Flow)
	return f
}

// InboundTLS is the server side TLS block.
type InboundTLS struct {
	Enabled    bool
	ServerName string
	Reality    *InboundReality
}

// Fields implements Node.
func (t *InboundTLS) Fields() []Field {
	var f fields
	f.set("enabled", t.Enabled)
	f.str("server_name", t.ServerName)
	if t.Reality != nil {
		f.set("reality", t.Reality)
	}
	return f
}

// InboundReality forwards failed handshakes to Handshake.
type InboundReality struct {
	Enabled    bool
	Handshake  Handshake
	PrivateKey string
	ShortID    []string
}

// Fields implements Node.
func (r *InboundReality) Fields() []Field {
	var f fields
	f.set("enabled", r.Enabled)
	f.set("handshake", r.Handshake)
	f.str("private_key", r.PrivateKey)
	f.set("short_id", nonNil(r.ShortID))
	return f
}

// Handshake is the camouflage server the REALITY layer falls back to.
type Handshake struct {
	Server     string
	ServerPort int
}

// Fields implements Node.
func (h Handshake) Fields() []Field {
	var f fields
	f.str("server", h.Server)
	f.num("server_port", h.ServerPort)
	return f
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
