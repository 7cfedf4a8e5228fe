package tunnel

// Outbound is a sing-box outbound: *DirectOutbound, *VLESSOutbound or
// *TrojanOutbound.
type Outbound interface {
	Node
	Tag() string
	outbound()
}

// DirectOutbound sends traffic out of the host.
type DirectOutbound struct {
	Name string
}

// Tag implements Outbound.
func (o *DirectOutbound) Tag() string { return o.Name }

func (*DirectOutbound) outbound() {}

// Fields implements Node.
func (o *DirectOutbound) Fields() []Field {
	var f fields
	f.set("type", "direct")
	f.set("tag", o.Name)
	return f
}

// VLESSOutbound connects to a remote VLESS server.
type VLESSOutbound struct {
	Name           string
	Server         string
	ServerPort     int
	UUID           string
	Flow           string
	TLS            *OutboundTLS
	PacketEncoding string
}

// Tag implements Outbound.
func (o *VLESSOutbound) Tag() string { return o.Name }

func (*VLESSOutbound) outbound() {}

// Fields implements Node.
func (o *VLESSOutbound) Fields() []Field {
	var f fields
	f.set("type", "vless")
	f.set("tag", o.Name)
	f.str("server", o.Server)
	f.num("server_port", o.ServerPort)
	f.str("uuid", o.UUID)
	f.str("flow", o.Flow)
	if o.TLS != nil {
		f.set("tls", o.TLS)
	}
	f.str("packet_encoding", o.PacketEncoding)
	return f
}

// TrojanOutbound connects to a remote Trojan server.
type TrojanOutbound struct {
	Name       string
	Server     string
	ServerPort int
	Password   string
	TLS        *OutboundTLS
}

// Tag implements Outbound.
func (o *TrojanOutbound) Tag() string { return o.Name }

func (*TrojanOutbound) outbound() {}

// Fields implements Node.
func (o *TrojanOutbound) Fields() []Field {
	var f fields
	f.set("type", "trojan")
	f.set("tag", o.Name)
	f.str("server", o.Server)
	f.num("server_port", o.ServerPort)
	f.str("password", o.Password)
	if o.TLS != nil {
		f.set("tls", o.TLS)
	}
	return f
}

// OutboundTLS is the client side TLS block.
type OutboundTLS struct {
	Enabled    bool
	DisableSNI bool
	ServerName string
	Insecure   bool
	UTLS       *UTLS
	Reality    *OutboundReality
}

// Fields implements Node.
func (t *OutboundTLS) Fields() []Field {
	var f fields
	f.set("enabled", t.Enabled)
	f.flag("disable_sni", t.DisableSNI)
	f.str("server_name", t.ServerName)
	f.flag("insecure", t.Insecure)
	if t.UTLS != nil {
		f.set("utls", t.UTLS)
	}
	if t.Reality != nil {
		f.set("reality", t.Reality)
	}
	return f
}

// UTLS imitates the ClientHello of a browser.
type UTLS struct {
	Enabled     bool
	Fingerprint string
}

// Fields implements Node.
func (u *UTLS) Fields() []Field {
	var f fields
	f.set("enabled", u.Enabled)
	f.str("fingerprint", u.Fingerprint)
	return f
}

// OutboundReality authenticates against a REALITY server.
type OutboundReality struct {
	Enabled   bool
	PublicKey string
	ShortID   string
}

// Fields implements Node.
func (r *OutboundReality) Fields() []Field {
	var f fields
	f.set("enabled", r.Enabled)
	f.str("public_key", r.PublicKey)
	f.str("short_id", r.ShortID)
	return f
}
