// Package tunnel models the sing-box configuration generated by the compiler
// and decodes client share links into outbound nodes.
//
// Inbounds and outbounds are closed sets: every variant is a type in this
// package and callers switch over them exhaustively. Each node lists its JSON
// keys through Fields, in the order they are written, leaving out options
// that were never set.
package tunnel

// Config is a complete sing-box configuration.
type Config struct {
	Log       Log
	DNS       DNS
	Inbounds  []Inbound
	Outbounds []Outbound
	Route     Route
}

// NewConfig returns an empty configuration logging to stdout at level.
func NewConfig(level string) *Config {
	return &Config{
		Log: Log{Level: level, Output: "stdout", Timestamp: true},
		DNS: DNS{Servers: []DNSServer{{Type: "local", Tag: "default"}}},
	}
}

// Fields implements Node.
func (c *Config) Fields() []Field {
	var f fields
	f.set("log", &c.Log)
	f.set("dns", &c.DNS)
	f.set("inbounds", lowerAll(c.Inbounds))
	f.set("outbounds", lowerAll(c.Outbounds))
	f.set("route", &c.Route)
	return f
}

// Inbound returns the inbound tagged tag.
func (c *Config) Inbound(tag string) (Inbound, bool) {
	for _, in := range c.Inbounds {
		if in.Tag() == tag {
			return in, true
		}
	}
	return nil, false
}

// Outbound returns the outbound tagged tag.
func (c *Config) Outbound(tag string) (Outbound, bool) {
	for _, out := range c.Outbounds {
		if out.Tag() == tag {
			return out, true
		}
	}
	return nil, false
}

// Log is the log section.
type Log struct {
	Disabled  bool
	Level     string
	Output    string
	Timestamp bool
}

// Fields implements Node.
func (l *Log) Fields() []Field {
	var f fields
	f.flag("disabled", l.Disabled)
	f.str("level", l.Level)
	f.str("output", l.Output)
	f.flag("timestamp", l.Timestamp)
	return f
}

// DNS is the dns section.
type DNS struct {
	Servers []DNSServer
}

// Fields implements Node.
func (d *DNS) Fields() []Field {
	var f fields
	f.set("servers", lowerAll(d.Servers))
	return f
}

// DNSServer is one resolver.
type DNSServer struct {
	Type string
	Tag  string
}

// Fields implements Node.
func (s DNSServer) Fields() []Field {
	var f fields
	f.str("type", s.Type)
	f.str("tag", s.Tag)
	return f
}

// Route is the route section.
type Route struct {
	Rules []RouteRule
	Final string
}

// Fields implements Node.
func (r *Route) Fields() []Field {
	var f fields
	f.set("rules", lowerAll(r.Rules))
	f.str("final", r.Final)
	return f
}

// RouteRule sends traffic of the listed users to Outbound.
type RouteRule struct {
	AuthUser []string
	Outbound string
}

// Fields implements Node.
func (r RouteRule) Fields() []Field {
	var f fields
	if len(r.AuthUser) > 0 {
		f.set("auth_user", r.AuthUser)
	}
	f.str("outbound", r.Outbound)
	return f
}
