package edge

import (
	"strconv"
	"strings"
)

// Defaults applied to generated servers.
var (
	DefaultSSLProtocols = []string{"TLSv1.1", "TLSv1.2", "TLSv1.3"}
	DefaultSSLCiphers   = []string{"HIGH", "!aNULL", "!MD5"}
)

const (
	defaultMaxBodySize = "100M"
	defaultMaxRanges   = "1000000000000000"
)

// Config is the top level nginx configuration.
type Config struct {
	User            string
	WorkerProcesses string
	ErrorLog        string
	PIDPath         string
	Events          Events
	HTTP            HTTP
}

// NewConfig returns a foreground nginx configuration running as user with
// its pid file at pidPath.
func NewConfig(user, pidPath string) *Config {
	return &Config{
		User:            user,
		WorkerProcesses: "auto",
		ErrorLog:        "/dev/stderr",
		PIDPath:         pidPath,
		Events:          Events{WorkerConnections: 1024},
		HTTP: HTTP{
			AccessLog: "/dev/stdout",
			Types:     DefaultMimeTypes(),
		},
	}
}

// Fields implements Node.
func (c *Config) Fields() []Field {
	return []Field{
		Param("daemon", "off"),
		Param("user", c.User),
		Param("worker_processes", c.WorkerProcesses),
		Param("error_log", c.ErrorLog),
		Param("pid", c.PIDPath),
		Block("events", &c.Events),
		Block("http", &c.HTTP),
	}
}

// Events is the events block.
type Events struct {
	WorkerConnections int
}

// Fields implements Node.
func (e *Events) Fields() []Field {
	return []Field{Param("worker_connections", itoa(e.WorkerConnections))}
}

// HTTP is the http block.
type HTTP struct {
	AccessLog string
	Types     MimeTypes
	Servers   []*Server
}

// Fields implements Node.
func (h *HTTP) Fields() []Field {
	fields := []Field{Param("access_log", h.AccessLog)}
	if len(h.Types) > 0 {
		fields = append(fields, Block("types", h.Types))
	}
	for _, s := range h.Servers {
		fields = append(fields, Block("server", s))
	}
	return fields
}

// StaticServer describes a TLS server that serves a directory.
type StaticServer struct {
	ServerName string
	Listen     string
	Root       string
	CertPath   string
	KeyPath    string
}

// AddStaticServer appends a TLS server for s with HTTP/2 enabled and returns it.
func (h *HTTP) AddStaticServer(s StaticServer) *Server {
	srv := &Server{
		ServerName:        s.ServerName,
		Listen:            s.Listen,
		ClientMaxBodySize: defaultMaxBodySize,
		Locations: []*Location{{
			Path:      "/",
			Autoindex: false,
			Index:     "index.html",
			Root:      s.Root,
			MaxRanges: defaultMaxRanges,
		}},
		HTTP2: true,
	}
	if s.CertPath != "" {
		srv.SSL = &SSL{
			Certificate:    s.CertPath,
			CertificateKey: s.KeyPath,
			Protocols:      DefaultSSLProtocols,
			Ciphers:        DefaultSSLCiphers,
		}
	}
	h.Servers = append(h.Servers, srv)
	return srv
}

// Server is one server block.
type Server struct {
	ServerName        string
	Listen            string
	ClientMaxBodySize string
	Locations         []*Location
	SSL               *SSL
	HTTP2             bool
}

// SSL holds the TLS directives of a server.
type SSL struct {
	Certificate    string
	CertificateKey string
	Protocols      []string
	Ciphers        []string
}

// Fields implements Node.
func (s *Server) Fields() []Field {
	listen := []string{s.Listen}
	if s.SSL != nil {
		listen = append(listen, "ssl")
	}
	fields := []Field{
		Param("server_name", s.ServerName),
		Param("listen", listen...),
		Param("client_max_body_size", s.ClientMaxBodySize),
	}
	if s.SSL != nil {
		fields = append(fields,
			Param("ssl_certificate", s.SSL.Certificate),
			Param("ssl_certificate_key", s.SSL.CertificateKey),
			Param("ssl_protocols", s.SSL.Protocols...),
			Param("ssl_ciphers", strings.Join(s.SSL.Ciphers, ":")),
		)
	}
	if s.HTTP2 {
		fields = append(fields, Param("http2", "on"))
	}
	for _, l := range s.Locations {
		fields = append(fields, Named("location", l.Path, l))
	}
	return fields
}

// Location is a location block serving static files.
type Location struct {
	Path      string
	Autoindex bool
	Index     string
	Root      string
	MaxRanges string
}

// Fields implements Node.
func (l *Location) Fields() []Field {
	autoindex := "off"
	if l.Autoindex {
		autoindex = "on"
	}
	return []Field{
		Param("autoindex", autoindex),
		Param("index", l.Index),
		Param("root", l.Root),
		Param("max_ranges", l.MaxRanges),
	}
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
