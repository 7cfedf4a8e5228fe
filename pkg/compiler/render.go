package compiler

import (
	"github.com/getmockd/reflector/pkg/edge"
	"github.com/getmockd/reflector/pkg/tunnel"
)

// File names inside the work directory.
const (
	EdgeFile   = "nginx.conf"
	TunnelFile = "sing.json"
)

// Files holds the rendered configurations.
type Files struct {
	Edge   []byte
	Tunnel []byte
}

// Render serializes both trees.
func Render(e *edge.Config, t *tunnel.Config) (Files, error) {
	tb, err := tunnel.Render(t)
	if err != nil {
		return Files{}, err
	}
	return Files{Edge: edge.Render(e), Tunnel: tb}, nil
}
