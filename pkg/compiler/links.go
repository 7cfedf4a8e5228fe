package compiler

import (
	"fmt"

	"github.com/getmockd/reflector/pkg/topology"
	"github.com/getmockd/reflector/pkg/tunnel"
)

// DefaultFingerprint is the uTLS fingerprint advertised in share links.
const DefaultFingerprint = "chrome"

// ShareLink is the client link for one inbound user.
type ShareLink struct {
	Inbound string
	User    string
	Link    *tunnel.Link
}

// ShareLinks builds a client link for every user of every inbound. host is
// the address clients dial.
func ShareLinks(spec *topology.TopologySpec, host, fingerprint string) ([]ShareLink, error) {
	if fingerprint == "" {
		fingerprint = DefaultFingerprint
	}
	var out []ShareLink
	for _, in := range spec.Spec.Inbounds {
		pub, err := tunnel.PublicKey(in.PrivateKey)
		if err != nil {
			return nil, &Error{Kind: "inbound", Name: in.Name, Err: err}
		}
		dial := host
		if dial == "" {
			dial = in.Camo.FQDN
		}
		for _, u := range in.Users {
			out = append(out, ShareLink{
				Inbound: in.Name,
				User:    u.Name,
				Link: &tunnel.Link{
					Protocol:    "vless",
					User:        u.UUID,
					Host:        dial,
					Port:        in.ListenPort,
					Flow:        u.Flow,
					Security:    tunnel.SecurityReality,
					SNI:         in.Camo.FQDN,
					Fingerprint: fingerprint,
					PublicKey:   pub,
					ShortID:     u.ShortID,
					Type:        "tcp",
					Name:        fmt.Sprintf("%s-%s", in.Name, u.Name),
				},
			})
		}
	}
	return out, nil
}
