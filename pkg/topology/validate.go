package topology

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/netip"
	"strings"

	"github.com/getmockd/reflector/pkg/tunnel"
	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// FieldError is a single validation failure.
type FieldError struct {
	Path    string // e.g. "spec.inbounds[0].camo.fqdn"
	Message string
}

func (e FieldError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationError collects every problem found in a topology document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Error())
	}
	return "invalid topology: " + strings.Join(msgs, "; ")
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *ValidationError) Hint() string {
	return "Fix the listed fields and run `reflector validate` to check the document."
}

// AddError adds a validation error.
func (e *ValidationError) AddError(path, message string) {
	e.Errors = append(e.Errors, FieldError{Path: path, Message: message})
}

// IsValid returns true if there are no validation errors.
func (e *ValidationError) IsValid() bool {
	return len(e.Errors) == 0
}

func (e *ValidationError) errOrNil() error {
	if e.IsValid() {
		return nil
	}
	return e
}

// WildcardUser is the entitlement marker for an outbound every user may
// use. It is never a valid user name.
const WildcardUser = "*"

// UserTag is the outbound tag synthesized for user on a multi-user outbound.
func UserTag(user, outbound string) string {
	return user + "@" + outbound
}

// Validate runs the semantic checks that the schema cannot express.
// It returns a *ValidationError or nil.
func Validate(t *TopologySpec) error {
	result := &ValidationError{}

	if t.APIVersion != APIVersion {
		result.AddError("apiVersion", fmt.Sprintf("unsupported version %q, expected %q", t.APIVersion, APIVersion))
	}
	if t.Kind != Kind {
		result.AddError("kind", fmt.Sprintf("unsupported kind %q, expected %q", t.Kind, Kind))
	}

	inboundNames := make(map[string]bool)
	for i := range t.Spec.Inbounds {
		validateInbound(&t.Spec.Inbounds[i], fmt.Sprintf("spec.inbounds[%d]", i), inboundNames, result)
	}

	tags := make(map[string]string)
	for i, ob := range t.Spec.Outbounds {
		validateOutbound(ob, fmt.Sprintf("spec.outbounds[%d]", i), tags, result)
	}

	for i, r := range t.Spec.Routes {
		path := fmt.Sprintf("spec.routes[%d]", i)
		switch r.User {
		case "":
			result.AddError(path+".user", "required")
		case WildcardUser:
			result.AddError(path+".user", fmt.Sprintf("%q is reserved for unrestricted outbounds", WildcardUser))
		}
		if r.Outbound == "" {
			result.AddError(path+".outbound", "required")
		}
	}

	if m := t.Spec.Metrics; m != nil {
		validatePort(m.Port, "spec.metrics.port", result)
		validateListen(m.Listen, "spec.metrics.listen", result)
	}

	return result.errOrNil()
}

func validateInbound(in *InboundSpec, path string, names map[string]bool, result *ValidationError) {
	if in.Name == "" {
		result.AddError(path+".name", "required")
	} else if names[in.Name] {
		result.AddError(path+".name", fmt.Sprintf("duplicate inbound name %q", in.Name))
	} else {
		names[in.Name] = true
	}
	if in.Type != InboundVLESS {
		result.AddError(path+".type", fmt.Sprintf("unsupported inbound type %q", in.Type))
	}
	validatePort(in.ListenPort, path+".listen_port", result)
	validateListen(in.Listen, path+".listen", result)
	if in.PrivateKey == "" {
		result.AddError(path+".private_key", "required")
	}
	validateUsers(in.Users, path+".users", result)

	camo := path + ".camo"
	if in.Camo.Type != CamoLocal {
		result.AddError(camo+".type", fmt.Sprintf("unsupported camo type %q", in.Camo.Type))
	}
	if in.Camo.Template == "" {
		result.AddError(camo+".template", "required")
	}
	if err := validateFQDN(in.Camo.FQDN); err != nil {
		result.AddError(camo+".fqdn", err.Error())
	}

	issuer := in.Camo.Issuer
	switch issuer.Type {
	case IssuerSelfSigned:
	case IssuerLetsEncrypt:
		if issuer.Email == "" {
			result.AddError(camo+".issuer.email", "required for letsencrypt")
		} else if _, err := mail.ParseAddress(issuer.Email); err != nil {
			result.AddError(camo+".issuer.email", fmt.Sprintf("invalid email %q", issuer.Email))
		}
	default:
		result.AddError(camo+".issuer.type", fmt.Sprintf("unknown issuer %q (valid: %s, %s)", issuer.Type, IssuerSelfSigned, IssuerLetsEncrypt))
	}
}

func validateOutbound(ob OutboundSpec, path string, tags map[string]string, result *ValidationError) {
	claim := func(tag, field string) {
		if tag == "" {
			return
		}
		if prev, ok := tags[tag]; ok {
			result.AddError(field, fmt.Sprintf("outbound tag %q already used by %s", tag, prev))
			return
		}
		tags[tag] = field
	}

	if ob.Tag() == "" {
		result.AddError(path+".name", "required")
	}
	claim(ob.Tag(), path+".name")

	switch o := ob.(type) {
	case *LinkOutbound:
		if o.Link == "" {
			result.AddError(path+".link", "required")
		} else if _, err := tunnel.OutboundFromLink(o.Link, o.Name); err != nil {
			result.AddError(path+".link", err.Error())
		}
	case *RemoteOutbound:
		if o.Server == "" {
			result.AddError(path+".server", "required")
		}
		validatePort(o.ServerPort, path+".server_port", result)
		if o.PublicKey == "" {
			result.AddError(path+".public_key", "required")
		}
		validateUsers(o.Users, path+".users", result)
		for i, u := range o.Users {
			if u.Name != "" {
				claim(UserTag(u.Name, o.Name), fmt.Sprintf("%s.users[%d]", path, i))
			}
		}
	case *DirectOutbound:
	}
}

func validateUsers(users []User, path string, result *ValidationError) {
	seen := make(map[string]bool, len(users))
	for i, u := range users {
		up := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case u.Name == "":
			result.AddError(up+".name", "required")
		case u.Name == WildcardUser:
			result.AddError(up+".name", fmt.Sprintf("%q is reserved for unrestricted outbounds", WildcardUser))
		case strings.Contains(u.Name, "@"):
			result.AddError(up+".name", "must not contain '@'")
		case seen[u.Name]:
			result.AddError(up+".name", fmt.Sprintf("duplicate user %q", u.Name))
		default:
			seen[u.Name] = true
		}
		if _, err := uuid.Parse(u.UUID); err != nil {
			result.AddError(up+".uuid", fmt.Sprintf("invalid uuid %q", u.UUID))
		}
		if err := validateShortID(u.ShortID); err != nil {
			result.AddError(up+".short_id", err.Error())
		}
	}
}

func validatePort(port int, path string, result *ValidationError) {
	if port < 1 || port > 65535 {
		result.AddError(path, fmt.Sprintf("port %d out of range 1-65535", port))
	}
}

func validateListen(listen, path string, result *ValidationError) {
	if listen == "" {
		return
	}
	if _, err := netip.ParseAddr(listen); err != nil {
		result.AddError(path, fmt.Sprintf("invalid listen address %q", listen))
	}
}

func validateShortID(id string) error {
	if len(id) > 16 {
		return fmt.Errorf("short id %q longer than 16 hex digits", id)
	}
	if len(id)%2 != 0 {
		return fmt.Errorf("short id %q must have an even number of hex digits", id)
	}
	if _, err := hex.DecodeString(id); err != nil {
		return fmt.Errorf("short id %q is not hex", id)
	}
	return nil
}

func validateFQDN(fqdn string) error {
	if fqdn == "" {
		return errors.New("required")
	}
	ascii, err := idna.Lookup.ToASCII(fqdn)
	if err != nil {
		return fmt.Errorf("invalid domain %q: %v", fqdn, err)
	}
	if len(ascii) > 253 {
		return fmt.Errorf("domain %q longer than 253 bytes", fqdn)
	}
	if _, err := netip.ParseAddr(fqdn); err == nil {
		return fmt.Errorf("domain %q is an IP address", fqdn)
	}
	return nil
}
