// Package routing decides which authenticated users may egress through which
// outbound and produces the per-tag allow-lists for the tunnel route table.
package routing

import (
	"log/slog"
	"slices"

	"github.com/getmockd/reflector/pkg/logging"
	"github.com/getmockd/reflector/pkg/topology"
)

// Wildcard marks an outbound any user may use.
const Wildcard = topology.WildcardUser

// Drop reasons.
const (
	ReasonUnknownOutbound = "unknown-outbound"
	ReasonIneligible      = "ineligible"
)

// Index maps a base outbound tag to the users entitled to it.
type Index map[string]map[string]struct{}

func (ix Index) add(tag, user string) {
	set, ok := ix[tag]
	if !ok {
		set = make(map[string]struct{})
		ix[tag] = set
	}
	set[user] = struct{}{}
}

// IsWildcard reports whether any user may use tag.
func (ix Index) IsWildcard(tag string) bool {
	_, ok := ix[tag][Wildcard]
	return ok
}

// Entitled reports whether user is listed explicitly under tag.
func (ix Index) Entitled(tag, user string) bool {
	_, ok := ix[tag][user]
	return ok
}

// Users returns the sorted entries under tag, including the wildcard marker.
func (ix Index) Users(tag string) []string {
	out := make([]string, 0, len(ix[tag]))
	for u := range ix[tag] {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Rule is one tunnel route: users allowed to egress through Outbound.
type Rule struct {
	Outbound string
	Users    []string
}

// Drop is a route that was skipped.
type Drop struct {
	Route  topology.RouteSpec
	Reason string
}

// Result is the output of Resolve.
type Result struct {
	Rules   []Rule
	Index   Index
	Dropped []Drop
}

// SynthesizedTag is the tag of the per-user node generated for user on a
// multi-user outbound.
func SynthesizedTag(user, outbound string) string {
	return topology.UserTag(user, outbound)
}

// Resolver resolves routes against outbounds.
type Resolver struct {
	log *slog.Logger
}

// New returns a Resolver that reports dropped routes to logger.
func New(logger *slog.Logger) *Resolver {
	return &Resolver{log: logging.Component(logger, "routing")}
}

// Resolve resolves routes without logging.
func Resolve(outbounds []topology.OutboundSpec, routes []topology.RouteSpec) *Result {
	return New(nil).Resolve(outbounds, routes)
}

// Resolve builds the entitlement index from outbounds, then walks routes in
// declared order. Routes touching the same tag accumulate onto one rule whose
// position is that of the first route to reach it.
func (r *Resolver) Resolve(outbounds []topology.OutboundSpec, routes []topology.RouteSpec) *Result {
	res := &Result{Index: make(Index)}

	for _, ob := range outbounds {
		switch o := ob.(type) {
		case *topology.LinkOutbound:
			res.Index.add(o.Name, Wildcard)
		case *topology.RemoteOutbound:
			for _, u := range o.Users {
				res.Index.add(o.Name, u.Name)
			}
		case *topology.DirectOutbound:
			res.Index.add(o.Name, Wildcard)
		}
	}

	position := make(map[string]int)
	attach := func(tag, user string) {
		i, ok := position[tag]
		if !ok {
			i = len(res.Rules)
			position[tag] = i
			res.Rules = append(res.Rules, Rule{Outbound: tag})
		}
		if !slices.Contains(res.Rules[i].Users, user) {
			res.Rules[i].Users = append(res.Rules[i].Users, user)
		}
	}

	for _, route := range routes {
		if _, ok := res.Index[route.Outbound]; !ok {
			r.drop(res, route, ReasonUnknownOutbound)
			continue
		}
		switch {
		case res.Index.IsWildcard(route.Outbound):
			attach(route.Outbound, route.User)
		case res.Index.Entitled(route.Outbound, route.User):
			attach(SynthesizedTag(route.User, route.Outbound), route.User)
		default:
			r.drop(res, route, ReasonIneligible)
			continue
		}
		r.log.Debug("route created", "user", route.User, "outbound", route.Outbound)
	}

	return res
}

func (r *Resolver) drop(res *Result, route topology.RouteSpec, reason string) {
	res.Dropped = append(res.Dropped, Drop{Route: route, Reason: reason})
	r.log.Info("route dropped", "user", route.User, "outbound", route.Outbound, "reason", reason)
}
