package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Group supervises children that live and die together.
type Group struct {
	Children []*Child
}

// NewGroup returns a group of children.
func NewGroup(children ...*Child) *Group {
	return &Group{Children: children}
}

// Start starts every child in order. If one fails the ones already started
// are stopped.
func (g *Group) Start() error {
	for i, c := range g.Children {
		if err := c.Start(); err != nil {
			for _, started := range g.Children[:i] {
				_ = started.Stop(DefaultStopGrace)
			}
			return err
		}
	}
	return nil
}

// Poll returns a *ChildFailureError for the first child found to have
// exited, or nil when all are running.
func (g *Group) Poll() error {
	for _, c := range g.Children {
		if exited, code := c.Poll(); exited {
			return &ChildFailureError{Name: c.Name, ExitCode: code}
		}
	}
	return nil
}

// Reload signals every running child to reload.
func (g *Group) Reload() error {
	var errs []error
	for _, c := range g.Children {
		if err := c.Reload(); err != nil {
			errs = append(errs, fmt.Errorf("reloading %s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Stop stops every child, each with the given grace.
func (g *Group) Stop(grace time.Duration) error {
	var errs []error
	for _, c := range g.Children {
		if err := c.Stop(grace); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PIDs maps child names to process ids.
func (g *Group) PIDs() map[string]int {
	out := make(map[string]int, len(g.Children))
	for _, c := range g.Children {
		out[c.Name] = c.PID()
	}
	return out
}
