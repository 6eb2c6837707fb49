// Package permissions implements the role-based safety boundary between
// sensing and actuation: an ordered ProcessRole x device.Role matrix,
// most-specific-first, default deny.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/johnwbyrd/aifand/device"
)

// ProcessRole drives the process-side half of the permission matrix.
type ProcessRole int

const (
	// RoleGeneric is the default role for a plain Process; the matrix's
	// loophole-for-tests rule allows it to mutate any device.
	RoleGeneric ProcessRole = iota
	RoleEnvironment
	RoleController
)

func (r ProcessRole) String() string {
	switch r {
	case RoleEnvironment:
		return "environment"
	case RoleController:
		return "controller"
	default:
		return "process"
	}
}

// Rule is one (ProcessRole, device.Role) -> allow/deny entry. Rules are
// evaluated in order; the first match wins.
type Rule struct {
	Process ProcessRole
	Device  device.Role
	Allow   bool
}

// Error is returned when a process attempts to mutate a device its role
// cannot. It carries enough context to identify the offending call.
type Error struct {
	Process ProcessRole
	Device  device.Role
	Name    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("permission denied: %s may not mutate %s %q", e.Process, e.Device, e.Name)
}

// IsPermissionDenied reports whether err is (or wraps) a permission Error.
func IsPermissionDenied(err error) bool {
	var permErr *Error
	return errors.As(err, &permErr)
}

// Matrix is an ordered, read-mostly rule set. The zero value is an empty
// matrix (default-deny for everything); use Default() for the canonical
// rule set.
type Matrix struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMatrix builds a Matrix from an explicit, most-specific-first rule
// list.
func NewMatrix(rules ...Rule) *Matrix {
	m := &Matrix{}
	m.Replace(rules)
	return m
}

// Default returns the canonical rule table from spec.md §4.3.
func Default() *Matrix {
	return NewMatrix(
		Rule{Process: RoleEnvironment, Device: device.Sensor, Allow: true},
		Rule{Process: RoleEnvironment, Device: device.Actuator, Allow: false},
		Rule{Process: RoleController, Device: device.Actuator, Allow: true},
		Rule{Process: RoleController, Device: device.Sensor, Allow: false},
		// Generic processes may mutate any device — a loophole for tests only.
		Rule{Process: RoleGeneric, Device: device.Sensor, Allow: true},
		Rule{Process: RoleGeneric, Device: device.Actuator, Allow: true},
	)
}

// Replace atomically swaps the rule set. NewMatrix uses it to install the
// initial rules; config hot-reload installs a new Matrix through
// SetDefault instead.
func (m *Matrix) Replace(rules []Rule) {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	m.mu.Lock()
	m.rules = cp
	m.mu.Unlock()
}

// Rules returns a copy of the current rule set, most-specific-first.
func (m *Matrix) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]Rule, len(m.rules))
	copy(cp, m.rules)
	return cp
}

// Check evaluates the matrix for (process, dev); unmatched pairs default
// to deny.
func (m *Matrix) Check(process ProcessRole, dev device.Role, deviceName string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.Process == process && r.Device == dev {
			if r.Allow {
				return nil
			}
			return &Error{Process: process, Device: dev, Name: deviceName}
		}
	}
	return &Error{Process: process, Device: dev, Name: deviceName}
}

// defaultMatrix is the process-wide matrix consulted when a tick's
// context carries no explicit override (spec.md §5: "a read-mostly
// global state, set once at startup").
var defaultMatrix atomic.Pointer[Matrix]

func init() {
	defaultMatrix.Store(Default())
}

// SetDefault replaces the process-wide default matrix.
func SetDefault(m *Matrix) { defaultMatrix.Store(m) }

// GetDefault returns the process-wide default matrix.
func GetDefault() *Matrix { return defaultMatrix.Load() }

type currentKey struct{}

type current struct {
	role   ProcessRole
	matrix *Matrix // nil => use GetDefault()
}

// WithCurrentProcess marks ctx as executing inside the given process
// role, the explicit substitute for the source's call-stack walk
// (spec.md §9). State.WithDevice looks this up to find "the innermost
// currently-executing Process".
func WithCurrentProcess(ctx context.Context, role ProcessRole) context.Context {
	c := current{role: role}
	if prev, ok := ctx.Value(currentKey{}).(current); ok {
		c.matrix = prev.matrix
	}
	return context.WithValue(ctx, currentKey{}, c)
}

// WithMatrix overrides the matrix consulted for the remainder of ctx —
// used by tests that want isolation from the process-wide default.
func WithMatrix(ctx context.Context, m *Matrix) context.Context {
	c := current{matrix: m}
	if prev, ok := ctx.Value(currentKey{}).(current); ok {
		c.role = prev.role
	}
	return context.WithValue(ctx, currentKey{}, c)
}

// CurrentProcessRole returns the role of the innermost executing process
// recorded on ctx, if any.
func CurrentProcessRole(ctx context.Context) (ProcessRole, bool) {
	c, ok := ctx.Value(currentKey{}).(current)
	if !ok {
		return 0, false
	}
	return c.role, true
}

// CheckContext checks (current process role, dev) against the matrix
// active on ctx. If no current process is recorded, no check is
// performed — spec.md §4.3's "out-of-tick helpers remain unconstrained".
func CheckContext(ctx context.Context, dev device.Role, deviceName string) error {
	c, ok := ctx.Value(currentKey{}).(current)
	if !ok {
		return nil
	}
	m := c.matrix
	if m == nil {
		m = GetDefault()
	}
	return m.Check(c.role, dev, deviceName)
}
