// Package controller implements Controller (spec.md §4.9): a Process
// whose role in the permission matrix is Controller, so it may read any
// device in its input bundle but write Actuators only.
package controller

import (
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
)

// New returns a *process.Base tagged with the Controller role. Concrete
// controllers embed the result and set Think (or DoExecute) to compute
// actuator targets.
func New(name string, intervalNs int64) *process.Base {
	return process.NewBase(name, permissions.RoleController, intervalNs)
}
