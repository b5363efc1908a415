// Package domain holds the entities shared by every RPCP component: positions,
// limits, derived risk rows, alerts, actions, plans, orders, balance
// snapshots and fund jobs. Nothing in this package touches I/O or the clock.
package domain

import "github.com/google/uuid"

// NewID returns a fresh random entity identifier.
//
// Positions are assigned ids by the strategy subsystem (RPCP only holds a
// read/adjust relation to them); every other entity in this package is
// created by RPCP itself and gets its id from here.
func NewID() string {
	return uuid.NewString()
}
