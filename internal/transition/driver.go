// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transition

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled call.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// RealScheduler schedules with time.AfterFunc.
type RealScheduler struct{}

// AfterFunc implements Scheduler.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Driver ticks a Machine on a Scheduler until it returns to idle.
type Driver struct {
	mu      sync.Mutex
	machine *Machine
	sched   Scheduler
	pending Stopper
}

// NewDriver creates a driver. A nil scheduler uses RealScheduler.
func NewDriver(m *Machine, sched Scheduler) *Driver {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Driver{machine: m, sched: sched}
}

// Machine returns the driven machine.
func (d *Driver) Machine() *Machine {
	return d.machine
}

// Start restarts the machine and schedules its first tick.
func (d *Driver) Start(newID, parentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.machine.Start(newID, parentID)
	d.scheduleLocked()
}

// Stop cancels the pending tick, leaving the machine where it is.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Driver) stopLocked() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}

func (d *Driver) scheduleLocked() {
	delay := d.machine.Delay()
	if delay <= 0 {
		d.pending = nil
		return
	}
	gen := d.machine.Generation()
	d.pending = d.sched.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Driver) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, moved := d.machine.TickIf(gen); !moved {
		return
	}
	d.scheduleLocked()
}
