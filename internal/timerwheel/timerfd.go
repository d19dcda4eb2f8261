//go:build linux
// +build linux

// File: internal/timerwheel/timerfd.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Timer service: one timerfd per Timer, registered in the fd registry as
// api.KindTimer and dispatched to a worker like any other fd, so timer
// expirations flow through the same readiness loop as socket I/O.

package timerwheel

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// OnTick fires once per readiness event regardless of the timerfd's
// expiration counter. OnStop fires exactly once
// when the loop count is exhausted.
type OnTick func()
type OnStop func()

// Loop describes the perpetual/finite repeat count.
type Loop struct {
	Finite    bool
	Remaining int64
}

// Infinite returns a Loop that never exhausts.
func Infinite() Loop { return Loop{Finite: false} }

// Times returns a Loop that fires n times before OnStop.
func Times(n int64) Loop { return Loop{Finite: true, Remaining: n} }

// Timer wraps one timerfd and its callbacks.
type Timer struct {
	FD int

	mu      sync.Mutex
	loop    Loop
	onTick  OnTick
	onStop  OnStop
	stopped bool
}

// New arms a non-blocking, close-on-exec timerfd with initial delay and
// interval both equal to d, repeating per loop.
func New(d time.Duration, loop Loop, onTick OnTick, onStop OnStop) (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("timerwheel: timerfd_create: %w", err)
	}
	spec := durationToSpec(d)
	its := &unix.ItimerSpec{Value: spec, Interval: spec}
	if err := unix.TimerfdSettime(fd, 0, its, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("timerwheel: timerfd_settime: %w", err)
	}
	return &Timer{FD: fd, loop: loop, onTick: onTick, onStop: onStop}, nil
}

func durationToSpec(d time.Duration) unix.Timespec {
	if d <= 0 {
		d = time.Millisecond
	}
	return unix.NsecToTimespec(d.Nanoseconds())
}

// OnReadiness is invoked by the worker loop when the timerfd is readable.
// It drains the 8-byte expiration counter, fires OnTick exactly once
//,
// decrements a finite loop, and fires OnStop + returns true ("timer
// exhausted, caller should free it") when the loop reaches zero.
func (t *Timer) OnReadiness() (exhausted bool) {
	var buf [8]byte
	_, err := unix.Read(t.FD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return false
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true
	}
	cb := t.onTick
	t.mu.Unlock()
	if cb != nil {
		cb()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return true
	}
	if t.loop.Finite {
		t.loop.Remaining--
		if t.loop.Remaining <= 0 {
			t.stopped = true
			onStop := t.onStop
			t.mu.Unlock()
			if onStop != nil {
				onStop()
			}
			t.mu.Lock()
			return true
		}
	}
	return false
}

// Stop rearms the timerfd with an all-zero spec so the next tick never
// arrives, and marks the timer stopped.
func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	var zero unix.ItimerSpec
	return unix.TimerfdSettime(t.FD, 0, &zero, nil)
}

// Close releases the timerfd. Safe to call after Stop.
func (t *Timer) Close() error {
	return unix.Close(t.FD)
}
