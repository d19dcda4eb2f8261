// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// File: runtime/timer.go
//
// Runtime-level timer creation: each timer is a timerfd registered
// as api.KindTimer, bound to one worker's epoll set and ticked from that
// worker's readiness loop. The worker frees the registration itself when
// a finite loop exhausts (worker.handleTimer), so there is nothing for
// the runtime to reap here.

package runtime

import (
	"time"

	"github.com/drnp/bsp/internal/bsperr"
	"github.com/drnp/bsp/internal/timerwheel"
	"github.com/drnp/bsp/script"
	"github.com/drnp/bsp/worker"
)

// NewTimer arms a timerfd with period d repeating per loop and binds it
// to the given worker (or the least-loaded I/O worker when workerID < 0,
// mirroring socket dispatch). OnTick fires once per readiness event,
// OnStop once when a finite loop exhausts.
func (rt *Runtime) NewTimer(d time.Duration, loop timerwheel.Loop, onTick timerwheel.OnTick, onStop timerwheel.OnStop, workerID int) (*timerwheel.Timer, error) {
	t, err := timerwheel.New(d, loop, onTick, onStop)
	if err != nil {
		return nil, bsperr.IO("runtime.NewTimer", err)
	}

	var w *worker.Worker
	if workerID >= 0 {
		w = rt.Pool.Worker(workerID)
	}
	if w == nil {
		w = rt.Pool.LeastLoaded()
	}
	if err := w.AddTimer(t); err != nil {
		_ = t.Close()
		return nil, bsperr.IO("runtime.NewTimer: bind", err)
	}
	w.Wake()
	rt.refreshFDMetric()
	return t, nil
}

// NewScriptTimer is NewTimer with both callbacks routed into a scripting
// coroutine: on_tick resumes entry once per readiness event, and stopEntry
// (optional) runs once when a finite loop exhausts.
func (rt *Runtime) NewScriptTimer(d time.Duration, loop timerwheel.Loop, interp script.Interpreter, entry, stopEntry string, workerID int) (*timerwheel.Timer, error) {
	ref, err := interp.NewCoroutine()
	if err != nil {
		return nil, bsperr.Script("runtime.NewScriptTimer", err)
	}
	onTick := func() {
		status, _ := interp.Call(ref, entry, nil)
		if status == script.CallFailed && rt.Metrics != nil {
			rt.Metrics.ScriptFailures.Inc()
		}
	}
	onStop := func() {
		if stopEntry != "" {
			status, _ := interp.Call(ref, stopEntry, nil)
			if status == script.CallFailed && rt.Metrics != nil {
				rt.Metrics.ScriptFailures.Inc()
			}
		}
		interp.ReleaseCoroutine(ref)
	}
	t, err := rt.NewTimer(d, loop, onTick, onStop, workerID)
	if err != nil {
		interp.ReleaseCoroutine(ref)
		return nil, err
	}
	return t, nil
}
