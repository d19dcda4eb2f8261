// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// File: runtime/online.go
//
// Runtime-level online-registry operations: Put/Remove keep the
// Client's back-pointer and the registry entry's bind consistent under
// one lock sequence, so a lookup by either side always agrees with the
// other.

package runtime

import (
	"github.com/drnp/bsp/online"
)

// PutOnline upserts an online entry for c under key (a generated key when
// empty) and installs the back-pointer on both the Client and the fd
// registry slot.
func (rt *Runtime) PutOnline(c *Client, key string) *online.Entry {
	// Re-binding a key to a new fd must drop the previous Client's
	// back-pointer first, or invariant (b) breaks for the old holder.
	if prev, err := rt.Online.GetByKey(key); err == nil {
		if old, ok := prev.Client.(*Client); ok && old != c {
			old.OnlineEntry = nil
		}
	}
	e := rt.Online.Put(key, c.FD, c)
	c.OnlineEntry = e
	rt.Registry.SetOnline(c.FD, e)
	if rt.Metrics != nil {
		rt.Metrics.ClientsOnline.Set(float64(rt.Online.Count()))
	}
	return e
}

// RemoveOnlineByFD unlinks the entry bound to fd and clears the Client's
// back-pointer in the same step.
func (rt *Runtime) RemoveOnlineByFD(fd int) {
	e, err := rt.Online.GetByFD(fd)
	if err != nil {
		return
	}
	rt.Online.RemoveByFD(fd)
	rt.clearOnlineBackPointer(e)
}

// RemoveOnlineByKey is the symmetric removal.
func (rt *Runtime) RemoveOnlineByKey(key string) {
	e, err := rt.Online.GetByKey(key)
	if err != nil {
		return
	}
	rt.Online.RemoveByKey(key)
	rt.clearOnlineBackPointer(e)
}

func (rt *Runtime) clearOnlineBackPointer(e *online.Entry) {
	if c, ok := e.Client.(*Client); ok {
		c.OnlineEntry = nil
	}
	rt.Registry.SetOnline(e.FD, nil)
	if rt.Metrics != nil {
		rt.Metrics.ClientsOnline.Set(float64(rt.Online.Count()))
	}
}
