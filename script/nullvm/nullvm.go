// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package nullvm is a deterministic fake script.Interpreter with no real
// scripting runtime behind it: every Call on a live coroutine returns
// CallOK and records its invocation; a Call on an unknown or released
// coroutine returns CallFailed with api.ErrNotFound. It exists so the core, worker pool, and runtime assembly can
// be exercised end-to-end (tests, the default bsp_load_script staging
// surface) without depending on an actual embedded interpreter, which is
// out of scope.
package nullvm

import (
	"sync"
	"sync/atomic"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/script"
)

// Call is one recorded invocation, kept for assertions in tests.
type Call struct {
	Ref    script.CoroutineRef
	Entry  string
	Params []api.Value
}

// Interpreter is the fake per-worker interpreter.
type Interpreter struct {
	mu        sync.Mutex
	nextRef   uint64
	loaded    [][]byte
	coroutines map[script.CoroutineRef]bool
	calls     []Call
	hostFns   map[string]script.HostFunc
}

// New returns an empty fake interpreter.
func New() *Interpreter {
	return &Interpreter{
		coroutines: make(map[script.CoroutineRef]bool),
		hostFns:    make(map[string]script.HostFunc),
	}
}

// BindHost implements script.HostBinder: a real interpreter would install
// fn as a script-callable global named name; the fake just records it so
// Invoke can dispatch.
func (i *Interpreter) BindHost(name string, fn script.HostFunc) {
	i.mu.Lock()
	i.hostFns[name] = fn
	i.mu.Unlock()
}

// Invoke calls a bound host function the way a running script would
// (bsp_load_script, bsp_set_entry). Unknown names return api.ErrNotFound.
func (i *Interpreter) Invoke(name string, params []api.Value) error {
	i.mu.Lock()
	fn, ok := i.hostFns[name]
	i.mu.Unlock()
	if !ok {
		return api.ErrNotFound
	}
	return fn(params)
}

func (i *Interpreter) LoadScript(bytes []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	cp := make([]byte, len(bytes))
	copy(cp, bytes)
	i.loaded = append(i.loaded, cp)
	return nil
}

func (i *Interpreter) NewCoroutine() (script.CoroutineRef, error) {
	ref := script.CoroutineRef(atomic.AddUint64(&i.nextRef, 1))
	i.mu.Lock()
	i.coroutines[ref] = true
	i.mu.Unlock()
	return ref, nil
}

func (i *Interpreter) ReleaseCoroutine(ref script.CoroutineRef) {
	i.mu.Lock()
	delete(i.coroutines, ref)
	i.mu.Unlock()
}

func (i *Interpreter) Call(ref script.CoroutineRef, entry string, params []api.Value) (script.CallStatus, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.coroutines[ref] {
		return script.CallFailed, api.ErrNotFound
	}
	i.calls = append(i.calls, Call{Ref: ref, Entry: entry, Params: params})
	return script.CallOK, nil
}

// Calls returns every recorded invocation so far, for test assertions.
func (i *Interpreter) Calls() []Call {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Call, len(i.calls))
	copy(out, i.calls)
	return out
}

// LoadedScripts returns every byte slice passed to LoadScript, for test
// assertions about bootstrap/module staging order.
func (i *Interpreter) LoadedScripts() [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([][]byte, len(i.loaded))
	copy(out, i.loaded)
	return out
}
