// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package script

import (
	"fmt"
	"sort"
	"sync"
)

// Module is one statically-compiled scripting module: optional bytecode
// loaded into every interpreter at boot, plus an optional Bind hook that
// installs the module's callable bindings (the single-binary replacement
// for dlopen-per-module loading).
type Module struct {
	Name     string
	Bytecode []byte
	Bind     func(Interpreter) error
}

var (
	regMu   sync.Mutex
	regMods = map[string]Module{}
)

// Register adds a module to the static registration table, typically from
// an init function in the module's own package. Registering the same name
// twice panics, matching the driver-registration discipline.
func Register(m Module) {
	regMu.Lock()
	defer regMu.Unlock()
	if m.Name == "" {
		panic("script: Register with empty module name")
	}
	if _, dup := regMods[m.Name]; dup {
		panic("script: Register called twice for module " + m.Name)
	}
	regMods[m.Name] = m
}

// Modules returns every registered module sorted by name, so boot order
// is deterministic across runs.
func Modules() []Module {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]Module, 0, len(regMods))
	for _, m := range regMods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InstallAll loads every registered module's bytecode into interp and runs
// its Bind hook, in name order. Called once per interpreter at startup,
// after the bootstrap script.
func InstallAll(interp Interpreter) error {
	for _, m := range Modules() {
		if len(m.Bytecode) > 0 {
			if err := interp.LoadScript(m.Bytecode); err != nil {
				return fmt.Errorf("script: load module %s: %w", m.Name, err)
			}
		}
		if m.Bind != nil {
			if err := m.Bind(interp); err != nil {
				return fmt.Errorf("script: bind module %s: %w", m.Name, err)
			}
		}
	}
	return nil
}
