package script

import (
	"testing"

	"github.com/drnp/bsp/api"
)

type recordingInterp struct {
	loaded [][]byte
}

func (r *recordingInterp) LoadScript(b []byte) error {
	r.loaded = append(r.loaded, b)
	return nil
}
func (r *recordingInterp) NewCoroutine() (CoroutineRef, error) { return 1, nil }
func (r *recordingInterp) ReleaseCoroutine(CoroutineRef)       {}
func (r *recordingInterp) Call(CoroutineRef, string, []api.Value) (CallStatus, error) {
	return CallOK, nil
}

func TestInstallAllLoadsInNameOrder(t *testing.T) {
	Register(Module{Name: "zz-order-b", Bytecode: []byte("b")})
	Register(Module{Name: "aa-order-a", Bytecode: []byte("a")})

	interp := &recordingInterp{}
	if err := InstallAll(interp); err != nil {
		t.Fatalf("InstallAll: %v", err)
	}

	var a, b int = -1, -1
	for i, body := range interp.loaded {
		switch string(body) {
		case "a":
			a = i
		case "b":
			b = i
		}
	}
	if a < 0 || b < 0 || a > b {
		t.Fatalf("expected name-ordered load, got a=%d b=%d", a, b)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register(Module{Name: "dup-module"})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register(Module{Name: "dup-module"})
}

func TestBindHookRuns(t *testing.T) {
	bound := false
	Register(Module{Name: "bind-hook", Bind: func(Interpreter) error {
		bound = true
		return nil
	}})
	if err := InstallAll(&recordingInterp{}); err != nil {
		t.Fatalf("InstallAll: %v", err)
	}
	if !bound {
		t.Fatalf("expected Bind to run during InstallAll")
	}
}
