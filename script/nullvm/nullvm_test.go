package nullvm

import (
	"testing"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/script"
)

func TestInvokeDispatchesBoundHostFunc(t *testing.T) {
	interp := New()

	var got string
	interp.BindHost("bsp_set_entry", func(params []api.Value) error {
		got = string(params[0].Bytes)
		return nil
	})

	err := interp.Invoke("bsp_set_entry", []api.Value{api.NewBytesValue([]byte("handle_packet"))})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "handle_packet" {
		t.Fatalf("expected host func to see the script's argument, got %q", got)
	}
}

func TestInvokeUnknownNameFails(t *testing.T) {
	interp := New()
	if err := interp.Invoke("no_such_global", nil); err != api.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInterpreterSatisfiesHostBinder(t *testing.T) {
	var i script.Interpreter = New()
	if _, ok := i.(script.HostBinder); !ok {
		t.Fatalf("expected nullvm to implement script.HostBinder")
	}
}
