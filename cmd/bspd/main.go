// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Command bspd is the bootstrap binary: it reads the runtime settings
// file and a bootstrap script, loads the registered scripting modules,
// and starts the event loop.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/drnp/bsp/api"
	"github.com/drnp/bsp/codec/deflatecomp"
	"github.com/drnp/bsp/codec/jsonser"
	"github.com/drnp/bsp/codec/lz4comp"
	"github.com/drnp/bsp/codec/msgpackser"
	"github.com/drnp/bsp/codec/packet"
	"github.com/drnp/bsp/codec/snappycomp"
	"github.com/drnp/bsp/control"
	"github.com/drnp/bsp/internal/obslog"
	"github.com/drnp/bsp/runtime"
	"github.com/drnp/bsp/runtimecfg"
	"github.com/drnp/bsp/script"
	"github.com/drnp/bsp/script/nullvm"
)

var (
	settingsPath  string
	bootstrapPath string
	runtimeDir    string

	stagedScripts []string
	stagedEntry   string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bspd",
		Short: "bsp network application server core",
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to the runtime settings JSON file")
	root.PersistentFlags().StringVar(&bootstrapPath, "bootstrap", "", "path to the bootstrap script")
	root.PersistentFlags().StringVar(&runtimeDir, "runtime-dir", "/var/run/bsp", "directory for the PID file")
	root.PersistentFlags().StringArrayVar(&stagedScripts, "load-script", nil, "stage an additional script module before the loop starts (repeatable; the flag form of bsp_load_script)")
	root.PersistentFlags().StringVar(&stagedEntry, "entry", "", "override the default on_data entry point (the flag form of bsp_set_entry)")

	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "load settings and the bootstrap script, then start the event loop",
		RunE:  runE,
	}
}

func runE(cmd *cobra.Command, args []string) error {
	if settingsPath == "" {
		return fmt.Errorf("bspd: --settings is required")
	}
	if bootstrapPath == "" {
		return fmt.Errorf("bspd: --bootstrap is required")
	}

	loader, err := runtimecfg.Load(settingsPath)
	if err != nil {
		return err
	}
	cfg := loader.Current()

	var logWriter = os.Stdout
	log := obslog.New(logWriter, logrus.InfoLevel)
	if cfg.Global.EnableLog {
		f, ferr := obslog.OpenLogFile(cfg.Global.LogDir, fmt.Sprint(cfg.Global.InstanceID), time.Now())
		if ferr != nil {
			return ferr
		}
		log = obslog.New(f, logrus.InfoLevel)
	}

	codec := &packet.Codec{
		Serializers:  newSerializerRegistry(),
		Compressors:  newCompressorRegistry(),
	}

	rt, err := runtime.New(cfg.Global.InstanceID, cfg.Global.StaticWorkers, log, codec)
	if err != nil {
		return err
	}
	rt.Metrics = control.NewMetrics(prometheus.DefaultRegisterer)

	probes := control.NewDebugProbes(log.Writer())
	probes.SetOutput(cfg.Global.DebugOutput)
	probes.SetConnectorInput(cfg.Global.DebugConnectorInput)
	rt.Probes = probes

	interp := nullvm.New()
	bootstrap, err := os.ReadFile(bootstrapPath)
	if err != nil {
		return fmt.Errorf("bspd: read bootstrap script: %w", err)
	}
	if err := interp.LoadScript(bootstrap); err != nil {
		return fmt.Errorf("bspd: load bootstrap: %w", err)
	}
	if err := script.InstallAll(interp); err != nil {
		return err
	}
	for _, mod := range cfg.Modules {
		b, err := os.ReadFile(mod)
		if err != nil {
			return fmt.Errorf("bspd: read module %s: %w", mod, err)
		}
		if err := interp.LoadScript(b); err != nil {
			return fmt.Errorf("bspd: load module %s: %w", mod, err)
		}
	}

	// Modules staged through --load-script load after the configured
	// ones, in staging order; a running script can stage more through the
	// bsp_load_script host binding.
	for _, path := range stagedScripts {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("bspd: read staged script %s: %w", path, err)
		}
		if err := interp.LoadScript(b); err != nil {
			return fmt.Errorf("bspd: load staged script %s: %w", path, err)
		}
	}

	dataEntry := "on_data"
	if stagedEntry != "" {
		dataEntry = stagedEntry
	}
	entries := script.NewSyncEventTable(map[string]string{
		script.EventConnect: "on_connect",
		script.EventData:    dataEntry,
		script.EventClose:   "on_close",
	})
	bindHostFuncs(interp, entries, log)

	for name, sc := range cfg.Servers {
		srv, serr := buildServer(name, sc, codec, interp, entries)
		if serr != nil {
			return serr
		}
		if err := rt.AddServer(srv); err != nil {
			return fmt.Errorf("bspd: add server %s: %w", name, err)
		}
	}

	loader.OnChange(func(s *runtimecfg.Settings) {
		probes.SetOutput(s.Global.DebugOutput)
		probes.SetConnectorInput(s.Global.DebugConnectorInput)
		log.Info("runtime settings reloaded")
	})
	loader.Watch()

	if err := rt.WritePIDFile(runtimeDir); err != nil {
		return err
	}
	rt.InstallSignalHandlers(
		func() { log.Info("SIGUSR1 received") },
		func() { log.Info("SIGUSR2 received") },
		func() { log.Info("SIGTSTP received") },
	)

	log.WithField("servers", len(cfg.Servers)).Info("bsp runtime starting")
	rt.Start()
	return nil
}

// bindHostFuncs exposes the staging surface to running scripts, matching
// the host-callable globals a real embedded interpreter installs:
// bsp_load_script(path) loads another module into the live interpreter,
// bsp_set_entry(name) rebinds the data entry point for every server
// sharing the event table.
func bindHostFuncs(interp script.Interpreter, entries *script.SyncEventTable, log *logrus.Logger) {
	hb, ok := interp.(script.HostBinder)
	if !ok {
		return
	}
	hb.BindHost("bsp_load_script", func(params []api.Value) error {
		path, ok := paramString(params)
		if !ok {
			return fmt.Errorf("bsp_load_script: want a path string")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("bsp_load_script: read %s: %w", path, err)
		}
		if err := interp.LoadScript(b); err != nil {
			return fmt.Errorf("bsp_load_script: load %s: %w", path, err)
		}
		log.WithField("path", path).Info("script module loaded")
		return nil
	})
	hb.BindHost("bsp_set_entry", func(params []api.Value) error {
		name, ok := paramString(params)
		if !ok {
			return fmt.Errorf("bsp_set_entry: want an entry name")
		}
		entries.Set(script.EventData, name)
		log.WithField("entry", name).Info("data entry point rebound")
		return nil
	})
}

// paramString pulls the first parameter out as a string, accepting either
// byte-string kind.
func paramString(params []api.Value) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	v := params[0]
	if v.Kind != api.ValueBytes && v.Kind != api.ValueOwnedBytes {
		return "", false
	}
	return string(v.Bytes), true
}

func newSerializerRegistry() *packet.SerializerRegistry {
	r := packet.NewSerializerRegistry()
	r.Register(jsonser.New())
	r.Register(msgpackser.New())
	return r
}

func newCompressorRegistry() *packet.CompressorRegistry {
	r := packet.NewCompressorRegistry()
	r.Register(deflatecomp.New())
	r.Register(lz4comp.New())
	r.Register(snappycomp.New())
	return r
}

// buildServer translates one "servers" entry of the settings document
// into a listening runtime.Server, wired to the shared codec and
// interpreter and given an entry-table with the conventional names.
func buildServer(name string, sc runtimecfg.Server, codec *packet.Codec, interp *nullvm.Interpreter, entries script.EventTable) (*runtime.Server, error) {
	inet := api.AFInet4
	switch sc.Inet {
	case "ipv6":
		inet = api.AFInet6
	case "local":
		inet = api.AFLocal
	}
	sock := api.SockStream
	if sc.Sock == "udp" {
		sock = api.SockDgram
	}

	fd, err := runtime.Listen(inet, sock, sc.Addr, sc.Port)
	if err != nil {
		return nil, fmt.Errorf("bspd: listen %s: %w", name, err)
	}

	srv := runtime.NewServer(name, fd)
	if sc.DebugInput || sc.DebugOutput {
		p := control.NewDebugProbes(os.Stdout)
		p.SetInput(sc.DebugInput)
		p.SetOutput(sc.DebugOutput)
		srv.Probes = p
	}
	srv.Sock = sock
	srv.Inet = inet
	srv.MaxClients = sc.MaxClients
	srv.MaxPacketLength = sc.MaxPacketLength
	srv.HeartbeatCheck = sc.HeartbeatCheck
	srv.WebSocket = sc.WebSocket
	srv.Codec = codec
	srv.Interpreter = interp
	srv.EventTable = entries

	if sc.WebSocket {
		srv.DefaultClientType = api.ClientTypeWebSocketHandshake
	} else {
		srv.DefaultClientType = api.ClientTypeData
	}
	if sc.DataType == "stream" {
		srv.DefaultDataType = api.DataTypeStream
	} else {
		srv.DefaultDataType = api.DataTypePacket
	}
	return srv, nil
}
