package runtimecfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSettings = `{
 "global": {
   "instance_id": 7,
   "static_workers": 4,
   "log_dir": "/var/log/bsp",
   "enable_log": true,
   "script_dir": "/opt/bsp/scripts",
   "debug_output": false,
   "debug_connector_input": true
 },
 "modules": ["core.mod", "chat.mod"],
 "servers": {
   "gate": {
     "inet": "ipv4", "sock": "tcp",
     "addr": "0.0.0.0", "port": 9517,
     "heartbeat_check": 30, "max_clients": 10000,
     "max_packet_length": 1048576,
     "websocket": true, "data_type": "packet",
     "debug_input": false, "debug_output": true
   }
 }
}`

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bsp.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesFullDocument(t *testing.T) {
	l, err := Load(writeSettings(t, sampleSettings))
	require.NoError(t, err)

	s := l.Current()
	require.Equal(t, 7, s.Global.InstanceID)
	require.Equal(t, 4, s.Global.StaticWorkers)
	require.True(t, s.Global.EnableLog)
	require.True(t, s.Global.DebugConnectorInput)
	require.Equal(t, []string{"core.mod", "chat.mod"}, s.Modules)

	gate, ok := s.Servers["gate"]
	require.True(t, ok)
	require.Equal(t, "ipv4", gate.Inet)
	require.Equal(t, "tcp", gate.Sock)
	require.Equal(t, 9517, gate.Port)
	require.Equal(t, 30, gate.HeartbeatCheck)
	require.Equal(t, 10000, gate.MaxClients)
	require.Equal(t, 1048576, gate.MaxPacketLength)
	require.True(t, gate.WebSocket)
	require.Equal(t, "packet", gate.DataType)
	require.True(t, gate.DebugOutput)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestOnChangeListenerRegistered(t *testing.T) {
	l, err := Load(writeSettings(t, sampleSettings))
	require.NoError(t, err)

	fired := make(chan *Settings, 1)
	l.OnChange(func(s *Settings) { fired <- s })

	require.Len(t, l.listeners, 1)
}
