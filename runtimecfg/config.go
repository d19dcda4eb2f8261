// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package runtimecfg loads the JSON runtime-settings document with
// spf13/viper, watching it for changes with fsnotify and fanning reloads
// out to registered listeners.
package runtimecfg

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Global is the top-level "global" settings block.
type Global struct {
	InstanceID           int    `mapstructure:"instance_id"`
	StaticWorkers        int    `mapstructure:"static_workers"`
	LogDir               string `mapstructure:"log_dir"`
	EnableLog            bool   `mapstructure:"enable_log"`
	ScriptDir            string `mapstructure:"script_dir"`
	DebugOutput          bool   `mapstructure:"debug_output"`
	DebugConnectorInput  bool   `mapstructure:"debug_connector_input"`
}

// Server is one entry of the "servers" map.
type Server struct {
	Inet             string `mapstructure:"inet"`
	Sock             string `mapstructure:"sock"`
	Addr             string `mapstructure:"addr"`
	Port             int    `mapstructure:"port"`
	HeartbeatCheck   int    `mapstructure:"heartbeat_check"`
	MaxClients       int    `mapstructure:"max_clients"`
	MaxPacketLength  int    `mapstructure:"max_packet_length"`
	WebSocket        bool   `mapstructure:"websocket"`
	DataType         string `mapstructure:"data_type"`
	DebugInput       bool   `mapstructure:"debug_input"`
	DebugOutput      bool   `mapstructure:"debug_output"`
}

// Settings is the full runtime settings document.
type Settings struct {
	Global  Global            `mapstructure:"global"`
	Modules []string          `mapstructure:"modules"`
	Servers map[string]Server `mapstructure:"servers"`
}

// OnReload is invoked with the freshly parsed settings after a hot reload.
type OnReload func(*Settings)

// Loader wraps a viper instance bound to one settings file, with fsnotify
// watching enabled (viper.WatchConfig) and a listener fan-out on top of
// viper's own OnConfigChange hook.
type Loader struct {
	v *viper.Viper

	mu        sync.RWMutex
	current   *Settings
	listeners []OnReload
}

// Load reads path once (format inferred by viper from its extension;
// runtime settings documents are JSON) and returns a Loader ready to
// watch it.
func Load(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("runtimecfg: read %s: %w", path, err)
	}
	l := &Loader{v: v}
	s, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	l.current = s
	return l, nil
}

func (l *Loader) unmarshal() (*Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("runtimecfg: unmarshal: %w", err)
	}
	return &s, nil
}

// Current returns the most recently loaded settings snapshot.
func (l *Loader) Current() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a listener invoked after every successful reload.
func (l *Loader) OnChange(fn OnReload) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Watch starts viper's fsnotify-backed file watch and re-parses on every
// write event, fanning the new Settings out to registered listeners. A
// malformed reload is reported on the returned error channel (one pending
// error is buffered; later ones are dropped while it is full) and the
// previous Settings snapshot is kept in place.
func (l *Loader) Watch() <-chan error {
	errs := make(chan error, 1)
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		s, err := l.unmarshal()
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		l.mu.Lock()
		l.current = s
		fns := append([]OnReload(nil), l.listeners...)
		l.mu.Unlock()
		for _, fn := range fns {
			fn(s)
		}
	})
	l.v.WatchConfig()
	return errs
}
