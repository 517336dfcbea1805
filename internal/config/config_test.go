/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want \":7000\"", c.ListenAddr)
	}
	if c.DataDir != "./data" {
		t.Errorf("DataDir = %q, want \"./data\"", c.DataDir)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want \"info\"", c.LogLevel)
	}
	if c.LogJSON {
		t.Error("LogJSON should default to false")
	}
	if c.Compression != "none" {
		t.Errorf("Compression = %q, want \"none\"", c.Compression)
	}
	if !c.EnablePreVote {
		t.Error("EnablePreVote should default to true")
	}
	if c.HeartbeatIntervalMS != 50 {
		t.Errorf("HeartbeatIntervalMS = %d, want 50", c.HeartbeatIntervalMS)
	}
	if c.ElectionTimeoutMinMS != 150 || c.ElectionTimeoutMaxMS != 300 {
		t.Errorf("election timeouts = (%d, %d), want (150, 300)", c.ElectionTimeoutMinMS, c.ElectionTimeoutMaxMS)
	}
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		c := DefaultConfig()
		c.NodeID = "n1"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"missing node id", func(c *Config) { c.NodeID = "" }, true},
		{"missing listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"invalid compression", func(c *Config) { c.Compression = "bogus" }, true},
		{"zero heartbeat", func(c *Config) { c.HeartbeatIntervalMS = 0 }, true},
		{"election min >= max", func(c *Config) { c.ElectionTimeoutMinMS = 300; c.ElectionTimeoutMaxMS = 300 }, true},
		{"heartbeat >= election min", func(c *Config) { c.HeartbeatIntervalMS = 200 }, true},
		{"malformed peer", func(c *Config) { c.Peers = []string{"no-at-sign"} }, true},
		{"valid peer", func(c *Config) { c.Peers = []string{"n2@10.0.0.2:7000"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raftcore.conf")
	content := `
# raftcore node config
node_id = "n1"
listen_addr = "127.0.0.1:7000"
peer = "n2@127.0.0.1:7001"
peer = "n3@127.0.0.1:7002"
data_dir = "/var/lib/raftcore"
log_level = "debug"
log_json = true
compression = "zstd"
heartbeat_interval_ms = 25
election_timeout_min_ms = 100
election_timeout_max_ms = 200
enable_prevote = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := NewManager()
	if err := m.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	c := m.Get()
	if c.NodeID != "n1" {
		t.Errorf("NodeID = %q, want n1", c.NodeID)
	}
	if len(c.Peers) != 2 || c.Peers[0] != "n2@127.0.0.1:7001" || c.Peers[1] != "n3@127.0.0.1:7002" {
		t.Errorf("Peers = %v, want both peer lines", c.Peers)
	}
	if c.DataDir != "/var/lib/raftcore" {
		t.Errorf("DataDir = %q", c.DataDir)
	}
	if c.LogLevel != "debug" || !c.LogJSON {
		t.Errorf("LogLevel/LogJSON = %q/%v", c.LogLevel, c.LogJSON)
	}
	if c.Compression != "zstd" {
		t.Errorf("Compression = %q, want zstd", c.Compression)
	}
	if c.HeartbeatIntervalMS != 25 || c.ElectionTimeoutMinMS != 100 || c.ElectionTimeoutMaxMS != 200 {
		t.Errorf("timing = %d/%d/%d", c.HeartbeatIntervalMS, c.ElectionTimeoutMinMS, c.ElectionTimeoutMaxMS)
	}
	if c.EnablePreVote {
		t.Error("EnablePreVote should be false per file")
	}
	if c.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", c.ConfigFile, path)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv(EnvNodeID, "n9")
	os.Setenv(EnvListenAddr, "0.0.0.0:9000")
	os.Setenv(EnvLogLevel, "warn")
	os.Setenv(EnvLogJSON, "true")
	defer func() {
		os.Unsetenv(EnvNodeID)
		os.Unsetenv(EnvListenAddr)
		os.Unsetenv(EnvLogLevel)
		os.Unsetenv(EnvLogJSON)
	}()

	m := NewManager()
	m.LoadFromEnv()

	c := m.Get()
	if c.NodeID != "n9" {
		t.Errorf("NodeID = %q, want n9", c.NodeID)
	}
	if c.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q", c.ListenAddr)
	}
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", c.LogLevel)
	}
	if !c.LogJSON {
		t.Error("LogJSON should be true")
	}
}

func TestConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raftcore.conf")
	os.WriteFile(path, []byte(`node_id = "file-node"`+"\n"), 0o644)

	os.Setenv(EnvNodeID, "env-node")
	defer os.Unsetenv(EnvNodeID)

	m := NewManager()
	if err := m.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	m.LoadFromEnv()

	if got := m.Get().NodeID; got != "env-node" {
		t.Errorf("NodeID = %q, want env-node (env should win over file)", got)
	}
}

func TestToTOML(t *testing.T) {
	c := DefaultConfig()
	c.NodeID = "n1"
	c.Peers = []string{"n2@host:7000"}
	c.JoinToken = "super-secret"

	out := c.ToTOML()
	for _, want := range []string{`node_id = "n1"`, `peer = "n2@host:7000"`, `listen_addr = ":7000"`} {
		if !strings.Contains(out, want) {
			t.Errorf("ToTOML() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "super-secret") {
		t.Error("ToTOML() must never include JoinToken")
	}
}

func TestSaveToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "raftcore.conf")

	c := DefaultConfig()
	c.NodeID = "n1"
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	m := NewManager()
	if err := m.LoadFromFile(path); err != nil {
		t.Fatalf("reload saved file: %v", err)
	}
	if got := m.Get().NodeID; got != "n1" {
		t.Errorf("NodeID after save/reload = %q, want n1", got)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raftcore.conf")
	os.WriteFile(path, []byte(`node_id = "n1"`+"\n"), 0o644)

	m := NewManager()
	if err := m.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	var seen *Config
	m.OnReload(func(c *Config) { seen = c })

	os.WriteFile(path, []byte(`node_id = "n1-updated"`+"\n"), 0o644)
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if m.Get().NodeID != "n1-updated" {
		t.Errorf("NodeID after reload = %q, want n1-updated", m.Get().NodeID)
	}
	if seen == nil || seen.NodeID != "n1-updated" {
		t.Error("OnReload callback should observe the reloaded config")
	}
}

func TestReloadWithoutFileFails(t *testing.T) {
	m := NewManager()
	if err := m.Reload(); err == nil {
		t.Error("Reload() without a prior LoadFromFile should error")
	}
}

func TestGlobalManager(t *testing.T) {
	g1 := Global()
	g2 := Global()
	if g1 != g2 {
		t.Error("Global() should return the same Manager instance")
	}
}

func TestConfigString(t *testing.T) {
	c := DefaultConfig()
	c.NodeID = "n1"
	s := c.String()
	if !strings.Contains(s, "n1") || !strings.Contains(s, "ListenAddr") {
		t.Errorf("String() = %q, missing expected content", s)
	}
}
