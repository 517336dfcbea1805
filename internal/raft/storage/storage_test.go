/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import (
	"bytes"
	"testing"

	"raftcore/internal/compression"
	"raftcore/internal/raft"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	cfg := compression.DefaultConfig()
	cfg.MinSize = 0 // exercise the compression path even for tiny test fixtures
	s, err := NewFileStore(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestTermAndVoteRoundTrip(t *testing.T) {
	s := newTestStore(t)

	term, votedFor, err := s.LoadTermAndVote()
	if err != nil {
		t.Fatalf("LoadTermAndVote on fresh store: %v", err)
	}
	if term != 0 || votedFor != "" {
		t.Fatalf("fresh store should report (0, \"\"), got (%d, %q)", term, votedFor)
	}

	if err := s.SaveTermAndVote(7, "n2"); err != nil {
		t.Fatalf("SaveTermAndVote: %v", err)
	}

	term, votedFor, err = s.LoadTermAndVote()
	if err != nil {
		t.Fatalf("LoadTermAndVote: %v", err)
	}
	if term != 7 || votedFor != "n2" {
		t.Fatalf("LoadTermAndVote() = (%d, %q), want (7, \"n2\")", term, votedFor)
	}
}

func TestLogAppendAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	entries := []raft.LogEntry{
		{Term: 1, Index: 1, Command: []byte("set x 1")},
		{Term: 1, Index: 2, Command: []byte("set y 2")},
		{Term: 2, Index: 3, Noop: true},
	}
	if err := s.AppendEntries(entries); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	loaded, err := s.LoadLog()
	if err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("LoadLog() returned %d entries, want 3", len(loaded))
	}
	for i, e := range loaded {
		want := entries[i]
		if e.Term != want.Term || e.Index != want.Index || e.Noop != want.Noop || !bytes.Equal(e.Command, want.Command) {
			t.Errorf("entry %d = %+v, want %+v", i, e, want)
		}
	}
}

func TestLogTruncateFrom(t *testing.T) {
	s := newTestStore(t)
	s.AppendEntries([]raft.LogEntry{
		{Term: 1, Index: 1},
		{Term: 1, Index: 2},
		{Term: 1, Index: 3},
	})

	if err := s.TruncateLogFrom(2); err != nil {
		t.Fatalf("TruncateLogFrom: %v", err)
	}

	loaded, err := s.LoadLog()
	if err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("LoadLog() returned %d entries after truncation, want 1", len(loaded))
	}
}

func TestAppendEntriesOverwritesConflictingTail(t *testing.T) {
	s := newTestStore(t)
	s.AppendEntries([]raft.LogEntry{
		{Term: 1, Index: 1},
		{Term: 1, Index: 2},
		{Term: 1, Index: 3},
	})

	// A new leader's entry at index 2 with a different term must truncate
	// what followed it, mirroring raft.Log.Merge's in-memory behavior.
	if err := s.AppendEntries([]raft.LogEntry{{Term: 2, Index: 2}}); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	loaded, err := s.LoadLog()
	if err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadLog() returned %d entries, want 2 after conflicting overwrite", len(loaded))
	}
	if loaded[1].Term != 2 {
		t.Errorf("loaded[1].Term = %d, want 2", loaded[1].Term)
	}
}

func TestClearWipesState(t *testing.T) {
	s := newTestStore(t)
	s.SaveTermAndVote(3, "n1")
	s.AppendEntries([]raft.LogEntry{{Term: 1, Index: 1}})

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	term, votedFor, _ := s.LoadTermAndVote()
	if term != 0 || votedFor != "" {
		t.Errorf("term/vote not cleared: (%d, %q)", term, votedFor)
	}
	log, _ := s.LoadLog()
	if len(log) != 0 {
		t.Errorf("log not cleared: %d entries remain", len(log))
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := compression.DefaultConfig()
	cfg.MinSize = 0

	s1, err := NewFileStore(dir, cfg)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s1.SaveTermAndVote(4, "n3")
	s1.AppendEntries([]raft.LogEntry{{Term: 4, Index: 1, Command: []byte("cmd")}})

	s2, err := NewFileStore(dir, cfg)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	term, votedFor, err := s2.LoadTermAndVote()
	if err != nil || term != 4 || votedFor != "n3" {
		t.Fatalf("LoadTermAndVote() after reopen = (%d, %q, %v), want (4, n3, nil)", term, votedFor, err)
	}
	log, err := s2.LoadLog()
	if err != nil || len(log) != 1 {
		t.Fatalf("LoadLog() after reopen = (%v, %v), want 1 entry", log, err)
	}
}
