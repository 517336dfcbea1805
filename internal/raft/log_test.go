/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package raft

import "testing"

func TestLogAppendEnforcesOrder(t *testing.T) {
	l := NewLog()

	if !l.Append(LogEntry{Term: 1, Index: 1}) {
		t.Fatal("expected first append at index 1 to succeed")
	}
	if l.Append(LogEntry{Term: 1, Index: 3}) {
		t.Fatal("expected out-of-order append to fail")
	}
	if !l.Append(LogEntry{Term: 1, Index: 2}) {
		t.Fatal("expected sequential append to succeed")
	}

	if got := l.LastIndex(); got != 2 {
		t.Fatalf("LastIndex() = %d, want 2", got)
	}
	if got := l.LastTerm(); got != 1 {
		t.Fatalf("LastTerm() = %d, want 1", got)
	}
}

func TestLogGetAndTermAt(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1, Index: 1})
	l.Append(LogEntry{Term: 2, Index: 2})

	if _, ok := l.Get(0); ok {
		t.Error("Get(0) should never be present")
	}
	if _, ok := l.Get(3); ok {
		t.Error("Get(3) should be absent in a 2-entry log")
	}
	if term := l.TermAt(2); term != 2 {
		t.Errorf("TermAt(2) = %d, want 2", term)
	}
	if term := l.TermAt(5); term != 0 {
		t.Errorf("TermAt(5) = %d, want 0", term)
	}
}

func TestLogMergeRejectsOnPrevMismatch(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1, Index: 1})

	ok := l.Merge(1, 2 /* wrong prevTerm */, []LogEntry{{Term: 1, Index: 2}})
	if ok {
		t.Fatal("expected merge to fail on prevLogTerm mismatch")
	}
	if l.LastIndex() != 1 {
		t.Fatalf("log should be unchanged after rejected merge, LastIndex() = %d", l.LastIndex())
	}
}

func TestLogMergeTruncatesConflictingSuffix(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1, Index: 1})
	l.Append(LogEntry{Term: 1, Index: 2})
	l.Append(LogEntry{Term: 1, Index: 3})

	// A leader from term 2 overwrites index 2 onward.
	ok := l.Merge(1, 1, []LogEntry{{Term: 2, Index: 2}, {Term: 2, Index: 3}})
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if l.LastIndex() != 3 {
		t.Fatalf("LastIndex() = %d, want 3", l.LastIndex())
	}
	if term := l.TermAt(2); term != 2 {
		t.Errorf("TermAt(2) = %d, want 2 after conflict truncation", term)
	}
}

func TestLogMergeIsIdempotent(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1, Index: 1})

	entries := []LogEntry{{Term: 1, Index: 2}, {Term: 1, Index: 3}}
	if !l.Merge(1, 1, entries) {
		t.Fatal("first merge should succeed")
	}
	if !l.Merge(1, 1, entries) {
		t.Fatal("retransmitted merge should succeed")
	}
	if l.LastIndex() != 3 {
		t.Fatalf("LastIndex() = %d, want 3 after idempotent retransmission", l.LastIndex())
	}
}

func TestLogEntriesFrom(t *testing.T) {
	l := NewLog()
	for i := uint64(1); i <= 5; i++ {
		l.Append(LogEntry{Term: 1, Index: i})
	}

	got := l.EntriesFrom(3)
	if len(got) != 3 {
		t.Fatalf("EntriesFrom(3) returned %d entries, want 3", len(got))
	}
	if got[0].Index != 3 {
		t.Errorf("EntriesFrom(3)[0].Index = %d, want 3", got[0].Index)
	}

	if got := l.EntriesFrom(10); got != nil {
		t.Errorf("EntriesFrom(10) = %v, want nil", got)
	}
}

func TestLogConflictHintBacksUpToTermStart(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1, Index: 1})
	l.Append(LogEntry{Term: 2, Index: 2})
	l.Append(LogEntry{Term: 2, Index: 3})
	l.Append(LogEntry{Term: 2, Index: 4})

	term, index := l.conflictHint(4)
	if term != 2 {
		t.Errorf("conflictHint(4) term = %d, want 2", term)
	}
	if index != 2 {
		t.Errorf("conflictHint(4) index = %d, want 2 (first index of term 2)", index)
	}
}

func TestLogConflictHintBeyondEnd(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1, Index: 1})

	_, index := l.conflictHint(5)
	if index != 2 {
		t.Errorf("conflictHint(5) index = %d, want 2 (LastIndex+1)", index)
	}
}
