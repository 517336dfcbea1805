/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package raft

// LogEntry is an immutable record created exclusively by a leader. Entries
// are never mutated once appended; a follower may only truncate them away
// during conflict resolution (spec.md §3, §4.1).
type LogEntry struct {
	Term    uint64
	Index   uint64 // 1-based
	Command []byte
	Noop    bool // marks a no-op entry, skipped by DrainApplicable; nothing in this package sets it
}

// Log is an ordered, 1-based sequence of LogEntry values, enforcing the Log
// Matching property (I3) at merge time.
type Log struct {
	entries []LogEntry // entries[0] is index 1
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// LastIndex returns the index of the last entry, or 0 if the log is empty.
func (l *Log) LastIndex() uint64 {
	return uint64(len(l.entries))
}

// LastTerm returns the term of the last entry, or 0 if the log is empty.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// Get returns the entry at index (1-based), and whether it was present.
// Index 0 always yields (LogEntry{}, false).
func (l *Log) Get(index uint64) (LogEntry, bool) {
	if index == 0 || index > uint64(len(l.entries)) {
		return LogEntry{}, false
	}
	return l.entries[index-1], true
}

// TermAt returns the term at index, or 0 if absent.
func (l *Log) TermAt(index uint64) uint64 {
	e, ok := l.Get(index)
	if !ok {
		return 0
	}
	return e.Term
}

// Append is leader-only: entry.Index must equal LastIndex()+1 (I4, Leader
// Append-Only -- a leader never overwrites or deletes its own entries).
func (l *Log) Append(entry LogEntry) bool {
	if entry.Index != l.LastIndex()+1 {
		return false
	}
	l.entries = append(l.entries, entry)
	return true
}

// EntriesFrom returns a copy of every entry with index >= from.
func (l *Log) EntriesFrom(from uint64) []LogEntry {
	if from == 0 {
		from = 1
	}
	if from > uint64(len(l.entries)) {
		return nil
	}
	out := make([]LogEntry, len(l.entries)-int(from)+1)
	copy(out, l.entries[from-1:])
	return out
}

// Merge is the follower-side half of Log Matching (spec.md §4.1). It first
// verifies the receiver has an entry at prevIndex whose term equals
// prevTerm (or prevIndex == 0); if that check fails the merge is refused.
// Otherwise, for each incoming entry in order, it truncates any existing
// entry at the same index whose term differs (and everything after it),
// then appends the incoming entry if not already present. The operation is
// idempotent under retransmission of an identical AppendEntries.
func (l *Log) Merge(prevIndex, prevTerm uint64, entries []LogEntry) bool {
	if prevIndex > 0 {
		existing, ok := l.Get(prevIndex)
		if !ok || existing.Term != prevTerm {
			return false
		}
	}

	for i, incoming := range entries {
		idx := prevIndex + 1 + uint64(i)
		if existing, ok := l.Get(idx); ok {
			if existing.Term == incoming.Term {
				continue // already present, retransmission -- idempotent
			}
			l.truncateFrom(idx)
		}
		l.entries = append(l.entries, incoming)
	}
	return true
}

// truncateFrom removes every entry with index >= index.
func (l *Log) truncateFrom(index uint64) {
	if index == 0 || index > uint64(len(l.entries)) {
		return
	}
	l.entries = l.entries[:index-1]
}

// conflictHint returns (conflictTerm, conflictIndex) for a failed match at
// prevIndex: the term of the entry at prevIndex (if any) and the first
// index of that term, so a leader can back up next_index faster than one
// step per round trip (spec.md §4.4's optional optimization).
func (l *Log) conflictHint(prevIndex uint64) (term uint64, index uint64) {
	if prevIndex == 0 || prevIndex > uint64(len(l.entries)) {
		return 0, l.LastIndex() + 1
	}
	term = l.entries[prevIndex-1].Term
	index = prevIndex
	for index > 1 && l.entries[index-2].Term == term {
		index--
	}
	return term, index
}

// replace overwrites the log wholesale; used when restoring from durable
// storage at startup.
func (l *Log) replace(entries []LogEntry) {
	l.entries = append([]LogEntry(nil), entries...)
}

// all returns every entry in the log, in order. Used only by the host to
// persist/inspect the full log; callers must not mutate the result.
func (l *Log) all() []LogEntry {
	return l.entries
}
