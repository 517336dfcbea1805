/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

import (
	"testing"

	"raftcore/internal/raft"
)

func TestPreVoteRequestEncodeDecode(t *testing.T) {
	original := &raft.PreVoteRequest{Term: 5, CandidateID: "n2", LastLogIndex: 10, LastLogTerm: 4}

	decoded, err := DecodePreVoteRequest(EncodePreVoteRequest(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestPreVoteResponseEncodeDecode(t *testing.T) {
	original := &raft.PreVoteResponse{Term: 5, VoteGranted: true, From: "n3"}

	decoded, err := DecodePreVoteResponse(EncodePreVoteResponse(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestVoteRequestEncodeDecode(t *testing.T) {
	original := &raft.VoteRequest{Term: 7, CandidateID: "n1", LastLogIndex: 20, LastLogTerm: 6}

	decoded, err := DecodeVoteRequest(EncodeVoteRequest(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestVoteResponseEncodeDecode(t *testing.T) {
	original := &raft.VoteResponse{Term: 7, VoteGranted: false, From: "n2", Reason: "already voted"}

	decoded, err := DecodeVoteResponse(EncodeVoteResponse(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestAppendEntriesEncodeDecode(t *testing.T) {
	original := &raft.AppendEntries{
		Term:         3,
		LeaderID:     "n1",
		PrevLogIndex: 4,
		PrevLogTerm:  2,
		LeaderCommit: 4,
		Entries: []raft.LogEntry{
			{Term: 3, Index: 5, Command: []byte("set x 1")},
			{Term: 3, Index: 6, Noop: false, Command: []byte("set y 2")},
		},
	}

	decoded, err := DecodeAppendEntries(EncodeAppendEntries(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Term != original.Term || decoded.LeaderID != original.LeaderID {
		t.Errorf("header mismatch: got %+v", decoded)
	}
	if len(decoded.Entries) != len(original.Entries) {
		t.Fatalf("got %d entries, want %d", len(decoded.Entries), len(original.Entries))
	}
	for i, e := range decoded.Entries {
		want := original.Entries[i]
		if e.Term != want.Term || e.Index != want.Index || string(e.Command) != string(want.Command) {
			t.Errorf("entry %d = %+v, want %+v", i, e, want)
		}
	}
}

func TestAppendEntriesHeartbeatHasNoEntries(t *testing.T) {
	original := &raft.AppendEntries{Term: 1, LeaderID: "n1", PrevLogIndex: 2, PrevLogTerm: 1, LeaderCommit: 2}

	decoded, err := DecodeAppendEntries(EncodeAppendEntries(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Entries) != 0 {
		t.Errorf("expected no entries in heartbeat, got %d", len(decoded.Entries))
	}
}

func TestAppendEntriesResponseEncodeDecode(t *testing.T) {
	original := &raft.AppendEntriesResponse{
		Term:           3,
		Success:        false,
		From:           "n2",
		MatchIndexHint: 0,
		ConflictIndex:  4,
		ConflictTerm:   2,
		Reason:         "log mismatch",
	}

	decoded, err := DecodeAppendEntriesResponse(EncodeAppendEntriesResponse(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestBinaryEncoderDecoder(t *testing.T) {
	encoder := NewBinaryEncoder()

	encoder.WriteString("hello")
	encoder.WriteInt64(12345)
	encoder.WriteFloat64(3.14159)
	encoder.WriteBool(true)
	encoder.WriteBytes([]byte{1, 2, 3})

	decoder := NewBinaryDecoder(encoder.Bytes())

	str, err := decoder.ReadString()
	if err != nil || str != "hello" {
		t.Errorf("String mismatch: %v, %s", err, str)
	}

	i64, err := decoder.ReadInt64()
	if err != nil || i64 != 12345 {
		t.Errorf("Int64 mismatch: %v, %d", err, i64)
	}

	f64, err := decoder.ReadFloat64()
	if err != nil || f64 != 3.14159 {
		t.Errorf("Float64 mismatch: %v, %f", err, f64)
	}

	b, err := decoder.ReadBool()
	if err != nil || !b {
		t.Errorf("Bool mismatch: %v, %v", err, b)
	}

	bytes, err := decoder.ReadBytes()
	if err != nil || len(bytes) != 3 {
		t.Errorf("Bytes mismatch: %v, %v", err, bytes)
	}
}

func TestBinaryDecoderShortBuffer(t *testing.T) {
	decoder := NewBinaryDecoder([]byte{0, 0})
	if _, err := decoder.ReadUint64(); err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
