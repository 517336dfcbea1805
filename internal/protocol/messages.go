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
	"encoding/binary"
	"errors"
	"math"

	"raftcore/internal/raft"
)

// ErrShortBuffer is returned when a decode runs past the end of its input.
var ErrShortBuffer = errors.New("protocol: buffer too short")

// BinaryEncoder appends length-prefixed primitives to an in-memory buffer,
// matching the wire types raft RPC payloads are built from.
type BinaryEncoder struct {
	buf []byte
}

// NewBinaryEncoder returns an empty BinaryEncoder.
func NewBinaryEncoder() *BinaryEncoder {
	return &BinaryEncoder{}
}

// Bytes returns the accumulated buffer.
func (e *BinaryEncoder) Bytes() []byte { return e.buf }

// WriteString appends a uint32 length-prefixed UTF-8 string.
func (e *BinaryEncoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteBytes appends a uint32 length-prefixed byte slice.
func (e *BinaryEncoder) WriteBytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, b...)
}

// WriteUint64 appends a big-endian uint64.
func (e *BinaryEncoder) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	e.buf = append(e.buf, buf[:]...)
}

// WriteInt64 appends a big-endian int64.
func (e *BinaryEncoder) WriteInt64(v int64) {
	e.WriteUint64(uint64(v))
}

// WriteFloat64 appends an IEEE-754 big-endian float64.
func (e *BinaryEncoder) WriteFloat64(v float64) {
	e.WriteUint64(math.Float64bits(v))
}

// WriteBool appends a single byte: 1 for true, 0 for false.
func (e *BinaryEncoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// BinaryDecoder reads primitives written by BinaryEncoder, in order.
type BinaryDecoder struct {
	buf []byte
	pos int
}

// NewBinaryDecoder wraps buf for sequential reads.
func NewBinaryDecoder(buf []byte) *BinaryDecoder {
	return &BinaryDecoder{buf: buf}
}

// ReadString reads a uint32 length-prefixed UTF-8 string.
func (d *BinaryDecoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	return string(b), err
}

// ReadBytes reads a uint32 length-prefixed byte slice.
func (d *BinaryDecoder) ReadBytes() ([]byte, error) {
	if d.pos+4 > len(d.buf) {
		return nil, ErrShortBuffer
	}
	n := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	if d.pos+int(n) > len(d.buf) {
		return nil, ErrShortBuffer
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

// ReadUint64 reads a big-endian uint64.
func (d *BinaryDecoder) ReadUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

// ReadInt64 reads a big-endian int64.
func (d *BinaryDecoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

// ReadFloat64 reads an IEEE-754 big-endian float64.
func (d *BinaryDecoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBool reads a single byte.
func (d *BinaryDecoder) ReadBool() (bool, error) {
	if d.pos+1 > len(d.buf) {
		return false, ErrShortBuffer
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

// --- Raft RPC message encode/decode -----------------------------------

// EncodePreVoteRequest serializes a raft.PreVoteRequest for the wire.
func EncodePreVoteRequest(m *raft.PreVoteRequest) []byte {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteString(m.CandidateID)
	e.WriteUint64(m.LastLogIndex)
	e.WriteUint64(m.LastLogTerm)
	return e.Bytes()
}

// DecodePreVoteRequest parses the output of EncodePreVoteRequest.
func DecodePreVoteRequest(data []byte) (*raft.PreVoteRequest, error) {
	d := NewBinaryDecoder(data)
	m := &raft.PreVoteRequest{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.CandidateID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.LastLogIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastLogTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodePreVoteResponse serializes a raft.PreVoteResponse for the wire.
func EncodePreVoteResponse(m *raft.PreVoteResponse) []byte {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.VoteGranted)
	e.WriteString(m.From)
	return e.Bytes()
}

// DecodePreVoteResponse parses the output of EncodePreVoteResponse.
func DecodePreVoteResponse(data []byte) (*raft.PreVoteResponse, error) {
	d := NewBinaryDecoder(data)
	m := &raft.PreVoteResponse{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.VoteGranted, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.From, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeVoteRequest serializes a raft.VoteRequest for the wire.
func EncodeVoteRequest(m *raft.VoteRequest) []byte {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteString(m.CandidateID)
	e.WriteUint64(m.LastLogIndex)
	e.WriteUint64(m.LastLogTerm)
	return e.Bytes()
}

// DecodeVoteRequest parses the output of EncodeVoteRequest.
func DecodeVoteRequest(data []byte) (*raft.VoteRequest, error) {
	d := NewBinaryDecoder(data)
	m := &raft.VoteRequest{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.CandidateID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.LastLogIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastLogTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeVoteResponse serializes a raft.VoteResponse for the wire.
func EncodeVoteResponse(m *raft.VoteResponse) []byte {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.VoteGranted)
	e.WriteString(m.From)
	e.WriteString(m.Reason)
	return e.Bytes()
}

// DecodeVoteResponse parses the output of EncodeVoteResponse.
func DecodeVoteResponse(data []byte) (*raft.VoteResponse, error) {
	d := NewBinaryDecoder(data)
	m := &raft.VoteResponse{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.VoteGranted, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.From, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.Reason, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeAppendEntries serializes a raft.AppendEntries for the wire.
func EncodeAppendEntries(m *raft.AppendEntries) []byte {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteString(m.LeaderID)
	e.WriteUint64(m.PrevLogIndex)
	e.WriteUint64(m.PrevLogTerm)
	e.WriteUint64(m.LeaderCommit)
	e.WriteUint64(uint64(len(m.Entries)))
	for _, entry := range m.Entries {
		e.WriteUint64(entry.Term)
		e.WriteUint64(entry.Index)
		e.WriteBool(entry.Noop)
		e.WriteBytes(entry.Command)
	}
	return e.Bytes()
}

// DecodeAppendEntries parses the output of EncodeAppendEntries.
func DecodeAppendEntries(data []byte) (*raft.AppendEntries, error) {
	d := NewBinaryDecoder(data)
	m := &raft.AppendEntries{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LeaderID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.PrevLogIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.PrevLogTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LeaderCommit, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	count, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	m.Entries = make([]raft.LogEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var entry raft.LogEntry
		if entry.Term, err = d.ReadUint64(); err != nil {
			return nil, err
		}
		if entry.Index, err = d.ReadUint64(); err != nil {
			return nil, err
		}
		if entry.Noop, err = d.ReadBool(); err != nil {
			return nil, err
		}
		if entry.Command, err = d.ReadBytes(); err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, entry)
	}
	return m, nil
}

// EncodeAppendEntriesResponse serializes a raft.AppendEntriesResponse.
func EncodeAppendEntriesResponse(m *raft.AppendEntriesResponse) []byte {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.Success)
	e.WriteString(m.From)
	e.WriteUint64(m.MatchIndexHint)
	e.WriteUint64(m.ConflictIndex)
	e.WriteUint64(m.ConflictTerm)
	e.WriteString(m.Reason)
	return e.Bytes()
}

// DecodeAppendEntriesResponse parses the output of
// EncodeAppendEntriesResponse.
func DecodeAppendEntriesResponse(data []byte) (*raft.AppendEntriesResponse, error) {
	d := NewBinaryDecoder(data)
	m := &raft.AppendEntriesResponse{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.From, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.MatchIndexHint, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.ConflictIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.ConflictTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Reason, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}
