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

/*
Package compression provides configurable compression for raftcore.

Compression Overview:
=====================

This module implements configurable compression for:
- WAL entries to reduce disk I/O
- Replication traffic to reduce network bandwidth
- Batch operations for better compression ratios

Supported Algorithms:
=====================

1. LZ4: Fast compression/decompression, moderate ratio
2. Snappy: Very fast, lower ratio, good for real-time
3. Zstd: Best ratio, configurable speed/ratio tradeoff

Batch Compression:
==================

Batching multiple entries before compression improves ratios:
1. Collect entries into a batch
2. Compress the entire batch
3. Store/transmit compressed batch
4. Decompress and split on read
*/
package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmGzip
	AlgorithmLZ4
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses a compression algorithm from string
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return AlgorithmNone, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Level represents compression level
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 5
	LevelBest    Level = 9
)

// Config holds compression configuration
type Config struct {
	Algorithm        Algorithm `json:"algorithm"`
	Level            Level     `json:"level"`
	MinSize          int       `json:"min_size"`           // Minimum size to compress
	BatchSize        int       `json:"batch_size"`         // Number of entries per batch
	BatchTimeout     int       `json:"batch_timeout_ms"`   // Max wait time for batch (ms)
	DictionaryEnable bool      `json:"dictionary_enable"`  // Use dictionary compression
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Algorithm:        AlgorithmGzip,
		Level:            LevelDefault,
		MinSize:          256,
		BatchSize:        100,
		BatchTimeout:     10,
		DictionaryEnable: false,
	}
}

// Errors
var (
	ErrDataTooSmall     = errors.New("data too small to compress")
	ErrInvalidHeader    = errors.New("invalid compression header")
	ErrUnsupportedAlgo  = errors.New("unsupported compression algorithm")
	ErrDecompressFailed = errors.New("decompression failed")
)

// Compressor provides compression/decompression operations
type Compressor struct {
	config     Config
	gzipPool   sync.Pool
	bufferPool sync.Pool
}

// NewCompressor creates a new compressor
func NewCompressor(config Config) *Compressor {
	return &Compressor{
		config: config,
		gzipPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Compress encodes data with the configured algorithm. Data shorter than
// MinSize is returned unchanged, with no marker in the output. Decompress
// with any algorithm other than AlgorithmNone fails on such raw data, so
// callers record whether compression was applied (FileStore stores the
// algorithm byte alongside the data for this).
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) < c.config.MinSize {
		return data, nil
	}

	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, nil
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil
	case AlgorithmLZ4:
		return c.compressLZ4(data)
	case AlgorithmZstd:
		return c.compressZstd(data)
	default:
		return nil, ErrUnsupportedAlgo
	}
}

// Decompress reverses Compress for the named algorithm.
func (c *Compressor) Decompress(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return data, nil
	case AlgorithmGzip:
		return c.decompressGzip(data)
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	case AlgorithmLZ4:
		return c.decompressLZ4(data)
	case AlgorithmZstd:
		return c.decompressZstd(data)
	default:
		return nil, ErrUnsupportedAlgo
	}
}

func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w, _ := gzip.NewWriterLevel(buf, int(c.levelOrDefault(9)))
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (c *Compressor) decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

func (c *Compressor) compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Compressor) decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

func (c *Compressor) compressZstd(data []byte) ([]byte, error) {
	level := zstd.SpeedDefault
	switch {
	case c.config.Level <= LevelFastest:
		level = zstd.SpeedFastest
	case c.config.Level >= LevelBest:
		level = zstd.SpeedBestCompression
	}
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.EncodeAll(data, nil), nil
}

func (c *Compressor) decompressZstd(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	defer r.Close()
	out, err := r.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

// levelOrDefault clamps the configured Level into [LevelFastest, max].
// Only compressGzip calls it, with gzip's maximum level of 9.
func (c *Compressor) levelOrDefault(max int) Level {
	if c.config.Level < LevelFastest {
		return LevelFastest
	}
	if int(c.config.Level) > max {
		return Level(max)
	}
	return c.config.Level
}

// BatchCompressor accumulates small entries (e.g. log segments pending
// replication) and compresses them together for a better ratio than
// compressing each one alone (see package doc, "Batch Compression").
type BatchCompressor struct {
	config     Config
	compressor *Compressor
	entries    [][]byte
}

// NewBatchCompressor creates a new BatchCompressor using config.
func NewBatchCompressor(config Config) *BatchCompressor {
	return &BatchCompressor{
		config:     config,
		compressor: NewCompressor(config),
	}
}

// Add appends entry to the pending batch.
func (b *BatchCompressor) Add(entry []byte) {
	b.entries = append(b.entries, entry)
}

// Flush encodes every pending entry as a length-prefixed frame, compresses
// the concatenated result, and clears the batch.
func (b *BatchCompressor) Flush() ([]byte, error) {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	for _, e := range b.entries {
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(e)))
		buf.Write(lenPrefix[:])
		buf.Write(e)
	}
	b.entries = nil

	compressed, err := b.compressor.Compress(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return compressed, nil
}

// DecompressBatch reverses Flush, splitting the decompressed blob back into
// individual entries.
func (b *BatchCompressor) DecompressBatch(data []byte, algo Algorithm) ([][]byte, error) {
	plain, err := b.compressor.Decompress(data, algo)
	if err != nil {
		return nil, err
	}

	var out [][]byte
	for len(plain) > 0 {
		if len(plain) < 4 {
			return nil, ErrInvalidHeader
		}
		n := binary.BigEndian.Uint32(plain[:4])
		plain = plain[4:]
		if uint32(len(plain)) < n {
			return nil, ErrInvalidHeader
		}
		entry := make([]byte, n)
		copy(entry, plain[:n])
		out = append(out, entry)
		plain = plain[n:]
	}
	return out, nil
}

