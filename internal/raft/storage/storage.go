/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

// Package storage provides a file-backed implementation of raft.Storage, the
// durable storage contract Raft core handlers invoke synchronously before
// releasing any outbound message conditional on durability (spec.md §5, §6).
// The contract itself lives in package raft (storage_contract.go) so that
// internal/raft never needs to import this package.
package storage
