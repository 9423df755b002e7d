// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package pool_test

import (
	"bytes"
	"testing"

	"github.com/agentvault/a2a/internal/pool"
)

func TestBytesReset(t *testing.T) {
	t.Parallel()

	buf := pool.Bytes.Get()
	buf.WriteString("leftover")
	pool.Bytes.Put(buf)

	got := pool.Bytes.Get()
	defer pool.Bytes.Put(got)
	if got.Len() != 0 {
		t.Errorf("Get() returned buffer with %d bytes, want 0", got.Len())
	}
}

func TestPoolKeep(t *testing.T) {
	t.Parallel()

	created := 0
	p := pool.New(func() *bytes.Buffer {
		created++
		return &bytes.Buffer{}
	}).WithKeep(func(b *bytes.Buffer) bool { return b.Cap() < 16 })

	big := p.Get()
	big.Grow(1024)
	p.Put(big)

	if got := p.Get(); got == big {
		t.Error("Get() returned a buffer that should have been discarded")
	}
	if created != 2 {
		t.Errorf("constructor called %d times, want 2", created)
	}
}
