// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import "errors"

var (
	// ErrSlaveModeUnsupported is returned by Open when asked to configure
	// the stack for address mode "slave" rather than "master". The
	// original source aborts the whole extension in this case with
	// "only master mode supported"; whether this is policy or an
	// unresolved TODO is unclear upstream, so the restriction is preserved
	// literally rather than guessed at.
	ErrSlaveModeUnsupported = errors.New("spistack: only master mode is supported")

	// ErrNoSlaves is returned by enumeration when no slave answered at
	// stack address 0. It is not a failure: the caller is expected to log
	// it and continue running the rest of the daemon without an SPI
	// stack.
	ErrNoSlaves = errors.New("spistack: no SPI slaves present")

	// ErrEngineClosed is returned by operations attempted after Close.
	ErrEngineClosed = errors.New("spistack: engine is closed")
)
