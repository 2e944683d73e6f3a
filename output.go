// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "io"

// countWriter is the archive output: it appends to the destination and tracks
// the running offset used for local header positions.
type countWriter struct {
	dest  io.Writer
	count int64
}

// Write forwards p to the destination. A destination that accepts fewer bytes
// than offered without reporting an error yields io.ErrShortWrite, so the
// offset never drifts from what was actually appended.
func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.count += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// sectionCounter counts the bytes of a single entry's data section on top of
// the archive output.
type sectionCounter struct {
	dest  io.Writer
	count int64
}

func (w *sectionCounter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.count += int64(n)
	return n, err
}
