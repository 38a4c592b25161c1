package mbox

import (
	"bytes"
	"iter"
)

var marker = []byte("From ")

// Split yields the raw messages of an mbox file together with their
// position. A message starts after every line beginning with "From ".
// The marker line is not part of the message and anything before the
// first marker is ignored. Quoted ">From " lines are left untouched.
//
// The yielded slices share memory with data. Every call to the returned
// sequence scans data again.
func Split(data []byte) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		index := 0
		start := -1
		for off := 0; off < len(data); {
			next := len(data)
			if i := bytes.IndexByte(data[off:], '\n'); i >= 0 {
				next = off + i + 1
			}
			if bytes.HasPrefix(data[off:], marker) {
				if start >= 0 {
					if !yield(index, data[start:off]) {
						return
					}
					index++
				}
				start = next
			}
			off = next
		}
		if start >= 0 {
			yield(index, data[start:])
		}
	}
}

// Count returns the number of messages Split yields
func Count(data []byte) int {
	n := 0
	for range Split(data) {
		n++
	}
	return n
}
