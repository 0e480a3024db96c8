// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2016-2017 The Lightning Network Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gcs

import "io"

// bitWriter appends bits to an in-memory byte slice, most significant bit
// first, with no padding between writes.  The zero value is ready for use.
type bitWriter struct {
	bytes []byte
	free  uint // unwritten low bits remaining in the final byte
}

// writeBit appends a single bit to the stream.
func (w *bitWriter) writeBit(bit bool) {
	if w.free == 0 {
		w.bytes = append(w.bytes, 0)
		w.free = 8
	}
	w.free--
	if bit {
		w.bytes[len(w.bytes)-1] |= 1 << w.free
	}
}

// writeUnary appends value one bits followed by a terminating zero bit.
func (w *bitWriter) writeUnary(value uint64) {
	for ; value > 0; value-- {
		w.writeBit(true)
	}
	w.writeBit(false)
}

// writeNBits appends the n least significant bits of data in big endian
// order.  Panics if n > 64.
func (w *bitWriter) writeNBits(data uint64, n uint) {
	if n > 64 {
		panic("gcs: cannot write more than 64 bits of a uint64")
	}

	// Bit-by-bit until the partially written byte is filled.
	for n > 0 && w.free != 0 {
		n--
		w.writeBit(data&(1<<n) != 0)
	}

	// Whole bytes at a time while possible.
	for n >= 8 {
		n -= 8
		w.bytes = append(w.bytes, byte(data>>n))
	}

	// Remaining high-order bits of the field.
	for n > 0 {
		n--
		w.writeBit(data&(1<<n) != 0)
	}
}

// bitReader consumes bits from a byte slice, most significant bit first.
// Reads past the end of the slice return io.EOF.
type bitReader struct {
	bytes []byte
	off   int  // byte offset of the next unread bit
	mask  byte // mask of the next unread bit within bytes[off]
}

func newBitReader(bitstream []byte) bitReader {
	return bitReader{
		bytes: bitstream,
		mask:  1 << 7,
	}
}

// readBit returns the next bit from the stream.
func (r *bitReader) readBit() (bool, error) {
	if r.off >= len(r.bytes) {
		return false, io.EOF
	}

	bit := r.bytes[r.off]&r.mask != 0
	r.mask >>= 1
	if r.mask == 0 {
		r.off++
		r.mask = 1 << 7
	}
	return bit, nil
}

// readUnary returns the number of sequential one bits before the next zero
// bit.  Errors with io.EOF if the stream ends before a zero bit is seen.
func (r *bitReader) readUnary() (uint64, error) {
	var value uint64
	for {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if !bit {
			return value, nil
		}
		value++
	}
}

// readNBits reads an n-bit big endian field from the stream into the low
// bits of a uint64.  Panics if n > 64.
func (r *bitReader) readNBits(n uint) (uint64, error) {
	if n > 64 {
		panic("gcs: cannot read more than 64 bits as a uint64")
	}

	var value uint64

	// Whole bytes at a time while the cursor is byte aligned.
	for n >= 8 && r.mask == 1<<7 {
		if r.off >= len(r.bytes) {
			return 0, io.EOF
		}
		n -= 8
		value |= uint64(r.bytes[r.off]) << n
		r.off++
	}

	for n > 0 {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		n--
		if bit {
			value |= 1 << n
		}
	}
	return value, nil
}
