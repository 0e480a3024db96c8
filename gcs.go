// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2016-2017 The Lightning Network Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gcs

import (
	"bytes"
	"errors"
	"math"
	"math/bits"
	"sort"
	"sync"

	"github.com/aead/siphash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrNTooBig signifies that the filter can't handle N items.
	ErrNTooBig = errors.New("N does not fit in uint32")

	// ErrPTooBig signifies that the filter can't handle `1/2**P`
	// collision probability.
	ErrPTooBig = errors.New("P is too large")

	// ErrPTooSmall signifies a Golomb-Rice parameter of zero, which would
	// degenerate every codeword to bare unary.
	ErrPTooSmall = errors.New("P is zero")

	// ErrMOutOfRange signifies a bucket modulus that is zero or too large
	// for the hash reduction to stay within 64 bits.
	ErrMOutOfRange = errors.New("M is out of range")

	// ErrMisserialized signifies a filter was misserialized: the declared
	// item count is inconsistent with the bits available in the stream.
	ErrMisserialized = errors.New("misserialized filter")
)

// KeySize is the size of the byte array required for key material for the
// SipHash keyed hash function.
const KeySize = 16

// Filter describes an immutable filter that can be built from a set of data
// elements, serialized, deserialized, and queried in a thread-safe manner.
// The serialized form is compressed as a Golomb Coded Set (GCS), but does not
// include P or M to allow the user to encode the metadata separately if
// necessary.  The hash function used is SipHash, a keyed function; the key
// used in building the filter is required in order to match filter values and
// is not included in the serialized form.
type Filter struct {
	n          uint32
	p          uint8
	m          uint64
	modulusNP  uint64
	filterData []byte
}

// checkParams validates the Golomb-Rice parameter and the bucket modulus.
// Limiting both N and M to 32 bits keeps the N*M modulus inside the 64-bit
// working width of the hash reduction.
func checkParams(p uint8, m uint64) error {
	switch {
	case p == 0:
		return ErrPTooSmall
	case p > 32:
		return ErrPTooBig
	case m == 0 || m > math.MaxUint32:
		return ErrMOutOfRange
	}
	return nil
}

// reduce maps a 64-bit hash into [0, modulus) by treating the hash as a
// fixed-point fraction of one and keeping the integer part of the product.
// Unlike a mod operation this is branch-free and avoids modulo bias.
func reduce(hash, modulus uint64) uint64 {
	hi, _ := bits.Mul64(hash, modulus)
	return hi
}

// hashToRange maps a data element into the filter's value universe using the
// filter's key and modulus.
func (f *Filter) hashToRange(key [KeySize]byte, data []byte) uint64 {
	return reduce(siphash.Sum64(data, &key), f.modulusNP)
}

// BuildGCSFilter builds a new GCS filter with the collision probability of
// `1/(2**P)`, key `key`, and including every `[]byte` in `data` as a member
// of the set.  Duplicate data elements are counted once, so the resulting
// filter depends only on the set of distinct elements and is byte-for-byte
// reproducible regardless of input ordering.  An empty data slice yields a
// valid filter that matches nothing.
func BuildGCSFilter(P uint8, M uint64, key [KeySize]byte,
	data [][]byte) (*Filter, error) {

	if err := checkParams(P, M); err != nil {
		return nil, err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, ErrNTooBig
	}

	// Deduplicate before hashing.  Repeats of the same original element
	// must not produce repeated codewords, while post-hash collisions
	// between distinct elements are legitimate and kept.
	set := make(map[string]struct{}, len(data))
	for _, d := range data {
		set[string(d)] = struct{}{}
	}

	f := Filter{
		n: uint32(len(set)),
		p: P,
		m: M,
	}
	f.modulusNP = uint64(f.n) * M

	// Insert the hash (reduced to the N*M universe) of each data element
	// into a slice and sort the slice.
	values := make(uint64Slice, 0, len(set))
	for d := range set {
		values = append(values, f.hashToRange(key, []byte(d)))
	}
	sort.Sort(values)

	// Write the sorted list of values into the filter bitstream,
	// compressing it using Golomb-Rice coding.
	var (
		b         bitWriter
		lastValue uint64
	)
	for _, v := range values {
		delta := v - lastValue
		lastValue = v

		// Write the quotient into the bitstream in unary; the average
		// should be around 1 (2 bits - 0b10).
		b.writeUnary(delta >> f.p)

		// Write the remainder as a big-endian integer with enough
		// bits to represent the appropriate collision probability.
		b.writeNBits(delta, uint(f.p))
	}

	f.filterData = b.bytes
	return &f, nil
}

// FromBytes deserializes a GCS filter from a known N, P, M, and serialized
// filter as returned by Bytes().  The stream is verified to hold exactly N
// complete codewords; a truncated stream errors with ErrMisserialized here
// rather than producing wrong answers from later queries, which assume a
// verified stream.
func FromBytes(N uint32, P uint8, M uint64, d []byte) (*Filter, error) {
	if err := checkParams(P, M); err != nil {
		return nil, err
	}

	f := &Filter{
		n:          N,
		p:          P,
		m:          M,
		modulusNP:  uint64(N) * M,
		filterData: d,
	}

	if err := f.verify(); err != nil {
		return nil, err
	}
	return f, nil
}

// FromNBytes deserializes a GCS filter from a known P and M, and a serialized
// N and filter as returned by NBytes().
func FromNBytes(P uint8, M uint64, d []byte) (*Filter, error) {
	buf := bytes.NewReader(d)
	n, err := wire.ReadVarInt(buf, 0)
	if err != nil {
		return nil, ErrMisserialized
	}
	if n > math.MaxUint32 {
		return nil, ErrNTooBig
	}
	return FromBytes(uint32(n), P, M, d[len(d)-buf.Len():])
}

// verify decodes the compressed stream once and confirms it holds n complete
// codewords.  Corruption is detected here, at deserialization time, and never
// re-validated per query.
func (f *Filter) verify() error {
	b := newBitReader(f.filterData)
	for i := uint32(0); i < f.n; i++ {
		if _, err := f.readFullUint64(&b); err != nil {
			return ErrMisserialized
		}
	}
	return nil
}

// Bytes returns the serialized format of the GCS filter, which does not
// include N, P, or M (returned by separate methods) or the key used by
// SipHash.
func (f *Filter) Bytes() ([]byte, error) {
	filterData := make([]byte, len(f.filterData))
	copy(filterData, f.filterData)
	return filterData, nil
}

// NBytes returns the canonical serialized format of the GCS filter: N as a
// variable-length integer followed by the compressed stream.  The result can
// be persisted or retransmitted and decoded with FromNBytes.
func (f *Filter) NBytes() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.Grow(wire.VarIntSerializeSize(uint64(f.n)) + len(f.filterData))

	if err := wire.WriteVarInt(&buffer, 0, uint64(f.n)); err != nil {
		return nil, err
	}
	if _, err := buffer.Write(f.filterData); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// N returns the size of the data set used to build the filter.
func (f *Filter) N() uint32 {
	return f.n
}

// P returns the filter's collision probability as a negative power of 2
// (that is, a collision probability of `1/2**20` is represented as 20).
func (f *Filter) P() uint8 {
	return f.p
}

// M returns the per-element bucket modulus the filter was built with.
func (f *Filter) M() uint64 {
	return f.m
}

// readFullUint64 reads a value represented by the sum of a unary multiple of
// the filter's modulus (`2**P`) and a big-endian P-bit remainder.
func (f *Filter) readFullUint64(b *bitReader) (uint64, error) {
	quotient, err := b.readUnary()
	if err != nil {
		return 0, err
	}

	rem, err := b.readNBits(uint(f.p))
	if err != nil {
		return 0, err
	}

	return quotient<<f.p | rem, nil
}

// Match checks whether a []byte value is likely (within collision
// probability) to be a member of the set represented by the filter.  The
// stream is decoded lazily and the scan stops as soon as a decoded value
// reaches the query target.
func (f *Filter) Match(key [KeySize]byte, data []byte) (bool, error) {
	if f.n == 0 {
		return false, nil
	}

	// Hash our search term with the same parameters as the filter.
	term := f.hashToRange(key, data)

	// Go through the search filter and look for the desired value.
	b := newBitReader(f.filterData)
	var lastValue uint64
	for i := uint32(0); i < f.n; i++ {
		// Read the difference between previous and new value from
		// the bitstream and add it to the previous value.
		delta, err := f.readFullUint64(&b)
		if err != nil {
			return false, err
		}
		lastValue += delta

		if lastValue == term {
			return true, nil
		}
		// Values are sorted, so nothing later can match either.
		if lastValue > term {
			break
		}
	}
	return false, nil
}

// matchPool pools allocations for match data.
var matchPool sync.Pool

// MatchAny checks whether any []byte value is likely (within collision
// probability) to be a member of the set represented by the filter faster
// than calling Match() for each value individually.  The strategy is chosen
// by the size of the query batch relative to the filter.
func (f *Filter) MatchAny(key [KeySize]byte, data [][]byte) (bool, error) {
	switch {
	case len(data) >= int(f.n):
		return f.HashMatchAny(key, data)
	default:
		return f.ZipMatchAny(key, data)
	}
}

// ZipMatchAny checks whether any []byte value is likely (within collision
// probability) to be a member of the set represented by the filter by
// performing a single synchronized merge of the sorted query hashes against
// the streaming-decoded filter values.
func (f *Filter) ZipMatchAny(key [KeySize]byte, data [][]byte) (bool, error) {
	if len(data) == 0 || f.n == 0 {
		return false, nil
	}

	// Hash the query set with the same parameters as the filter and sort
	// the result, reusing a pooled scratch slice when one is available.
	var values *uint64Slice
	if v := matchPool.Get(); v != nil {
		values = v.(*uint64Slice)
		*values = (*values)[:0]
	} else {
		vs := make(uint64Slice, 0, len(data))
		values = &vs
	}
	defer matchPool.Put(values)

	for _, d := range data {
		*values = append(*values, f.hashToRange(key, d))
	}
	sort.Sort(*values)

	// Zip down the streams, advancing whichever side holds the smaller
	// value, until a value matches or either side is exhausted.
	b := newBitReader(f.filterData)
	queries := *values
	var lastValue uint64
	for i := uint32(0); i < f.n; i++ {
		delta, err := f.readFullUint64(&b)
		if err != nil {
			return false, err
		}
		lastValue += delta

		// Skip query values the filter stream has already passed.
		for len(queries) > 0 && queries[0] < lastValue {
			queries = queries[1:]
		}
		if len(queries) == 0 {
			return false, nil
		}
		if queries[0] == lastValue {
			return true, nil
		}
	}
	return false, nil
}

// HashMatchAny checks whether any []byte value is likely (within collision
// probability) to be a member of the set represented by the filter by
// decompressing the filter into a probe set once and checking each query
// against it.  This trades memory proportional to N for not having to hash
// and sort the query batch, which wins for batches comparable in size to the
// filter itself.
func (f *Filter) HashMatchAny(key [KeySize]byte, data [][]byte) (bool, error) {
	if len(data) == 0 || f.n == 0 {
		return false, nil
	}

	set := make(map[uint64]struct{}, f.n)

	b := newBitReader(f.filterData)
	var lastValue uint64
	for i := uint32(0); i < f.n; i++ {
		delta, err := f.readFullUint64(&b)
		if err != nil {
			return false, err
		}
		lastValue += delta
		set[lastValue] = struct{}{}
	}

	for _, d := range data {
		if _, ok := set[f.hashToRange(key, d)]; ok {
			return true, nil
		}
	}
	return false, nil
}
