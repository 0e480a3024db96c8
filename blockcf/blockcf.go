// Copyright (c) 2017 The btcsuite developers
// Copyright (c) 2017 The Lightning Network Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package blockcf provides the tagged envelope for per-block GCS filters used
by light clients.

Committed filters are a reversal of how Bloom filters are typically used by a
light client: a consensus-validating full node commits to a filter for every
block with a predetermined collision probability and light clients match
against the filters locally rather than uploading personal data to other
nodes.  If a filter matches, the light client should fetch the entire block
and further inspect it for relevant transactions.

The envelope binds a filter to the hash of the block it was built from with a
single type tag byte.  The SipHash key for the wrapped filter is always
derived from the block hash, so it never travels with the filter.
*/
package blockcf

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lbryio/gcs"
	"github.com/lbryio/gcs/builder"
)

// FilterType is the tag byte denoting which kind of per-block filter the
// envelope carries.
type FilterType uint8

const (
	// TypeRegular is the regular filter type, committing to the standard
	// per-block element set.
	TypeRegular FilterType = iota
)

// envelopeOverhead is the serialized size of the tag byte and block hash
// preceding the filter bytes.
const envelopeOverhead = 1 + chainhash.HashSize

// BlockFilter is an immutable GCS filter bound to the hash of the block its
// elements were collected from.  The block hash doubles as the source of the
// filter's SipHash key, so a BlockFilter can be queried without any separate
// key material.
type BlockFilter struct {
	filterType FilterType
	blockHash  chainhash.Hash
	filter     *gcs.Filter
}

// New builds a filter from the passed entries, keyed to the given block
// hash.
func New(filterType FilterType, blockHash *chainhash.Hash,
	entries Entries) (*BlockFilter, error) {

	filter, err := builder.WithKeyHash(blockHash).AddEntries(entries).Build()
	if err != nil {
		return nil, err
	}

	return &BlockFilter{
		filterType: filterType,
		blockHash:  *blockHash,
		filter:     filter,
	}, nil
}

// FromParts attaches pre-encoded filter bytes, as returned by a Filter's
// NBytes, to a block hash without rebuilding the filter from its element
// set.  The result answers queries identically to the filter the bytes were
// serialized from.
func FromParts(filterType FilterType, blockHash *chainhash.Hash,
	filterBytes []byte) (*BlockFilter, error) {

	filter, err := gcs.FromNBytes(builder.DefaultP, builder.DefaultM,
		filterBytes)
	if err != nil {
		return nil, err
	}

	return &BlockFilter{
		filterType: filterType,
		blockHash:  *blockHash,
		filter:     filter,
	}, nil
}

// FromBytes deserializes a BlockFilter from its envelope form: a tag byte,
// the block hash, and the filter bytes.
func FromBytes(b []byte) (*BlockFilter, error) {
	if len(b) < envelopeOverhead {
		return nil, gcs.ErrMisserialized
	}

	var blockHash chainhash.Hash
	copy(blockHash[:], b[1:envelopeOverhead])

	return FromParts(FilterType(b[0]), &blockHash, b[envelopeOverhead:])
}

// Bytes serializes the envelope: type tag, block hash, then the canonical
// filter bytes.
func (f *BlockFilter) Bytes() ([]byte, error) {
	filterBytes, err := f.filter.NBytes()
	if err != nil {
		return nil, err
	}

	serialized := make([]byte, 0, envelopeOverhead+len(filterBytes))
	serialized = append(serialized, byte(f.filterType))
	serialized = append(serialized, f.blockHash[:]...)
	serialized = append(serialized, filterBytes...)
	return serialized, nil
}

// Type returns the envelope's filter type tag.
func (f *BlockFilter) Type() FilterType {
	return f.filterType
}

// BlockHash returns the hash of the block the filter is bound to.
func (f *BlockFilter) BlockHash() chainhash.Hash {
	return f.blockHash
}

// Filter returns the wrapped GCS filter.  It can be queried directly with
// Match/MatchAny using the key returned by Key.
func (f *BlockFilter) Filter() *gcs.Filter {
	return f.filter
}

// Key returns the SipHash key derived from the filter's block hash.
func (f *BlockFilter) Key() [gcs.KeySize]byte {
	return builder.DeriveKey(&f.blockHash)
}

// Match checks whether a []byte value is likely (within collision
// probability) to be a member of the set the filter was built from.
func (f *BlockFilter) Match(data []byte) (bool, error) {
	return f.filter.Match(f.Key(), data)
}

// MatchAny checks whether any []byte value in the batch is likely (within
// collision probability) to be a member of the set the filter was built
// from.
func (f *BlockFilter) MatchAny(data [][]byte) (bool, error) {
	return f.filter.MatchAny(f.Key(), data)
}

// Hash returns the double-SHA256 hash of the filter's canonical serialized
// form.
func (f *BlockFilter) Hash() (chainhash.Hash, error) {
	filterBytes, err := f.filter.NBytes()
	if err != nil {
		return chainhash.Hash{}, err
	}

	return chainhash.DoubleHashH(filterBytes), nil
}

// MakeHeaderForFilter makes a filter chain header for a filter, given the
// filter and the previous filter chain header.
func MakeHeaderForFilter(f *BlockFilter,
	prevHeader *chainhash.Hash) (chainhash.Hash, error) {

	filterHash, err := f.Hash()
	if err != nil {
		return chainhash.Hash{}, err
	}

	// In the buffer we'll compute filterHash || prevHeader as an
	// intermediate value, then hash it again for the final header.
	filterTip := make([]byte, 2*chainhash.HashSize)
	copy(filterTip, filterHash[:])
	copy(filterTip[chainhash.HashSize:], prevHeader[:])

	return chainhash.DoubleHashH(filterTip), nil
}

// Entries describes all of the filter entries used to create a GCS filter
// and provides methods for appending data structures commonly committed to
// per-block filters.
type Entries [][]byte

// AddHash adds a hash to an entries slice.
func (e *Entries) AddHash(hash *chainhash.Hash) {
	*e = append(*e, hash.CloneBytes())
}

// AddScript adds an output script to an entries slice.  Empty scripts are
// ignored since they can never be matched against.
func (e *Entries) AddScript(script []byte) {
	if len(script) == 0 {
		return
	}
	*e = append(*e, script)
}
