// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2016-2017 The Lightning Network Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gcs_test

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/lbryio/gcs"
)

var (
	// No need to allocate an err variable in every test
	err error

	// Collision probability for the tests (1/2**19)
	P = uint8(19)

	// Modulus value for the tests.
	M uint64 = 784931

	// Filters are conserved between tests but we must define with an
	// interface which functions we're testing because the gcsFilter type
	// isn't exported
	filter, filter2, filter3 *gcs.Filter

	// We need to use the same key for building and querying the filters
	key [gcs.KeySize]byte

	// List of values for building a filter
	contents = [][]byte{
		[]byte("Alex"),
		[]byte("Bob"),
		[]byte("Charlie"),
		[]byte("Dick"),
		[]byte("Ed"),
		[]byte("Frank"),
		[]byte("George"),
		[]byte("Harry"),
		[]byte("Ilya"),
		[]byte("John"),
		[]byte("Kevin"),
		[]byte("Larry"),
		[]byte("Michael"),
		[]byte("Nate"),
		[]byte("Owen"),
		[]byte("Paul"),
		[]byte("Quentin"),
	}

	// List of values for querying a filter using MatchAny()
	contents2 = [][]byte{
		[]byte("Alice"),
		[]byte("Betty"),
		[]byte("Charmaine"),
		[]byte("Donna"),
		[]byte("Edith"),
		[]byte("Faina"),
		[]byte("Georgia"),
		[]byte("Hannah"),
		[]byte("Ilsbeth"),
		[]byte("Jennifer"),
		[]byte("Kayla"),
		[]byte("Lena"),
		[]byte("Michelle"),
		[]byte("Natalie"),
		[]byte("Ophelia"),
		[]byte("Peggy"),
		[]byte("Queenie"),
	}
)

// TestGCSFilterBuild builds a test filter with a randomized key. For
// production use, a key that's derived deterministically from a context
// identifier would be required.
func TestGCSFilterBuild(t *testing.T) {
	for i := 0; i < gcs.KeySize; i += 4 {
		binary.BigEndian.PutUint32(key[i:], rand.Uint32())
	}
	filter, err = gcs.BuildGCSFilter(P, M, key, contents)
	if err != nil {
		t.Fatalf("Filter build failed: %s", err.Error())
	}
}

// TestGCSBadParameters ensures out-of-range filter parameters are rejected
// at build and deserialization time rather than deferred to query time.
func TestGCSBadParameters(t *testing.T) {
	var testKey [gcs.KeySize]byte

	if _, err := gcs.BuildGCSFilter(0, M, testKey, contents); err != gcs.ErrPTooSmall {
		t.Fatalf("expected ErrPTooSmall, got %v", err)
	}
	if _, err := gcs.BuildGCSFilter(33, M, testKey, contents); err != gcs.ErrPTooBig {
		t.Fatalf("expected ErrPTooBig, got %v", err)
	}
	if _, err := gcs.BuildGCSFilter(P, 0, testKey, contents); err != gcs.ErrMOutOfRange {
		t.Fatalf("expected ErrMOutOfRange, got %v", err)
	}
	if _, err := gcs.BuildGCSFilter(P, 1<<32, testKey, contents); err != gcs.ErrMOutOfRange {
		t.Fatalf("expected ErrMOutOfRange, got %v", err)
	}
	if _, err := gcs.FromBytes(17, 33, M, nil); err != gcs.ErrPTooBig {
		t.Fatalf("expected ErrPTooBig, got %v", err)
	}
}

// TestGCSMatchZeroHash ensures that Match and MatchAny properly match an item
// if its hash after the reduction is zero. This is accomplished by brute
// forcing a specific target whose hash is zero given a certain (P, M, key,
// len(elements)) combination. In this case, P and M are the default, key was
// chosen randomly, and len(elements) is 13. The target 4-byte value of
// 16060032 is the first such 32-bit value, thus we use the numbers 0-11 as
// the other elements in the filter since we know they won't collide. We test
// both the positive and negative cases, when the zero hash item is in the
// filter and when it is excluded. In the negative case, the 32-bit value of
// 12 is added to the filter instead of the target.
func TestGCSMatchZeroHash(t *testing.T) {
	t.Run("include zero", func(t *testing.T) {
		testGCSMatchZeroHash(t, true)
	})
	t.Run("exclude zero", func(t *testing.T) {
		testGCSMatchZeroHash(t, false)
	})
}

func testGCSMatchZeroHash(t *testing.T, includeZeroHash bool) {
	key := [gcs.KeySize]byte{
		0x25, 0x28, 0x0d, 0x25, 0x26, 0xe1, 0xd3, 0xc7,
		0xa5, 0x71, 0x85, 0x34, 0x92, 0xa5, 0x7e, 0x68,
	}

	// Construct the target data to match, whose hash is zero after
	// applying the reduction with the parameters in the test.
	target := make([]byte, 4)
	binary.BigEndian.PutUint32(target, 16060032)

	// Construct the set of 13 items including the target, using the
	// 32-bit values of 0 through 11 as the first 12 items. We know none
	// of these hash to zero since the brute force ended well beyond them.
	elements := make([][]byte, 0, 13)
	for i := 0; i < 12; i++ {
		data := make([]byte, 4)
		binary.BigEndian.PutUint32(data, uint32(i))
		elements = append(elements, data)
	}

	// If the filter should include the zero hash element, add the target
	// which we know hashes to zero. Otherwise add the 32-bit value of 12
	// which we know does not hash to zero.
	if includeZeroHash {
		elements = append(elements, target)
	} else {
		data := make([]byte, 4)
		binary.BigEndian.PutUint32(data, 12)
		elements = append(elements, data)
	}

	filter, err := gcs.BuildGCSFilter(P, M, key, elements)
	if err != nil {
		t.Fatalf("unable to build filter: %v", err)
	}

	match, err := filter.Match(key, target)
	if err != nil {
		t.Fatalf("unable to match: %v", err)
	}

	// We should only get a match iff the target was included.
	if match != includeZeroHash {
		t.Fatalf("expected match from Match: %t, got %t",
			includeZeroHash, match)
	}

	match, err = filter.MatchAny(key, [][]byte{target})
	if err != nil {
		t.Fatalf("unable to match any: %v", err)
	}

	// We should only get a match iff the target was included.
	if match != includeZeroHash {
		t.Fatalf("expected match from MatchAny: %t, got %t",
			includeZeroHash, match)
	}
}

// TestGCSFilterCopy deserializes and serializes a filter to create a copy.
func TestGCSFilterCopy(t *testing.T) {
	serialized2, err := filter.Bytes()
	if err != nil {
		t.Fatalf("Filter Bytes() failed: %v", err)
	}
	filter2, err = gcs.FromBytes(filter.N(), P, M, serialized2)
	if err != nil {
		t.Fatalf("Filter copy failed: %s", err.Error())
	}
	serialized3, err := filter.NBytes()
	if err != nil {
		t.Fatalf("Filter NBytes() failed: %v", err)
	}
	filter3, err = gcs.FromNBytes(filter.P(), M, serialized3)
	if err != nil {
		t.Fatalf("Filter copy failed: %s", err.Error())
	}
}

// TestGCSFilterMetadata checks that the filter metadata is built and copied
// correctly.
func TestGCSFilterMetadata(t *testing.T) {
	if filter.P() != P {
		t.Fatal("P not correctly stored in filter metadata")
	}
	if filter.M() != M {
		t.Fatal("M not correctly stored in filter metadata")
	}
	if filter.N() != uint32(len(contents)) {
		t.Fatal("N not correctly stored in filter metadata")
	}
	if filter.P() != filter2.P() || filter.P() != filter3.P() {
		t.Fatal("P doesn't match between copied filters")
	}
	if filter.N() != filter2.N() || filter.N() != filter3.N() {
		t.Fatal("N doesn't match between copied filters")
	}
	serialized, err := filter.Bytes()
	if err != nil {
		t.Fatalf("Filter Bytes() failed: %v", err)
	}
	serialized2, err := filter2.Bytes()
	if err != nil {
		t.Fatalf("Filter Bytes() failed: %v", err)
	}
	if !bytes.Equal(serialized, serialized2) {
		t.Fatal("Bytes don't match between copied filters")
	}
	serialized3, err := filter3.Bytes()
	if err != nil {
		t.Fatalf("Filter Bytes() failed: %v", err)
	}
	if !bytes.Equal(serialized, serialized3) {
		t.Fatal("Bytes don't match between copied filters")
	}
}

// TestGCSFilterMatch checks that both the built and copied filters match
// correctly, logging any false positives without failing on them.
func TestGCSFilterMatch(t *testing.T) {
	for _, f := range []*gcs.Filter{filter, filter2, filter3} {
		for _, member := range [][]byte{[]byte("Nate"), []byte("Quentin")} {
			match, err := f.Match(key, member)
			if err != nil {
				t.Fatalf("Filter match failed: %s", err.Error())
			}
			if !match {
				t.Fatal("Filter didn't match when it should have!")
			}
		}
		for _, outsider := range [][]byte{[]byte("Nates"), []byte("Quentins")} {
			match, err := f.Match(key, outsider)
			if err != nil {
				t.Fatalf("Filter match failed: %s", err.Error())
			}
			if match {
				t.Logf("False positive match, should be 1 in 2**%d!", P)
			}
		}
	}
}

// AnyMatcher is the function signature of our matching algorithms.
type AnyMatcher func(key [gcs.KeySize]byte, data [][]byte) (bool, error)

// TestGCSFilterMatchAnySuite checks that all of our matching algorithms
// properly match a list correctly when using built or copied filters, logging
// any false positives without failing on them.
func TestGCSFilterMatchAnySuite(t *testing.T) {
	funcs := []struct {
		name     string
		matchAny func(*gcs.Filter) AnyMatcher
	}{
		{
			"default",
			func(f *gcs.Filter) AnyMatcher {
				return f.MatchAny
			},
		},
		{
			"hash",
			func(f *gcs.Filter) AnyMatcher {
				return f.HashMatchAny
			},
		},
		{
			"zip",
			func(f *gcs.Filter) AnyMatcher {
				return f.ZipMatchAny
			},
		},
	}

	for _, test := range funcs {
		test := test

		t.Run(test.name, func(t *testing.T) {
			contentsCopy := make([][]byte, len(contents2))
			copy(contentsCopy, contents2)

			for _, f := range []*gcs.Filter{filter, filter2, filter3} {
				match, err := test.matchAny(f)(key, contentsCopy)
				if err != nil {
					t.Fatalf("Filter match any failed: %s",
						err.Error())
				}
				if match {
					t.Logf("False positive match, should be "+
						"1 in 2**%d!", P)
				}
			}

			contentsCopy = append(contentsCopy, []byte("Nate"))

			for _, f := range []*gcs.Filter{filter, filter2, filter3} {
				match, err := test.matchAny(f)(key, contentsCopy)
				if err != nil {
					t.Fatalf("Filter match any failed: %s",
						err.Error())
				}
				if !match {
					t.Fatal("Filter didn't match any when it " +
						"should have!")
				}
			}
		})
	}
}

// TestGCSFilterOrderIndependence ensures permuting or duplicating the input
// collection produces a byte-identical filter, since the encoded form depends
// only on the set of distinct elements.
func TestGCSFilterOrderIndependence(t *testing.T) {
	reference, err := filter.NBytes()
	if err != nil {
		t.Fatalf("Filter NBytes() failed: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([][]byte, len(contents))
		copy(shuffled, contents)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		// Repeat a few elements; duplicates are removed before
		// hashing and must not change the output.
		shuffled = append(shuffled, shuffled[0], shuffled[3], shuffled[3])

		permuted, err := gcs.BuildGCSFilter(P, M, key, shuffled)
		if err != nil {
			t.Fatalf("Filter build failed: %s", err.Error())
		}
		if permuted.N() != uint32(len(contents)) {
			t.Fatalf("duplicates counted: N = %d, want %d",
				permuted.N(), len(contents))
		}

		serialized, err := permuted.NBytes()
		if err != nil {
			t.Fatalf("Filter NBytes() failed: %v", err)
		}
		if !bytes.Equal(serialized, reference) {
			t.Fatal("permuted input produced different bytes")
		}
	}
}

// TestGCSFilterEmpty checks the N = 0 filter: it serializes to a bare zero
// count, round-trips, and matches nothing.
func TestGCSFilterEmpty(t *testing.T) {
	empty, err := gcs.BuildGCSFilter(P, M, key, nil)
	if err != nil {
		t.Fatalf("Filter build failed: %s", err.Error())
	}
	if empty.N() != 0 {
		t.Fatalf("empty filter has N = %d", empty.N())
	}

	match, err := empty.Match(key, []byte("Nate"))
	if err != nil {
		t.Fatalf("Filter match failed: %s", err.Error())
	}
	if match {
		t.Fatal("empty filter matched")
	}
	match, err = empty.MatchAny(key, contents)
	if err != nil {
		t.Fatalf("Filter match any failed: %s", err.Error())
	}
	if match {
		t.Fatal("empty filter matched")
	}

	serialized, err := empty.NBytes()
	if err != nil {
		t.Fatalf("Filter NBytes() failed: %v", err)
	}
	if !bytes.Equal(serialized, []byte{0x00}) {
		t.Fatalf("unexpected empty serialization: %x", serialized)
	}

	loaded, err := gcs.FromNBytes(P, M, serialized)
	if err != nil {
		t.Fatalf("Filter copy failed: %s", err.Error())
	}
	match, err = loaded.Match(key, []byte("Nate"))
	if err != nil {
		t.Fatalf("Filter match failed: %s", err.Error())
	}
	if match {
		t.Fatal("empty filter matched")
	}
}

// TestGCSFilterCorruption ensures a stream truncated below what the declared
// item count requires is rejected at deserialization time, never answered
// from.
func TestGCSFilterCorruption(t *testing.T) {
	serialized, err := filter.NBytes()
	if err != nil {
		t.Fatalf("Filter NBytes() failed: %v", err)
	}

	// Lop off trailing bytes one at a time; every prefix must fail since
	// the last codeword is incomplete.
	for cut := 1; cut <= 4; cut++ {
		_, err := gcs.FromNBytes(P, M, serialized[:len(serialized)-cut])
		if err != gcs.ErrMisserialized {
			t.Fatalf("truncated by %d bytes: expected "+
				"ErrMisserialized, got %v", cut, err)
		}
	}

	// An empty buffer has no varint to parse.
	if _, err := gcs.FromNBytes(P, M, nil); err != gcs.ErrMisserialized {
		t.Fatalf("expected ErrMisserialized, got %v", err)
	}

	// A filter body shorter than N codewords is also misserialized.
	if _, err := gcs.FromBytes(filter.N(), P, M, nil); err != gcs.ErrMisserialized {
		t.Fatalf("expected ErrMisserialized, got %v", err)
	}
}

// TestGCSFilterFixedKeyScenario pins the behavior of a filter built with
// explicit parameters and an all-zero key: members always match, MatchAny
// with at least one member always matches, and a decoded copy answers
// identically to the original.
func TestGCSFilterFixedKeyScenario(t *testing.T) {
	var zeroKey [gcs.KeySize]byte
	elements := [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	built, err := gcs.BuildGCSFilter(20, 1<<20, zeroKey, elements)
	if err != nil {
		t.Fatalf("Filter build failed: %s", err.Error())
	}

	serialized, err := built.NBytes()
	if err != nil {
		t.Fatalf("Filter NBytes() failed: %v", err)
	}
	loaded, err := gcs.FromNBytes(20, 1<<20, serialized)
	if err != nil {
		t.Fatalf("Filter copy failed: %s", err.Error())
	}

	for _, f := range []*gcs.Filter{built, loaded} {
		for _, e := range elements {
			match, err := f.Match(zeroKey, e)
			if err != nil {
				t.Fatalf("Filter match failed: %s", err.Error())
			}
			if !match {
				t.Fatalf("Filter didn't match %q when it "+
					"should have!", e)
			}
		}

		match, err := f.MatchAny(zeroKey, [][]byte{[]byte("a"), []byte("z")})
		if err != nil {
			t.Fatalf("Filter match any failed: %s", err.Error())
		}
		if !match {
			t.Fatal("Filter didn't match any when it should have!")
		}

		// "d" may be a rare accepted false positive, but both copies
		// must agree on the answer.
		dBuilt, err := built.Match(zeroKey, []byte("d"))
		if err != nil {
			t.Fatalf("Filter match failed: %s", err.Error())
		}
		dLoaded, err := loaded.Match(zeroKey, []byte("d"))
		if err != nil {
			t.Fatalf("Filter match failed: %s", err.Error())
		}
		if dBuilt != dLoaded {
			t.Fatal("built and loaded filters disagree")
		}
	}
}
