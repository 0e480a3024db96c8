// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2016-2017 The Lightning Network Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gcs

// uint64Slice implements sort.Interface for a []uint64 so hashed filter
// values can be sorted with Go's sort package.
type uint64Slice []uint64

// Len returns the length of the slice.
func (p uint64Slice) Len() int {
	return len(p)
}

// Less returns whether the ith element is smaller than the jth element.
func (p uint64Slice) Less(i, j int) bool {
	return p[i] < p[j]
}

// Swap swaps two slice elements.
func (p uint64Slice) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}
