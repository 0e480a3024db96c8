// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2016-2017 The Lightning Network Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package gcs provides an API for building and using a Golomb-coded set filter.

# Golomb-Coded Set

A Golomb-coded set is a probabilistic data structure used similarly to a Bloom
filter.  A filter uses constant-size overhead plus on average n+2 bits per
item added to the filter, where 2^-n is the desired false positive (collision)
probability.  Queries have no false negatives: an item that was added to the
filter always matches.

# GCS use for address filters

GCS filters are a mechanism for storing and transmitting per-block address
filters.  The usage is intended to be the inverse of Bloom filters: a
consensus-validating full node commits to a single filter for every block and
serves the filter to light clients that match against the filter locally to
determine if the block is potentially relevant, without revealing exactly
which addresses they are interested in.  If a filter matches, the client
fetches the whole block and inspects it for relevant transactions.

Filter contents are hashed with the SipHash-2-4 keyed hash function and mapped
into a bounded universe with a multiply-and-shift reduction, so filters built
with the same parameters and key are byte-for-byte reproducible from the same
element set regardless of input order or duplication.
*/
package gcs
