// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// gcsctl is a small utility for building, inspecting, and querying
// Golomb-coded set filters from the command line.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btclog"

	"github.com/lbryio/gcs"
	"github.com/lbryio/gcs/blockcf"
	"github.com/lbryio/gcs/builder"
)

var (
	cfg *config
	log btclog.Logger
)

// readEntries reads one filter entry per line from the configured input
// file, skipping blank lines.
func readEntries() ([][]byte, error) {
	if cfg.InFile == "" {
		return nil, fmt.Errorf("no entries file; use --infile")
	}

	fi, err := os.Open(cfg.InFile)
	if err != nil {
		return nil, err
	}
	defer fi.Close()

	var entries [][]byte
	scanner := bufio.NewScanner(fi)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cfg.HexInput {
			entry, err := hex.DecodeString(line)
			if err != nil {
				return nil, fmt.Errorf("bad hex entry %q: %v",
					line, err)
			}
			entries = append(entries, entry)
			continue
		}
		entries = append(entries, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	log.Infof("Read %d entries from %s", len(entries), cfg.InFile)
	return entries, nil
}

// readFilterHex reads a hex-encoded filter from stdin.
func readFilterHex() ([]byte, error) {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(string(raw)))
}

// filterKey resolves the SipHash key for raw (non-envelope) filters from
// the --key option.
func filterKey() ([gcs.KeySize]byte, error) {
	var key [gcs.KeySize]byte
	if cfg.Key == "" {
		return key, nil
	}

	decoded, err := hex.DecodeString(cfg.Key)
	if err != nil {
		return key, fmt.Errorf("bad key hex: %v", err)
	}
	if len(decoded) != gcs.KeySize {
		return key, fmt.Errorf("key must be %d bytes, got %d",
			gcs.KeySize, len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

// buildFilter builds a filter from the configured entries file and prints
// its serialized form as hex.  With --blockhash the filter is keyed to the
// block hash and wrapped in the tagged envelope.
func buildFilter() error {
	entries, err := readEntries()
	if err != nil {
		return err
	}

	if cfg.BlockHash != "" {
		blockHash, err := chainhash.NewHashFromStr(cfg.BlockHash)
		if err != nil {
			return fmt.Errorf("bad block hash: %v", err)
		}

		f, err := blockcf.New(blockcf.TypeRegular, blockHash, entries)
		if err != nil {
			return err
		}
		serialized, err := f.Bytes()
		if err != nil {
			return err
		}

		log.Infof("Built envelope filter: N=%d, %d bytes",
			f.Filter().N(), len(serialized))
		fmt.Println(hex.EncodeToString(serialized))
		return nil
	}

	key, err := filterKey()
	if err != nil {
		return err
	}

	f, err := builder.WithKeyPM(key, cfg.P, cfg.M).AddEntries(entries).Build()
	if err != nil {
		return err
	}
	serialized, err := f.NBytes()
	if err != nil {
		return err
	}

	log.Infof("Built filter: N=%d, %d bytes", f.N(), len(serialized))
	fmt.Println(hex.EncodeToString(serialized))
	return nil
}

// loadFilter decodes the hex filter on stdin using either the envelope or
// the raw form, returning the filter and the key to query it with.
func loadFilter() (*gcs.Filter, [gcs.KeySize]byte, error) {
	var key [gcs.KeySize]byte

	serialized, err := readFilterHex()
	if err != nil {
		return nil, key, err
	}

	if cfg.Envelope {
		f, err := blockcf.FromBytes(serialized)
		if err != nil {
			return nil, key, err
		}
		blockHash := f.BlockHash()
		log.Infof("Envelope: type=%d block=%s", f.Type(),
			blockHash.String())
		return f.Filter(), f.Key(), nil
	}

	key, err = filterKey()
	if err != nil {
		return nil, key, err
	}
	f, err := gcs.FromNBytes(cfg.P, cfg.M, serialized)
	if err != nil {
		return nil, key, err
	}
	return f, key, nil
}

// inspectFilter prints the metadata of the hex filter on stdin.
func inspectFilter() error {
	f, _, err := loadFilter()
	if err != nil {
		return err
	}

	serialized, err := f.NBytes()
	if err != nil {
		return err
	}

	fmt.Printf("N: %d\n", f.N())
	fmt.Printf("P: %d (fp rate 1/2^%d)\n", f.P(), f.P())
	fmt.Printf("M: %d\n", f.M())
	fmt.Printf("size: %d bytes\n", len(serialized))
	fmt.Printf("hash: %s\n", chainhash.DoubleHashH(serialized))
	return nil
}

// matchFilter matches the configured entries against the hex filter on
// stdin and reports each result.
func matchFilter() error {
	f, key, err := loadFilter()
	if err != nil {
		return err
	}

	entries, err := readEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no entries to match")
	}

	matched := 0
	for _, entry := range entries {
		match, err := f.Match(key, entry)
		if err != nil {
			return err
		}
		if match {
			matched++
		}
		display := string(entry)
		if cfg.HexInput {
			display = hex.EncodeToString(entry)
		}
		fmt.Printf("%-5t %s\n", match, display)
	}

	any, err := f.MatchAny(key, entries)
	if err != nil {
		return err
	}

	log.Infof("%d of %d entries matched, MatchAny=%t", matched,
		len(entries), any)
	return nil
}

// realMain is the real main function for the utility.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func realMain() error {
	// Load configuration and parse command line.
	tcfg, args, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	// Setup logging.
	backendLogger := btclog.NewBackend(os.Stderr)
	defer os.Stderr.Sync()
	log = backendLogger.Logger("GCSC")

	switch args[0] {
	case "build":
		err = buildFilter()
	case "inspect":
		err = inspectFilter()
	case "match":
		err = matchFilter()
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		log.Errorf("%v", err)
	}
	return err
}

func main() {
	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
