// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/lbryio/gcs/builder"
)

// config defines the configuration options for gcsctl.
//
// See loadConfig for details on the configuration load process.
type config struct {
	BlockHash string `short:"b" long:"blockhash" description:"Hex-encoded block hash to key the filter to; when set, output and input use the tagged envelope form"`
	Key       string `short:"k" long:"key" description:"Hex-encoded 16-byte SipHash key for raw filters; ignored when --blockhash is set"`
	P         uint8  `short:"p" long:"fprate" description:"Golomb-Rice collision parameter; the false positive rate is 1/2^P"`
	M         uint64 `short:"m" long:"modulus" description:"Per-element hash range modulus"`
	InFile    string `short:"i" long:"infile" description:"File containing one filter entry per line"`
	HexInput  bool   `long:"hex" description:"Treat entry lines as hex-encoded binary instead of raw strings"`
	Envelope  bool   `short:"e" long:"envelope" description:"Input filter is in tagged envelope form (type || blockhash || filter)"`
}

// commandUsage describes the accepted positional arguments.
const commandUsage = `command:
  build    build a filter from the entries in --infile and print it as hex
  inspect  read a hex filter from stdin and print its metadata
  match    read a hex filter from stdin and match the entries in --infile`

// loadConfig initializes and parses the config using command line options.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		P: builder.DefaultP,
		M: builder.DefaultM,
	}

	// Parse command line options.
	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] command\n\n" + commandUsage
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if len(remainingArgs) != 1 {
		err := fmt.Errorf("loadConfig: expected exactly one command, " +
			"one of build, inspect, or match")
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}
