// Package main implements workloadgen, a tiny helper utility to generate
// deterministic synthetic mediation workloads for benchmarking the decision
// cache and orchestrator outside `go test`, producing (uid, cell, category,
// owner, action) tuples under a configurable cell-popularity distribution.
//
// Usage:
//
//	go run ./tools/workloadgen -n 100000 -cells 64 -dist zipf -seed 42 -out workload.txt
//
// Each output line is "<uid> <cell> <category> <owner> <action>", directly
// parseable by internal/wire.ParseRequestLine-shaped consumers (minus the
// leading request id, which a consumer assigns itself).
//
// © 2025 trustedcell authors. MIT License.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

var categories = []string{"docs", "~secrets", "media", "~config", "logs"}
var actions = []string{"posix.open_ro", "posix.open_rw", "posix.unlink", "posix.exec", "net.connect"}

func main() {
	var (
		n       = flag.Int("n", 100_000, "number of requests to generate")
		cells   = flag.Int("cells", 64, "distinct cell identifier count")
		dist    = flag.String("dist", "uniform", "cell popularity distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	if *cells <= 0 {
		fmt.Fprintln(os.Stderr, "cells must be > 0")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var cellIdx func() uint64
	switch *dist {
	case "uniform":
		cellIdx = func() uint64 { return uint64(rnd.Intn(*cells)) }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, uint64(*cells-1))
		cellIdx = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	for i := 0; i < *n; i++ {
		uid := uint32(1000 + rnd.Intn(50))
		cell := fmt.Sprintf("cell-%d", cellIdx())
		category := categories[rnd.Intn(len(categories))]
		action := actions[rnd.Intn(len(actions))]
		owner := cell
		fmt.Fprintf(w, "%d %s %s %s %s\n", uid, cell, category, owner, action)
	}
}
