// Package main provides a command-line tool for packing, listing and
// extracting MAKAKA archives.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"makakatool/pkg/makaka"
)

var (
	mode      string
	output    string
	codecName string
	verbose   bool
)

func init() {
	flag.StringVar(&mode, "mode", "", "Operation mode: pack, unpack, list")
	flag.StringVar(&output, "o", "", "Output archive for pack, output directory for unpack")
	flag.StringVar(&codecName, "c", "zstd", "Codec for pack mode: none, zstd, lz4")
	flag.BoolVar(&verbose, "v", false, "Print per-entry progress during unpack")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	switch mode {
	case "pack":
		return runPack(flag.Args())
	case "unpack":
		return runUnpack(flag.Args())
	case "list":
		return runList(flag.Args())
	case "":
		flag.Usage()
		return fmt.Errorf("mode is required")
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func runPack(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no input files specified")
	}

	codec, err := makaka.ParseCodec(codecName)
	if err != nil {
		return err
	}

	paths, err := collectInputs(args)
	if err != nil {
		return err
	}

	out := output
	if out == "" {
		out = "archive.makaka"
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	result, err := makaka.Build(f, paths, codec)
	if err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	fmt.Printf("Created archive: %s (%d files", out, len(result.Entries))
	if len(result.Skipped) > 0 {
		fmt.Printf(", %d skipped", len(result.Skipped))
	}
	fmt.Println(")")
	return nil
}

// collectInputs expands directory arguments into the files they
// contain, in walk order. Paths that cannot be inspected are passed
// through for Build to warn about.
func collectInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			paths = append(paths, arg)
			continue
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return paths, nil
}

func runUnpack(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no archive specified")
	}

	destRoot := output
	if destRoot == "" {
		destRoot = "."
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	r, err := makaka.NewReader(f)
	if err != nil {
		return err
	}

	var opts []makaka.ExtractOption
	if verbose {
		header := r.Header()
		fmt.Printf("Archive version: %d.%d\n", header.Version>>8, header.Version&0xff)
		fmt.Printf("Codec: %s\n", header.Codec)
		fmt.Printf("Files in archive: %d\n", header.EntryCount)
		opts = append(opts, makaka.WithProgress(func(e makaka.Entry) {
			fmt.Printf("Extracting %s (%d -> %d bytes)\n", e.Name, e.OriginalSize, e.CompressedSize)
		}))
	}

	if _, err := r.Extract(destRoot, opts...); err != nil {
		return err
	}

	fmt.Printf("Extracted to: %s\n", destRoot)
	return nil
}

func runList(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no archive specified")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	r, err := makaka.NewReader(f)
	if err != nil {
		return err
	}

	entries, err := r.List()
	if err != nil {
		return err
	}

	header := r.Header()
	fmt.Printf("Archive: %s\n", args[0])
	fmt.Printf("Version: %d.%d\n", header.Version>>8, header.Version&0xff)
	fmt.Printf("Codec: %s\n", header.Codec)
	fmt.Printf("Files: %d\n\n", len(entries))

	for _, e := range entries {
		fmt.Printf("%s (%d bytes, compressed to %d bytes)\n", e.Name, e.OriginalSize, e.CompressedSize)
	}
	return nil
}
