// Command krokoc is the compiler-only CLI: it turns Kuroko source into
// a disassembled/cached code object and stops there. There is no VM in
// this module, so unlike the teacher's `noxy` there is nothing to
// interpret afterward — the REPL mode below exists only to exercise
// the compiler interactively, the same way `--disassembly` exists only
// to inspect what it produced.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"kuroko/internal/chunk"
	"kuroko/internal/compiler"
	"kuroko/internal/modcache"
	"kuroko/internal/plugin"
	"kuroko/internal/value"
)

const Version = "v0.1.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "krokoc: recovered from panic: %v\n", r)
			debug.PrintStack()
			os.Exit(2)
		}
	}()

	showDisassembly := flag.Bool("disassembly", false, "Show bytecode disassembly")
	showStats := flag.Bool("stats", false, "Show cache and chunk size statistics")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")
	showBuiltins := flag.Bool("builtins", false, "List registered builtin names and exit")
	cacheDir := flag.String("cache-dir", ".kuroko-cache", "Local chunk cache directory")
	remoteCache := flag.String("remote-cache", "", "Remote cache plugin executable (e.g. kuroko-cache-dynamodb)")
	remoteTable := flag.String("remote-table", "kuroko_chunks", "DynamoDB table name for the remote cache")
	remoteRegion := flag.String("remote-region", "us-east-1", "AWS region for the remote cache")
	remoteAccessKey := flag.String("remote-access-key", "", "Static AWS access key for the remote cache (defaults to the ambient credential chain)")
	remoteSecretKey := flag.String("remote-secret-key", "", "Static AWS secret key for the remote cache")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: krokoc [options] [file]\n\nOptions:\n")
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  --%s\n\t%s\n", f.Name, f.Usage)
		})
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVersion {
		fmt.Printf("krokoc %s\n", Version)
		return
	}
	if *showBuiltins {
		for _, name := range value.NewSimpleHost().BuiltinNames() {
			fmt.Println(name)
		}
		return
	}

	opts := runOptions{
		disasm:          *showDisassembly,
		stats:           *showStats,
		cacheDir:        *cacheDir,
		remoteCache:     *remoteCache,
		remoteTable:     *remoteTable,
		remoteRegion:    *remoteRegion,
		remoteAccessKey: *remoteAccessKey,
		remoteSecretKey: *remoteSecretKey,
		colorize:        isatty.IsTerminal(os.Stdout.Fd()),
	}

	args := flag.Args()
	if len(args) < 1 {
		startREPL(opts)
		return
	}

	filename := args[0]
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "krokoc: error reading file: %s\n", err)
		os.Exit(1)
	}

	if !compileOne(filename, string(content), opts) {
		os.Exit(1)
	}
}

type runOptions struct {
	disasm          bool
	stats           bool
	cacheDir        string
	remoteCache     string
	remoteTable     string
	remoteRegion    string
	remoteAccessKey string
	remoteSecretKey string
	colorize        bool
}

// compileOne runs one compile unit through the local (and, if
// configured, remote) chunk cache before falling back to a real
// compile, reporting a SyntaxError exactly the way §7 describes it.
// Returns false on failure so main can set a non-zero exit status.
func compileOne(filename, source string, opts runOptions) bool {
	sessionID := uuid.NewString()

	cache, err := modcache.Open(opts.cacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "krokoc[%s]: cache unavailable: %s\n", sessionID, err)
		cache = nil
	} else {
		defer cache.Close()
	}

	var remote *plugin.Client
	if opts.remoteCache != "" {
		remote, err = plugin.Start(opts.remoteCache, opts.remoteRegion, opts.remoteTable, opts.remoteAccessKey, opts.remoteSecretKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "krokoc[%s]: remote cache unavailable: %s\n", sessionID, err)
			remote = nil
		} else {
			defer remote.Close()
		}
	}

	hash := modcache.Hash(filename, source)
	co, hit, blobLen := lookupOrCompile(sessionID, filename, source, hash, cache, remote)
	if co == nil {
		return false
	}

	if opts.disasm {
		header := fmt.Sprintf("== %s ==", filename)
		if opts.colorize {
			header = "\x1b[1m" + header + "\x1b[0m"
		}
		fmt.Println(header)
		if ch, ok := co.Chunk.(*chunk.Chunk); ok {
			ch.DisassembleAll(co.QualName)
		}
	}

	if opts.stats {
		printStats(sessionID, co, hit, blobLen, cache)
	}

	return true
}

// lookupOrCompile checks the local cache, then the remote cache, then
// finally compiles from source, writing back to whichever caches were
// available so later invocations see the hit.
func lookupOrCompile(sessionID, filename, source, hash string, cache *modcache.Cache, remote *plugin.Client) (co *value.CodeObject, hit bool, blobLen int) {
	if cache != nil {
		if blob, ok, err := cache.Get(hash); err == nil && ok {
			if restored, err := modcache.Unmarshal(blob); err == nil {
				return restored, true, len(blob)
			}
		}
	}

	if remote != nil {
		if blob, ok, err := remote.Get(hash); err == nil && ok {
			if restored, err := modcache.Unmarshal(blob); err == nil {
				if cache != nil {
					cache.Put(hash, blob, nowUnix())
				}
				return restored, true, len(blob)
			}
		}
	}

	result, err := compiler.Compile(source, filename, value.NewSimpleHost())
	if err != nil {
		if _, ok := err.(*compiler.SyntaxError); ok {
			fmt.Fprintln(os.Stderr, err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "krokoc[%s]: %s\n", sessionID, err)
		}
		return nil, false, 0
	}

	blob, err := modcache.Marshal(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "krokoc[%s]: warning: failed to marshal for cache: %s\n", sessionID, err)
		return result, false, 0
	}
	if cache != nil {
		if err := cache.Put(hash, blob, nowUnix()); err != nil {
			fmt.Fprintf(os.Stderr, "krokoc[%s]: warning: local cache write failed: %s\n", sessionID, err)
		}
	}
	if remote != nil {
		if err := remote.Put(hash, blob); err != nil {
			fmt.Fprintf(os.Stderr, "krokoc[%s]: warning: remote cache write failed: %s\n", sessionID, err)
		}
	}
	return result, false, len(blob)
}

func printStats(sessionID string, co *value.CodeObject, hit bool, blobLen int, cache *modcache.Cache) {
	status := "miss"
	if hit {
		status = "hit"
	}
	codeBytes := 0
	if ch, ok := co.Chunk.(*chunk.Chunk); ok {
		codeBytes = len(ch.Code)
		fmt.Printf("session %s: cache %s, %s bytecode, %d constants\n",
			sessionID, status, humanize.Bytes(uint64(codeBytes)), len(ch.Constants))
	}
	if blobLen > 0 {
		fmt.Printf("cache entry: %s\n", humanize.Bytes(uint64(blobLen)))
	}
	if cache != nil {
		if count, total, err := cache.Stats(); err == nil {
			fmt.Printf("local cache: %d entries, %s total\n", count, humanize.Bytes(uint64(total)))
		}
	}
}

func nowUnix() int64 {
	return time.Now().Unix()
}

// startREPL compiles one line (or buffered multi-line block) at a time
// and shows its disassembly; there is no VM to hand the result to, so
// unlike the teacher's REPL this one never executes anything.
func startREPL(opts runOptions) {
	fmt.Printf("krokoc %s (compiler REPL, no VM attached)\n", Version)
	fmt.Println("Type 'exit' to quit.")

	reader := bufio.NewScanner(os.Stdin)
	var inputBuffer strings.Builder

	for {
		if inputBuffer.Len() == 0 {
			fmt.Print(">>> ")
		} else {
			fmt.Print("... ")
		}

		if !reader.Scan() {
			break
		}
		line := reader.Text()
		if strings.TrimSpace(line) == "exit" {
			break
		}
		if strings.TrimSpace(line) == "" && inputBuffer.Len() == 0 {
			continue
		}

		if inputBuffer.Len() > 0 {
			inputBuffer.WriteByte('\n')
		}
		inputBuffer.WriteString(line)

		_, err := compiler.Compile(inputBuffer.String(), "<repl>", value.NewSimpleHost())
		if err != nil && strings.Contains(err.Error(), "found end of file") {
			continue // incomplete input: keep buffering
		}

		name := fmt.Sprintf("<repl:%s>", filepath.Base(os.Args[0]))
		compileOne(name, inputBuffer.String(), opts)
		inputBuffer.Reset()
	}
}
