package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/yolkispalkis/pacselect/pkg/config"
	"github.com/yolkispalkis/pacselect/pkg/logging"
	"github.com/yolkispalkis/pacselect/pkg/proxy"
	"github.com/yolkispalkis/pacselect/pkg/signals"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliFlags struct {
	configPath  string
	pacURL      string
	showVersion bool
}

func main() {
	var globalShutdownOnce sync.Once
	ctx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// --- Panic Recovery ---
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PACSELECT PANIC: %v\n%s\n", r, string(debug.Stack()))
			os.Exit(1)
		}
	}()

	// --- Flag Parsing ---
	flags := parseFlags()
	if flags.showVersion {
		fmt.Printf("pacselect %s, commit %s, built at %s\n", version, commit, date)
		return
	}

	// --- Configuration & Logging ---
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if flags.pacURL != "" {
		cfg.Proxy.Type = config.TypePAC
		cfg.Proxy.PacURL = flags.pacURL
	}
	logCloser := logging.Setup(cfg.LogLevel, cfg.LogPath, os.Stderr)
	defer logCloser.Close()
	slog.Info("Starting pacselect", "version", version, "pid", os.Getpid(), "proxy_type", cfg.Proxy.Type)

	// --- Signal Handling ---
	signals.SetupHandler(ctx, rootCancel, &globalShutdownOnce)

	// --- Selector ---
	manager, err := proxy.NewManager(&cfg.Proxy)
	if err != nil {
		slog.Error("Failed to initialize proxy manager", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	if args := flag.Args(); len(args) > 0 {
		for _, raw := range args {
			if ctx.Err() != nil {
				break
			}
			printSelection(ctx, manager, raw, os.Stdout)
		}
		return
	}

	if err := selectLines(ctx, manager, os.Stdin, os.Stdout); err != nil {
		slog.Error("Failed reading URLs from stdin", "error", err)
		os.Exit(1)
	}
	slog.Info("pacselect exited gracefully.")
}

func parseFlags() cliFlags {
	var flags cliFlags
	flag.StringVar(&flags.configPath, "config", "", "Path to config file (optional)")
	flag.StringVar(&flags.pacURL, "pac", "", "PAC script URL or path; overrides proxy.type and proxy.pac_url")
	flag.BoolVar(&flags.showVersion, "version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [URL...]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Prints the proxies to use for each URL, or for each line read from stdin.")
		flag.PrintDefaults()
	}
	flag.Parse()
	return flags
}

// selectLines answers one URL per input line until EOF or ctx is done.
func selectLines(ctx context.Context, sel proxy.Selector, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			printSelection(ctx, sel, line, w)
		}
	}
}

func printSelection(ctx context.Context, sel proxy.Selector, raw string, w io.Writer) {
	u, err := url.Parse(raw)
	if err != nil {
		slog.Warn("Skipping invalid URL", "url", raw, "error", err)
		fmt.Fprintf(w, "%s\tERROR %v\n", raw, err)
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", u.Redacted(), sel.Select(ctx, u))
}
