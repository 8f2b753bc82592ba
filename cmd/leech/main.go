// Command leech tracks CSV table sources through a chain of
// content-addressable blocks and publishes consolidated patches for
// downstream replay, either as subcommands driven from the shell or
// as an HTTP admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/csvleech/leech/internal/api/http"
	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/engine"
	"github.com/csvleech/leech/internal/server"
	"github.com/csvleech/leech/internal/sqlemit"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/internal/truncate"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "record":
		runRecord(args)
	case "publish":
		runPublish(args)
	case "ack":
		runAck(args)
	case "truncate":
		runTruncate(args)
	case "serve":
		runServe(args)
	case "version":
		fmt.Printf("leech version %s (commit: %s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "leech - track CSV table changes and publish SQL-replayable patches\n\n")
	fmt.Fprintf(os.Stderr, "Usage: leech <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  record     diff configured CSV sources against tracked state and write a block\n")
	fmt.Fprintf(os.Stderr, "  publish    consolidate blocks between HEAD and an ancestor into a patch\n")
	fmt.Fprintf(os.Stderr, "  ack        record that a published patch was applied downstream\n")
	fmt.Fprintf(os.Stderr, "  truncate   run the pruning pass manually\n")
	fmt.Fprintf(os.Stderr, "  serve      run the HTTP admin API\n")
	fmt.Fprintf(os.Stderr, "  version    print version information\n")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func loadConfig(configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, cfg.Validate()
}

func mustEngine(configFile *string, log *slog.Logger) *engine.Engine {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	e, err := engine.New(context.Background(), cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	return e
}

func runRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configFile := fs.String("config", "", "path to configuration file (YAML or JSON)")
	fs.Parse(args)

	log := newLogger()
	e := mustEngine(configFile, log)

	head, err := e.Record(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "record: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(head)
}

func runPublish(args []string) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	configFile := fs.String("config", "", "path to configuration file (YAML or JSON)")
	ancestor := fs.String("ancestor", "", "hash to publish back to (default: REPORTED, or genesis)")
	sql := fs.Bool("sql", false, "print the patch's SQL replay text instead of the encoded patch")
	out := fs.String("out", "", "file to write the encoded patch to (default: stdout)")
	fs.Parse(args)

	log := newLogger()
	e := mustEngine(configFile, log)

	p, err := e.Publish(context.Background(), *ancestor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "publish: %v\n", err)
		os.Exit(1)
	}

	if *sql {
		text, err := sqlemit.Emit(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "emit SQL: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(text)
		return
	}

	encoded, err := codec.Encode(p, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode patch: %v\n", err)
		os.Exit(1)
	}
	if *out == "" {
		os.Stdout.Write(encoded)
		return
	}
	if err := os.WriteFile(*out, encoded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
}

func runAck(args []string) {
	fs := flag.NewFlagSet("ack", flag.ExitOnError)
	configFile := fs.String("config", "", "path to configuration file (YAML or JSON)")
	in := fs.String("in", "", "file holding the encoded patch to acknowledge (default: stdin)")
	reported := fs.Bool("reported", false, "advance REPORTED to the patch's HEAD hash")
	fs.Parse(args)

	log := newLogger()
	e := mustEngine(configFile, log)

	var data []byte
	var err error
	if *in == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*in)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read patch: %v\n", err)
		os.Exit(1)
	}

	if err := e.Ack(context.Background(), data, *reported); err != nil {
		fmt.Fprintf(os.Stderr, "ack: %v\n", err)
		os.Exit(1)
	}
}

func runTruncate(args []string) {
	fs := flag.NewFlagSet("truncate", flag.ExitOnError)
	configFile := fs.String("config", "", "path to configuration file (YAML or JSON)")
	fs.Parse(args)

	log := newLogger()
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	s, err := store.New(context.Background(), store.Config{
		Type:         cfg.Storage.Type,
		WorkDir:      cfg.WorkDir,
		Bucket:       cfg.Storage.Bucket,
		Prefix:       cfg.Storage.Prefix,
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build store: %v\n", err)
		os.Exit(1)
	}
	if err := truncate.Run(context.Background(), s, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "truncate: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "", "path to configuration file (YAML or JSON)")
	addr := fs.String("addr", ":8080", "HTTP listen address")
	withSQL := fs.Bool("sql", false, "include SQL replay text in /v1/publish responses")
	fs.Parse(args)

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	e := mustEngine(configFile, log)

	shutdown := server.NewShutdownManager(server.DefaultShutdownConfig(), log)

	mux := http.NewServeMux()
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(shutdown),
		httpapi.RecoveryMiddleware,
		httpapi.RequestIDMiddleware,
		httpapi.CorrelationIDMiddleware,
		httpapi.LoggingMiddleware(log),
		httpapi.ContentTypeMiddleware,
	)
	mux.Handle("/v1/record", middleware(httpapi.NewRecordHandler(e)))
	mux.Handle("/v1/publish", middleware(httpapi.NewPublishHandler(e, *withSQL)))
	mux.Handle("/v1/ack", middleware(httpapi.NewAckHandler(e)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy","service":"leech"}`)
	})

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}
	gs := server.NewGracefulHTTPServer(httpServer, shutdown)

	log.Info("leech admin API listening", "addr", *addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		shutdown.Shutdown(ctx, "signal")
	}()

	if err := gs.ListenAndServe(); err != nil {
		log.Error("admin API stopped", "error", err)
		os.Exit(1)
	}
}

