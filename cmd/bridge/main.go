package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/codeshield-bridge/internal/bridge"
	"github.com/banshee-data/codeshield-bridge/internal/config"
	"github.com/banshee-data/codeshield-bridge/internal/db"
	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
	"github.com/banshee-data/codeshield-bridge/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	devMode     = flag.Bool("dev", false, "Use a simulated board instead of the serial port")
	listen      = flag.String("listen", config.DefaultListen, "Address the Scratch client connects to")
	dbPath      = flag.String("db", "", "SQLite history file (empty disables history)")
	debugListen = flag.String("debug-listen", "", "Address for the /debug/ admin routes (empty disables them)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [serial-device]\n\n", os.Args[0])
	fmt.Fprintf(flag.CommandLine.Output(), "serial-device defaults to %s.\n\n", config.DefaultDevice)
	flag.PrintDefaults()
}

// resolveConfig merges the config file, explicitly set flags and the positional
// serial device, in increasing order of precedence.
func resolveConfig(set map[string]bool, args []string) (*config.Config, error) {
	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	if set["listen"] || cfg.Listen == "" {
		cfg.Listen = *listen
	}
	if set["db"] {
		cfg.Database = *dbPath
	}
	if set["debug-listen"] {
		cfg.DebugListen = *debugListen
	}

	switch len(args) {
	case 0:
	case 1:
		cfg.Serial.Device = args[0]
	default:
		return nil, fmt.Errorf("expected at most one serial device, got %d arguments", len(args))
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// openBoard dials the configured serial device, or a simulated board in dev mode.
func openBoard(cfg *config.Config, dev bool) (*serialmux.Conn, error) {
	if dev {
		sim := serialmux.SerialPortOpener(func(string, serialmux.PortOptions) (serialmux.SerialPorter, error) {
			return serialmux.NewSimulator(nil), nil
		})
		return serialmux.Dial(sim, "simulator", cfg.Serial.PortOptions)
	}
	return serialmux.Dial(serialmux.RealPortFactory{}, cfg.Serial.Device, cfg.Serial.PortOptions)
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		server.Close()
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := resolveConfig(set, flag.Args())
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("starting %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device := cfg.Serial.Device
	if *devMode {
		device = "simulator"
	}
	board, err := openBoard(cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to open board: %v", err)
	}
	log.Printf("board ready on %s", device)

	opts := bridge.SessionOptions{}
	var history *db.DB
	if cfg.Database != "" {
		history, err = db.NewDB(cfg.Database)
		if err != nil {
			board.Close()
			log.Fatalf("failed to open history database: %v", err)
		}
		defer history.Close()
		opts.History = bridge.HistoryFunc(func(id string) (bridge.SessionRecord, error) {
			return history.BeginSession(id, device)
		})
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		board.Close()
		log.Fatalf("failed to listen on %s: %v", cfg.Listen, err)
	}
	server := bridge.NewServer(ln, board, opts)

	if cfg.DebugListen != "" {
		mux := http.NewServeMux()
		server.AttachAdminRoutes(mux)
		board.AttachAdminRoutes(mux)
		if history != nil {
			history.AttachAdminRoutes(mux)
		}
		go serveDebug(ctx, cfg.DebugListen, mux)
		log.Printf("debug routes on http://%s/debug/", cfg.DebugListen)
	}

	err = server.Serve(ctx)
	switch {
	case err == nil:
		log.Printf("session ended")
	case errors.Is(err, context.Canceled):
		log.Printf("shutdown requested")
	default:
		// deferred closes do not run after Fatalf
		if history != nil {
			history.Close()
		}
		log.Fatalf("session failed: %v", err)
	}
}
