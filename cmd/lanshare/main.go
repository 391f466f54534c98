package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"

	"lanshare/internal/config"
	"lanshare/internal/httpserver"
	"lanshare/internal/logging"
	"lanshare/internal/netinfo"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lanshare: %v\n", err)
		os.Exit(2)
	}
	logging.Init(cfg.LogLevel, os.Stdout)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// loadConfig layers defaults, the optional config file, LANSHARE_* variables
// and finally any flags given on the command line.
func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("lanshare", flag.ContinueOnError)
	var (
		cfgPath   = fs.String("config", "", "path to a YAML or JSON config file")
		addr      = fs.String("addr", config.DefaultAddr, "listen address")
		root      = fs.String("root", config.DefaultRoot, "directory to share (created if missing)")
		maxUpload = fs.String("max-upload", "100MiB", "largest accepted upload request")
		chunkSize = fs.String("chunk-size", "8KiB", "download chunk size")
		maxConns  = fs.Int("max-conns", 0, "maximum concurrent connections (0 = unlimited)")
		logLevel  = fs.String("log-level", config.DefaultLogLevel, "debug, info, warn or error")
		qr        = fs.Bool("qr", false, "print a QR code of the LAN URL")
	)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *cfgPath != "" {
		if err := cfg.LoadFile(*cfgPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	var o config.Override
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			o.Addr = addr
		case "root":
			o.Root = root
		case "max-upload":
			o.MaxUploadSize = maxUpload
		case "chunk-size":
			o.ChunkSize = chunkSize
		case "max-conns":
			o.MaxConns = maxConns
		case "log-level":
			o.LogLevel = logLevel
		case "qr":
			o.QR = qr
		}
	})
	if err := cfg.Merge(&o); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Finalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	srv, err := httpserver.New(httpserver.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	// no read/write timeouts: a slow LAN client may hold a large transfer open
	hs := &http.Server{Handler: srv.Handler()}

	errc := make(chan error, 1)
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	banner(os.Stdout, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// half-block glyphs, two QR rows per terminal line
const (
	qrBlackWhite = "▄"
	qrBlackBlack = " "
	qrWhiteBlack = "▀"
	qrWhiteWhite = "█"
)

func banner(w io.Writer, cfg config.Config) {
	lan := netinfo.URL(netinfo.LocalIP(), cfg.Addr)
	fmt.Fprintf(w, "🚀 Serving %q\n", cfg.Root)
	fmt.Fprintf(w, "📍 Local:   %s\n", netinfo.LocalURL(cfg.Addr))
	fmt.Fprintf(w, "🌍 Network: %s\n", lan)
	fmt.Fprintf(w, "📊 Max upload size: %s\n", humanize.IBytes(uint64(cfg.MaxUploadSize)))
	fmt.Fprintf(w, "⚡ Chunk size: %s\n", humanize.IBytes(uint64(cfg.ChunkSize)))
	if cfg.MaxConns > 0 {
		fmt.Fprintf(w, "🔒 Max connections: %d\n", cfg.MaxConns)
	}
	if cfg.QR {
		fmt.Fprintln(w, "\n📱 Scan to open on your phone:")
		qrterminal.GenerateWithConfig(lan, qrterminal.Config{
			Level:          qrterminal.M,
			Writer:         w,
			HalfBlocks:     true,
			BlackChar:      qrBlackBlack,
			WhiteBlackChar: qrWhiteBlack,
			WhiteChar:      qrWhiteWhite,
			BlackWhiteChar: qrBlackWhite,
			QuietZone:      1,
		})
	}
}
