package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samsaffron/qa-chat/internal/chain"
	"github.com/samsaffron/qa-chat/internal/pprof"
	"github.com/samsaffron/qa-chat/internal/serve/chat"
	"github.com/samsaffron/qa-chat/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string
var serveStore string
var serveToken string
var servePprof int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web chat UI",
	Long: `Start the browser chat UI.

Each browser tab gets its own session. Users paste their own API key in the
sidebar unless serve.share_configured_key is enabled.

Examples:
  qa-chat serve
  qa-chat serve --addr 127.0.0.1:9000
  qa-chat serve --store sqlite --token s3cret`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from serve.addr)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Transcript store: memory or sqlite")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token on /chat and /api endpoints")
	serveCmd.Flags().IntVar(&servePprof, "pprof", -1, "Also serve /debug/pprof on 127.0.0.1 at this port (0 picks one)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if serveStore != "" {
		cfg.Store.Driver = serveStore
	}
	if serveToken != "" {
		cfg.Serve.Token = serveToken
	}
	initLogging(cfg, cmd.ErrOrStderr())

	store, err := session.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	chains := chain.NewCache(chain.DefaultCacheSize, newChainFactory(cfg))
	mgr, err := chat.NewSessionManager(cfg, store, chains)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Serve.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Serve.Addr, err)
	}

	if servePprof >= 0 {
		profiler := pprof.NewServer()
		port, err := profiler.Start(servePprof)
		if err != nil {
			ln.Close()
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pprof on http://127.0.0.1:%d/debug/pprof/\n", port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = profiler.Stop(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serveHTTP(ctx, ln, mgr, cmd.OutOrStdout())
}

// serveHTTP runs the chat server and its session GC until ctx is done, then
// shuts both down.
func serveHTTP(ctx context.Context, ln net.Listener, mgr *chat.SessionManager, out io.Writer) error {
	srv := &http.Server{
		Handler:           mgr.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		mgr.StartGC(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		mgr.Close()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("serve_listening", "addr", ln.Addr().String())
	fmt.Fprintf(out, "Chat UI listening on http://%s\n", ln.Addr())

	err := g.Wait()
	slog.Info("serve_stopped")
	return err
}
