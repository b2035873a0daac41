// Command mcapp-updater is the standalone update runner launched by the
// gateway to perform one deploy/rollback attempt out-of-process, so a
// failed bootstrap can't take the gateway's own HTTP server down with it
// (spec.md §4.7). It listens on a fixed loopback-only port, streams progress
// over SSE on /stream, answers /status and /slots, and self-terminates a
// grace period after the attempt completes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/update"
)

const gracePeriod = 30 * time.Second

func main() {
	var (
		slotsHome     = flag.String("slots-home", os.ExpandEnv("$HOME/mcapp-slots"), "path to the slot layout root")
		etcDir        = flag.String("etc-dir", "/etc/mcapp", "directory snapshotted/restored around the swap")
		bootstrapPath = flag.String("bootstrap", "/usr/local/libexec/mcapp-bootstrap.sh", "bootstrap script run into the target slot")
		version       = flag.String("version", "unspecified", "version string recorded in the target slot's metadata")
		port          = flag.Int("port", 2985, "loopback-only listen port")
		webRoot       = flag.String("web-root-url", "http://127.0.0.1/", "health check: web root reachability")
		sseHealth     = flag.String("sse-health-url", "http://127.0.0.1:8088/health", "health check: gateway health endpoint")
		proxyURL      = flag.String("proxy-url", "http://127.0.0.1/", "health check: reverse proxy reachability")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	layout := update.NewLayout(*slotsHome)
	if err := layout.Ensure(); err != nil {
		logger.Fatal("failed to initialize slot layout", zap.Error(err))
	}

	events := update.NewBroadcaster()
	checks := update.StandardChecks(*webRoot, *sseHealth, *proxyURL)
	controller := update.NewController(logger, layout, events, *etcDir, *bootstrapPath, checks)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", events.ServeHTTP)

	resultCh := make(chan update.Result, 1)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		select {
		case result := <-resultCh:
			resultCh <- result
			writeJSON(w, result)
		default:
			writeJSON(w, map[string]any{"running": true})
		}
	})
	mux.HandleFunc("/slots", func(w http.ResponseWriter, r *http.Request) {
		metas, err := layout.AllMeta()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, metas)
	})

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to bind updater port", zap.Error(err))
	}

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("updater HTTP server error", zap.Error(err))
		}
	}()
	logger.Info("mcapp-updater listening", zap.String("addr", addr))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	result := controller.Run(ctx, *version)
	resultCh <- result

	exitCode := 0
	if !result.Succeeded {
		logger.Error("update attempt failed", zap.String("error", result.Error))
		exitCode = 1
	} else {
		logger.Info("update attempt succeeded", zap.Int("target_slot", result.TargetSlot))
	}

	time.Sleep(gracePeriod)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	srv.Shutdown(shutdownCtx)
	shutdownCancel()

	os.Exit(exitCode)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
