package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/flyvr_rig/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins on the lab network
	},
}

// WebOptions configures RunWeb.
type WebOptions struct {
	// StaticDir is served at /. Empty disables static files.
	StaticDir string
	// Calibrate, when set, enables the /ws/calibration endpoint.
	Calibrate CalibrateFunc
}

// RunWeb subscribes to the rig telemetry and serves it over HTTP until ctx
// is cancelled:
//
//	GET /api/state   latest tracker sample, stage status and stimulus
//	GET /ws          the same, pushed every TELEMETRY_INTERVAL
//	GET /ws/calibration  stage calibration, when enabled
func RunWeb(ctx context.Context, cfg *config.Config, opts WebOptions) error {
	if cfg.MQTTBroker == "" {
		return errors.New("web: MQTT_BROKER is not set")
	}
	state := &LiveState{}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeLive(client, cfg, state, "web", nil); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: newWebMux(ctx, state, cfg.TelemetryIntervalDuration(), opts),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("web: server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
		defer cancel()
		log.Printf("web: shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newWebMux(ctx context.Context, state *LiveState, interval time.Duration, opts WebOptions) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		snap := state.Snapshot()
		if snap.Empty() {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()
		streamState(ctx, conn, state, interval)
	})

	if opts.Calibrate != nil {
		mux.HandleFunc("/ws/calibration", handleCalibrationWS(ctx, opts.Calibrate))
	}

	if opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(opts.StaticDir)))
	}
	return mux
}

// streamState pushes snapshots to conn until the client goes away or ctx is
// cancelled. Nothing is sent before the first telemetry arrives.
func streamState(ctx context.Context, conn *websocket.Conn, state *LiveState, interval time.Duration) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-gone:
			return
		case <-ticker.C:
			snap := state.Snapshot()
			if snap.Empty() {
				continue
			}
			if err := conn.WriteJSON(snap); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}
