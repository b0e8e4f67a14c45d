// Command pump-controller drives a pump relay through alternating
// pulse and pause phases and serves a control page over HTTP.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/pump-controller/internal/config"
	"github.com/sweeney/pump-controller/internal/discovery"
	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/logic"
	"github.com/sweeney/pump-controller/internal/mqtt"
	"github.com/sweeney/pump-controller/internal/settings"
	"github.com/sweeney/pump-controller/internal/status"
	"github.com/sweeney/pump-controller/internal/web"
)

// eventBuffer is the controller's event channel capacity.
const eventBuffer = 64

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if stderrors.Is(err, config.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "pump-controller: %v\n", err)
		os.Exit(2)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if cfg.File != "" {
		logger.Info().Str("file", cfg.File).Msg("Loaded config file")
	}

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("Fatal error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	relay, simulated := openRelay(cfg)
	defer relay.Close()

	store, dbPath := openStore(cfg.DB)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close settings store")
		}
	}()

	pulse, pause := settings.LoadDurations(store, cfg.DefaultPulse, cfg.DefaultPause)
	durations := logic.Durations{Pulse: logic.Seconds(pulse), Pause: logic.Seconds(pause)}
	if err := durations.Validate(); err != nil {
		return fmt.Errorf("initial durations: %w", err)
	}

	state := logic.NewState(durations)
	ctrl := logic.NewController(state, relay,
		logic.WithPoll(cfg.Poll),
		logic.WithActiveLow(cfg.ActiveLow),
		logic.WithEvents(eventBuffer),
	)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Pin:         cfg.Pin,
		ActiveLow:   cfg.ActiveLow,
		Simulated:   simulated,
		DBPath:      dbPath,
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTP,
	}, state, store)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	publisher, mqttStatus := openPublisher(cfg.Broker, tracker)
	defer publisher.Close()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish startup event")
	}

	// Start HTTP control server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Str("addr", cfg.HTTP).Msg("HTTP server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Info().Str("addr", cfg.HTTP).Msg("HTTP control server listening")

		if cfg.MDNS {
			adv := advertise(cfg.HTTP)
			defer adv.Stop()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	ticker := time.NewTicker(ctrl.Poll())
	defer ticker.Stop()

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx, ticker.C); err != nil {
			logger.Error().Err(err).Msg("Controller stopped")
		}
	}()
	go func() {
		defer wg.Done()
		mqtt.Forward(ctx, ctrl.Events(), publisher)
	}()

	logger.Info().
		Dur("poll", cfg.Poll).
		Float64("pulse", pulse).
		Float64("pause", pause).
		Int("pin", cfg.Pin).
		Bool("simulated", simulated).
		Str("broker", cfg.Broker).
		Msg("Started")

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := runLoop(publisher, mqttStatus, tracker, time.Now, heartbeat, sigCh)

	// Stop the controller first so the relay is idle before SHUTDOWN goes out.
	cancel()
	wg.Wait()

	publishShutdown(publisher, mqttStatus, tracker, time.Now, reason)
	return nil
}

// runLoop publishes heartbeats until a signal arrives and returns the
// signal name for the SHUTDOWN event.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) string {
	for {
		select {
		case s := <-sig:
			logger.Info().Str("signal", s.String()).Msg("Shutting down")
			return signalName(s)

		case <-heartbeat:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			logger.Debug().
				Dur("uptime", snap.Uptime()).
				Int("cycles", snap.Cycles).
				Str("phase", string(snap.Phase)).
				Msg("Heartbeat")

			hbEvent := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				logger.Warn().Err(err).Msg("Heartbeat publish error")
			}
		}
	}
}

func publishShutdown(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, reason string) {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// openRelay returns the GPIO output line, or a logging writer when
// simulating or when the line cannot be requested.
func openRelay(cfg *config.Config) (gpio.Writer, bool) {
	if cfg.Simulate {
		logger.Info().Int("pin", cfg.Pin).Msg("Simulating relay")
		return gpio.NewLogWriter(cfg.Pin), true
	}

	idle := gpio.High
	if !cfg.ActiveLow {
		idle = gpio.Low
	}
	w, err := gpio.NewRealWriter(cfg.Chip, cfg.Pin, idle)
	if err != nil {
		logger.Warn().Err(err).
			Str("chip", cfg.Chip).
			Int("pin", cfg.Pin).
			Msg("GPIO unavailable, simulating relay")
		return gpio.NewLogWriter(cfg.Pin), true
	}
	return w, false
}

// openStore opens the settings database, falling back to memory when
// path is empty or the database cannot be opened. It returns the path
// actually in use.
func openStore(path string) (settings.Store, string) {
	if path == "" {
		logger.Info().Msg("Settings kept in memory")
		return settings.NewMemoryStore(), ""
	}

	s, err := settings.OpenSQLite(path)
	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.WarnWithCode(appErr).Str("path", path).Msg("Settings database unavailable, keeping settings in memory")
		} else {
			logger.Warn().Err(err).Str("path", path).Msg("Settings database unavailable, keeping settings in memory")
		}
		return settings.NewMemoryStore(), ""
	}
	return s, path
}

func openPublisher(broker string, tracker *status.Tracker) (mqtt.Publisher, mqtt.ConnectionStatus) {
	if broker == "" {
		logger.Info().Msg("MQTT disabled")
		return mqtt.NoopPublisher{}, nil
	}

	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:             broker,
		OnConnectionChange: tracker.SetMQTTConnected,
	})
	if err != nil {
		logger.Warn().Err(err).Str("broker", broker).Msg("MQTT unavailable, events will not be published")
		return mqtt.NoopPublisher{}, nil
	}
	return p, p
}

func advertise(httpAddr string) *discovery.Advertiser {
	adv := discovery.NewAdvertiser()
	port, err := discovery.PortFromAddr(httpAddr)
	if err != nil {
		logger.Warn().Err(err).Msg("mDNS advertisement skipped")
		return adv
	}
	if err := adv.Advertise(discovery.Info{Port: port, TXT: []string{"path=/"}}); err != nil {
		logger.Warn().Err(err).Msg("mDNS advertisement failed")
	}
	return adv
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
