// Command gatewayd wires a signaling.Runtime to the HTTP long-poll and
// WebSocket transports and the echotest reference plugin, following the
// teacher's cmd/example/main.go pattern of flat, linear construction with
// no framework bootstrap magic.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatewayrtc/core/pkg/config"
	"github.com/gatewayrtc/core/pkg/logger"
	"github.com/gatewayrtc/core/pkg/plugin/echotest"
	"github.com/gatewayrtc/core/pkg/signaling"
	"github.com/gatewayrtc/core/pkg/telemetry"
	"github.com/gatewayrtc/core/pkg/transport/amqp"
	"github.com/gatewayrtc/core/pkg/transport/httplp"
	"github.com/gatewayrtc/core/pkg/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	log_ := logger.NewSimpleLogger()
	log_.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	log_.SetTimestamps(cfg.Logging.Timestamps)
	log_.SetColors(cfg.Logging.Colors)

	var store signaling.TokenStore
	if cfg.RedisURL != "" {
		redisStore, err := signaling.NewRedisTokenStore(cfg.RedisURL, cfg.Name)
		if err != nil {
			log_.Warn("redis token store unavailable, falling back to in-memory", "err", err)
		} else {
			store = redisStore
		}
	}
	auth := signaling.NewAuth(cfg.APISecret, cfg.AdminSecret, cfg.TokenAuth, store)

	var tel signaling.Telemetry = signaling.NoOpTelemetry{}
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.New(cfg.Name, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log_.Warn("telemetry disabled, provider init failed", "err", err)
		} else {
			tel = provider
			defer provider.Shutdown(context.Background())
		}
	}

	rt := signaling.NewRuntime(signaling.RuntimeOptions{
		Info: signaling.ServerInfo{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		Auth:           auth,
		Log:            log_,
		Telemetry:      tel,
		Workers:        cfg.Workers,
		WorkerBacklog:  cfg.WorkerBacklog,
		SessionTimeout: cfg.SessionTimeout,
		EventsEnabled:  cfg.EventsEnabled,
		FullTrickle:    cfg.FullTrickle,
	})
	defer rt.Stop()

	rt.RegisterPlugin(echotest.New(rt.Callbacks()))

	var servers []*http.Server

	if cfg.Transports.HTTP.Enabled {
		httpTransport := httplp.New(rt, log_.With("transport", "http"))
		rt.RegisterTransport(httpTransport)
		mux := http.NewServeMux()
		mux.Handle("/janus", httpTransport.Handler(false))
		mux.Handle("/admin", httpTransport.Handler(true))
		servers = append(servers, &http.Server{Addr: cfg.Transports.HTTP.Addr, Handler: mux})
	}

	if cfg.Transports.WS.Enabled {
		wsTransport := ws.New(rt, log_.With("transport", "websocket"))
		rt.RegisterTransport(wsTransport)
		mux := http.NewServeMux()
		mux.Handle("/ws", wsTransport.Handler())
		mux.Handle("/ws-admin", wsTransport.AdminHandler())
		servers = append(servers, &http.Server{Addr: cfg.Transports.WS.Addr, Handler: mux})
	}

	if cfg.Transports.AMQP.Enabled {
		amqpTransport := amqp.New(amqp.Config{
			URL:          cfg.Transports.AMQP.URL,
			RequestQueue: cfg.Transports.AMQP.RequestQueue,
			AdminQueue:   cfg.Transports.AMQP.AdminQueue,
		}, rt, log_.With("transport", "amqp"))
		if err := amqpTransport.Start(context.Background()); err != nil {
			log_.Error("amqp transport failed to start", "err", err)
		} else {
			rt.RegisterTransport(amqpTransport)
			defer amqpTransport.Stop()
		}
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			log_.Info("gateway listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log_.Error("server stopped unexpectedly", "addr", srv.Addr, "err", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log_.Info("shutting down")
	for _, srv := range servers {
		_ = srv.Shutdown(context.Background())
	}
}
