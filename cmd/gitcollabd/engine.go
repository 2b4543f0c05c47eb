package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gitcollab/core/internal/adaptivetransport"
	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/credstore"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/ippool"
	"github.com/gitcollab/core/internal/logfields"
	"github.com/gitcollab/core/internal/metrics"
	"github.com/gitcollab/core/internal/proxymgr"
	"github.com/gitcollab/core/internal/taskregistry"

	prom "github.com/prometheus/client_golang/prometheus"
)

// engine bundles the per-invocation subsystem graph: config, event bus,
// IP pool, transport, proxy manager, credential store, and task registry.
type engine struct {
	cfg       *config.Config
	bus       *events.Bus
	sink      events.Sink
	pool      *ippool.Pool
	transport *adaptivetransport.Transport
	proxy     *proxymgr.Manager
	creds     credstore.Store
	fileCreds *credstore.EncryptedFileStore
	registry  *taskregistry.Registry

	natsSink   *events.NATSSink
	promReg    *prom.Registry
	metricsRT  *metrics.Runtime
	stopBridge func()
}

// buildEngine wires the subsystems from the loaded configuration.
func buildEngine(configPath string) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	var sink events.Sink = events.BusSink{Bus: bus}

	var natsSink *events.NATSSink
	if url := cfg.Metrics.NATSPublishURL; url != "" {
		natsSink, err = events.NewNATSSink(url, cfg.Metrics.NATSSubjectPrefix)
		if err != nil {
			slog.Warn("nats sink unavailable, continuing without it", logfields.Error(err))
		} else {
			sink = events.FanoutSink{sink, natsSink}
		}
	}

	promReg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(promReg)
	stopBridge := metrics.BridgeEvents(bus, recorder)
	metricsRT := metrics.NewRuntime(cfg.Metrics, recorder, sink)

	pool := ippool.New(cfg.IPPool, sink)
	transport := adaptivetransport.NewTransport(cfg.AdaptiveTransport, cfg.TLS, pool, sink)

	var proxy *proxymgr.Manager
	if connector := proxymgr.Connector(cfg.Proxy); connector != nil {
		proxy = proxymgr.NewManager(cfg.Proxy, connector, sink)
		if !cfg.Proxy.DisableCustomTransport {
			transport.WithProxy(connector)
		}
	}

	var creds credstore.Store
	var fileCreds *credstore.EncryptedFileStore
	if path := cfg.Credential.StorePath; path != "" {
		fileCreds = credstore.NewEncryptedFileStore(path, cfg.Credential)
		if pw := os.Getenv("GITCOLLAB_MASTER_PASSWORD"); pw != "" {
			fileCreds.SetMasterPassword(pw)
		}
		creds = fileCreds
	} else {
		creds = credstore.NewMemoryStore()
	}

	registry := taskregistry.New(taskregistry.Options{
		BaseConfig: func() *config.Config { return cfg },
		Sink:       sink,
		Transport:  transport,
		Creds:      creds,
		Retention:  time.Hour,
	})

	adaptivetransport.RegisterScheme(cfg.AdaptiveTransport.CustomScheme,
		transport.NewHTTPTransport("", nil))

	return &engine{
		cfg: cfg, bus: bus, sink: sink, pool: pool, transport: transport,
		proxy: proxy, creds: creds, fileCreds: fileCreds, registry: registry,
		natsSink: natsSink, promReg: promReg, metricsRT: metricsRT,
		stopBridge: stopBridge,
	}, nil
}

// close releases the engine's long-lived resources after workers drain.
func (e *engine) close() {
	e.registry.Wait()
	if e.stopBridge != nil {
		e.stopBridge()
	}
	e.metricsRT.Close()
	if e.natsSink != nil {
		e.natsSink.Close()
	}
	e.bus.Close()
}

// waitAndReport blocks on a task and converts a non-Completed terminal
// state into a CLI error.
func waitAndReport(task *taskregistry.Task) error {
	state := task.Wait()
	switch state {
	case taskregistry.StateCompleted:
		fmt.Printf("%s %s completed\n", task.Kind, task.ID)
		return nil
	case taskregistry.StateCanceled:
		return fmt.Errorf("%s %s canceled", task.Kind, task.ID)
	default:
		return fmt.Errorf("%s %s failed: %s", task.Kind, task.ID, task.FailReason())
	}
}
