// Command sauna-supervisor wires every adapter, the event bus, and the
// supervisor's single-consumer loop into one running process. Flag parsing
// and signal-driven shutdown follow a run/runLoop split: main parses flags
// and delegates to run, which does all construction and blocks until an
// interrupt or the supervisor exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/bus"
	"github.com/saunaworks/sauna-supervisor/internal/clock"
	"github.com/saunaworks/sauna-supervisor/internal/config"
	"github.com/saunaworks/sauna-supervisor/internal/floorheating"
	"github.com/saunaworks/sauna-supervisor/internal/gpio"
	"github.com/saunaworks/sauna-supervisor/internal/httpapi"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
	"github.com/saunaworks/sauna-supervisor/internal/ratelimit"
	"github.com/saunaworks/sauna-supervisor/internal/snapshot"
	"github.com/saunaworks/sauna-supervisor/internal/supervisor"
	"github.com/saunaworks/sauna-supervisor/internal/transport/gpiobutton"
	"github.com/saunaworks/sauna-supervisor/internal/transport/httpclient"
	"github.com/saunaworks/sauna-supervisor/internal/transport/localkv"
	"github.com/saunaworks/sauna-supervisor/internal/transport/mqtt"
	"github.com/saunaworks/sauna-supervisor/internal/ventilator"
)

func main() {
	// -config's value has to be known before the rest of the flags are
	// registered, since their defaults are meant to reflect the YAML file
	// (config.RegisterFlags uses cfg's current value as each flag's
	// default). A plain string scan finds it without tripping flag.Parse
	// over flags this pass doesn't know about yet.
	configPath := extractConfigPath(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	fs := flag.CommandLine
	fs.String("config", configPath, "Path to a YAML config file overlaying the documented defaults")
	config.RegisterFlags(fs, &cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("fatal: parse flags: %v", err)
	}
	if err := config.ApplyMcbStatusSourceFlag(fs, &cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// extractConfigPath scans args for -config/--config without involving the
// flag package, so it can run before the rest of the flags exist.
func extractConfigPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func run(cfg config.Config) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	b := bus.New(bus.DefaultCapacity, m)

	clk := clock.New(func(ev clock.Event) {
		b.Push(bus.TimerFiredEvent{Event: ev, Owner: ev.Owner})
	})

	broadcaster := snapshot.New(m)
	limiter := ratelimit.New(map[adapters.NotificationKind]time.Duration{
		adapters.SafetyShutdown:   cfg.NotificationCooldown.SafetyShutdown.Duration(),
		adapters.TemperatureAlert: cfg.NotificationCooldown.TemperatureAlert.Duration(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closers, err := wireAdapters(ctx, cfg, b, clk, m)
	if err != nil {
		return err
	}
	defer closers.closeAll()

	srv := httpapi.New(cfg.HTTP.Addr, b, broadcaster)
	if cfg.HTTP.Addr != "" {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		log.Printf("http server listening on %s", cfg.HTTP.Addr)
	}

	sup := supervisor.New(
		b, clk, broadcaster,
		closers.mcbDevice, closers.notifier,
		closers.ventilator, closers.floorHeating,
		limiter, m,
		supervisor.Options{
			AmperageThresholdA:      cfg.AmperageThresholdA,
			SwitchOffCooldown:       cfg.SwitchOffCooldown.Duration(),
			TemperatureAlertCelsius: cfg.TemperatureAlertCelsius,
			McbCommandTimeout:       cfg.MCB.CommandTimeout.Duration(),
			NotifierTimeout:         cfg.Notifier.Timeout.Duration(),
			McbStatusSource:         resolveAuthoritativeSource(cfg.MCB.StatusSource),
			FlicMapping:             cfg.FlicMapping(),
		},
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Printf("received %v, shutting down", s)
		b.Push(bus.ShutdownEvent{At: time.Now()})
	}()

	log.Printf("supervisor starting: mcb-status-source=%s amperage-threshold=%.1fA", cfg.MCB.StatusSource, cfg.AmperageThresholdA)

	runErr := sup.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if cfg.HTTP.Addr != "" {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
	}

	return runErr
}

func resolveAuthoritativeSource(s config.McbStatusSource) supervisor.McbStatusSource {
	if s == config.McbStatusSourceMQTT {
		return supervisor.AuthoritativeMQTT
	}
	return supervisor.AuthoritativeDevice
}

// closeables collects everything run needs to tear down on exit, plus the
// handles the supervisor itself needs: the MCB device, the notifier and the
// ventilator/floor-heating controllers it drives directly.
type closeables struct {
	items        []func() error
	mcbDevice    adapters.McbDevice
	notifier     adapters.Notifier
	ventilator   *ventilator.Controller
	floorHeating *floorheating.Controller
}

func (c *closeables) add(fn func() error) {
	c.items = append(c.items, fn)
}

func (c *closeables) closeAll() {
	for _, fn := range c.items {
		if err := fn(); err != nil {
			log.Printf("shutdown: close error: %v", err)
		}
	}
}

// wireAdapters constructs every transport adapter named in the config,
// starts one forwarding goroutine per adapter event channel onto b, and
// returns the handles the supervisor needs plus everything that must be
// closed on shutdown.
func wireAdapters(ctx context.Context, cfg config.Config, b *bus.Bus, clk *clock.Service, m *metrics.Metrics) (*closeables, error) {
	c := &closeables{}

	mcbAddr := fmt.Sprintf("%s:%d", cfg.MCB.Host, cfg.MCB.Port)
	mcbClient, err := localkv.DialMcb(ctx, mcbAddr, cfg.MCB.DeviceID, cfg.MCB.LocalKey)
	if err != nil {
		return nil, fmt.Errorf("dial mcb: %w", err)
	}
	c.add(mcbClient.Close)
	c.mcbDevice = mcbClient
	go forwardMcbObserved(mcbClient.Events(), b)

	thermostatAddr := fmt.Sprintf("%s:%d", cfg.FloorHeating.Host, cfg.FloorHeating.Port)
	thermostat, err := localkv.DialThermostat(ctx, thermostatAddr, cfg.FloorHeating.DeviceID, cfg.FloorHeating.LocalKey, cfg.FloorHeating.ProtocolVersion)
	if err != nil {
		return nil, fmt.Errorf("dial thermostat: %w", err)
	}
	c.add(thermostat.Close)

	relay := httpclient.NewVentilatorRelay(cfg.Ventilator.IP, cfg.Ventilator.Timeout.Duration())
	c.add(relay.Close)

	notifier := httpclient.NewNotifier(cfg.Notifier.URL, cfg.Notifier.Timeout.Duration())
	c.notifier = notifier

	c.ventilator = ventilator.New(relay, clk, ventilator.Options{
		DelayOff:  time.Duration(cfg.Ventilator.DelayOffMinutes) * time.Minute,
		KeepAlive: time.Duration(cfg.Ventilator.KeepAliveMinutes) * time.Minute,
		Timeout:   cfg.Ventilator.Timeout.Duration(),
	})

	c.floorHeating = floorheating.New(thermostat, clk, floorheating.Options{
		TargetOnC:  cfg.FloorHeating.TargetOnC,
		TargetOffC: cfg.FloorHeating.TargetOffC,
		PollEvery:  cfg.FloorHeating.PollInterval.Duration(),
		Timeout:    cfg.FloorHeating.Timeout.Duration(),
	})

	mqttClient, err := mqtt.Connect(cfg.MQTT.Broker, "sauna-supervisor", cfg.MQTT.TopicPrefix)
	if err != nil {
		return nil, fmt.Errorf("connect mqtt: %w", err)
	}
	c.add(mqttClient.Close)

	phaseMeter := mqtt.NewPhaseMeter(mqttClient, m)
	c.add(phaseMeter.Close)
	go forwardPhaseReadings(phaseMeter.Readings(), b)

	tempSource := mqtt.NewTemperatureSource(mqttClient, m)
	c.add(tempSource.Close)
	go forwardTemperatureReadings(tempSource.Readings(), b)

	doorSource := mqtt.NewDoorSource(mqttClient, m)
	c.add(doorSource.Close)
	go forwardDoorReadings(doorSource.Readings(), b)

	mqttButtons := mqtt.NewButtonSource(mqttClient, m)
	c.add(mqttButtons.Close)
	go forwardButtonEvents(mqttButtons.Events(), b)

	mcbFallback := mqtt.NewMcbObserver(mqttClient, m)
	c.add(mcbFallback.Close)
	go forwardMcbObserved(mcbFallback.Events(), b)

	if cfg.GPIOButton.Enabled {
		reader, err := gpio.NewRealReader(cfg.GPIOButton.Chip, cfg.GPIOButton.Line)
		if err != nil {
			return nil, fmt.Errorf("open gpio button: %w", err)
		}
		gpioButtons := gpiobutton.New(reader, gpiobutton.DefaultOptions())
		c.add(gpioButtons.Close)
		go forwardButtonEvents(gpioButtons.Events(), b)
	}

	return c, nil
}

func forwardMcbObserved(ch <-chan adapters.McbObserved, b *bus.Bus) {
	for e := range ch {
		b.Push(bus.McbObservedEvent{McbObserved: e})
	}
}

func forwardPhaseReadings(ch <-chan adapters.PhaseReading, b *bus.Bus) {
	for e := range ch {
		b.Push(bus.PhaseReadingEvent{PhaseReading: e})
	}
}

func forwardTemperatureReadings(ch <-chan adapters.TemperatureReading, b *bus.Bus) {
	for e := range ch {
		b.Push(bus.TemperatureReadingEvent{TemperatureReading: e})
	}
}

func forwardDoorReadings(ch <-chan adapters.DoorReading, b *bus.Bus) {
	for e := range ch {
		b.Push(bus.DoorReadingEvent{DoorReading: e})
	}
}

func forwardButtonEvents(ch <-chan adapters.ButtonEvent, b *bus.Bus) {
	for e := range ch {
		b.Push(bus.ButtonOccurredEvent{ButtonEvent: e})
	}
}
