// Command bms-controller runs the battery protection state machine: it reads
// AFE measurements from MQTT, drives the FET gates over GPIO and publishes
// state changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
	"github.com/sweeney/bms-controller/internal/config"
	"github.com/sweeney/bms-controller/internal/frontend"
	"github.com/sweeney/bms-controller/internal/gpio"
	"github.com/sweeney/bms-controller/internal/heartbeat"
	"github.com/sweeney/bms-controller/internal/mqtt"
	"github.com/sweeney/bms-controller/internal/recorder"
	"github.com/sweeney/bms-controller/internal/status"
	"github.com/sweeney/bms-controller/internal/web"
)

func main() {
	cfgPath := flag.String("config", "/etc/bms-controller/bms.yaml", "YAML config file")
	envFile := flag.String("env", ".env", "env file with MQTT credentials")
	printConfig := flag.Bool("print-config", false, "Print effective config and exit")
	fakeGPIO := flag.Bool("fake-gpio", false, "Log FET switching instead of driving GPIO")

	flag.Parse()

	if err := run(*cfgPath, *envFile, *printConfig, *fakeGPIO); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfgPath, envFile string, printConfig, fakeGPIO bool) error {
	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if printConfig {
		out, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	conf, _, err := cfg.Protection()
	if err != nil {
		return err
	}

	// Initialize GPIO
	var switches gpio.Switches
	if fakeGPIO {
		switches = &loggingSwitches{inner: gpio.NewFakeSwitches()}
	} else {
		switches, err = gpio.NewRealSwitches(cfg.GPIO.Chip, cfg.GPIO.ChargePin, cfg.GPIO.DischargePin, cfg.GPIO.ActiveLow)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
	}
	defer switches.Close()

	// Initialize MQTT
	holder := &frontend.Holder{}
	commands := make(chan mqtt.Command, 8)
	broker, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		Topics:     mqtt.NewTopics(cfg.Name),
		OutboxSize: cfg.MQTT.OutboxSize,
	}, mqtt.Handlers{
		Measurements: holder.Store,
		Command: func(c mqtt.Command) {
			select {
			case commands <- c:
			default:
				log.Printf("command queue full, dropping %s", c.Name)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	// Publishing runs off the control loop.
	publisher := mqtt.NewAsyncPublisher(broker, mqtt.DefaultQueueSize)
	defer publisher.Close()

	// Initialize event recorder
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sqlRec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("init recorder: %w", err)
		}
		rec = sqlRec
	}
	defer rec.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Name:            cfg.Name,
		Chemistry:       cfg.Battery.Chemistry,
		NominalCapacity: cfg.Battery.NominalCapacity,
		CycleMs:         cfg.Control.CycleMs,
		Heartbeat:       cfg.Heartbeat.Cron,
		Broker:          cfg.MQTT.Broker,
		HTTPPort:        cfg.HTTP.Port,
		Limits:          status.LimitsFrom(&conf),
	})
	tracker.SetMQTTConnected(broker.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("queued startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Port != "off" {
		srv := web.New(cfg.HTTP.Port, tracker, rec)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Port)
	}

	hb, err := heartbeat.NewTicker(cfg.Heartbeat.Cron)
	if err != nil {
		return err
	}
	hb.Start()
	defer hb.Stop()

	log.Printf("started: name=%s chemistry=%s capacity=%.1fAh cycle=%v broker=%s heartbeat=%q",
		cfg.Name, cfg.Battery.Chemistry, cfg.Battery.NominalCapacity, cfg.Cycle(), cfg.MQTT.Broker, cfg.Heartbeat.Cron)

	d := newDaemon(&conf, holder, switches, publisher, broker, rec, tracker, cfg.Settle(), cfg.StaleAfter(), time.Now)

	ticker := time.NewTicker(cfg.Cycle())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(d, ticker.C, hb.C(), commands, sigCh)
}

// daemon owns the protection config and status. Only runLoop touches it.
type daemon struct {
	conf       *bms.Config
	st         bms.Status
	machine    *bms.Machine
	collector  *frontend.Collector
	guard      *frontend.SettleGuard
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	recorder   recorder.Recorder
	tracker    *status.Tracker
	now        func() time.Time
	socDone    bool
}

func newDaemon(conf *bms.Config, src frontend.Source, act bms.Actuator, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus,
	rec recorder.Recorder, tracker *status.Tracker, settle, staleAfter time.Duration, now func() time.Time) *daemon {
	collector := frontend.NewCollector(src, now, staleAfter)
	guard := frontend.NewSettleGuard(now(), settle, now, collector)

	d := &daemon{
		conf:       conf,
		machine:    bms.NewMachine(collector, guard.Inhibited, act),
		collector:  collector,
		guard:      guard,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		recorder:   rec,
		tracker:    tracker,
		now:        now,
	}
	bms.InitStatus(&d.st)
	// start-up counts as the last time the pack was not idle
	d.st.NoIdleTimestamp = now()
	return d
}

func runLoop(d *daemon, tick, hb <-chan time.Time, commands <-chan mqtt.Command, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.publishSystem("SHUTDOWN", signalName)
			return nil

		case cmd := <-commands:
			d.applyCommand(cmd)
			d.updateTracker(d.now())

		case <-hb:
			t := d.now()
			counts := d.machine.Counts()
			log.Printf("heartbeat: state=%s errors=%s off=%d chg=%d dis=%d normal=%d",
				d.st.State, d.st.ErrorFlags, counts.Off, counts.Chg, counts.Dis, counts.Normal)
			d.updateTracker(t)
			d.publishSystem("HEARTBEAT", "")

		case <-tick:
			d.cycle()
		}
	}
}

// cycle runs the state machine once and fans the result out.
func (d *daemon) cycle() {
	t := d.now()
	if tr := d.machine.RunCycle(d.conf, &d.st, t); tr != nil {
		if err := d.publisher.Publish(*tr); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
		if err := d.recorder.RecordTransition(recorder.NewEvent(*tr, &d.st)); err != nil {
			log.Printf("record transition: %v", err)
		}
	}
	d.reportSOC()
	d.updateTracker(t)
}

// reportSOC estimates the state of charge once from the first sample, while
// the pack has not yet been switched on and is still at rest.
func (d *daemon) reportSOC() {
	if d.socDone || !d.collector.Received() {
		return
	}
	d.socDone = true

	soc, err := bms.SOCFromOCV(d.conf, d.st.CellVoltageAvg)
	if err != nil {
		log.Printf("soc: %v", err)
		return
	}
	log.Printf("soc: %.0f%% from average cell voltage %.3f V", soc, d.st.CellVoltageAvg)
	if d.tracker != nil {
		d.tracker.SetSOC(soc)
	}
}

func (d *daemon) applyCommand(cmd mqtt.Command) {
	switch cmd.Name {
	case mqtt.CommandChargeEnable:
		d.st.ChgEnable = cmd.Value
	case mqtt.CommandDischargeEnable:
		d.st.DisEnable = cmd.Value
	default:
		log.Printf("command: ignoring %q", cmd.Name)
		return
	}
	log.Printf("command: %s=%v", cmd.Name, cmd.Value)
}

func (d *daemon) updateTracker(t time.Time) {
	if d.tracker == nil {
		return
	}
	allowed := status.Allowed{
		Charge:    bms.ChargeAllowed(&d.st),
		Discharge: bms.DischargeAllowed(&d.st),
		Balancing: d.conf.AutoBalancing && bms.BalancingAllowed(d.conf, &d.st, t),
	}
	d.tracker.Update(d.st, allowed, d.machine.Counts(), !d.guard.Inhibited(), d.collector.Stale())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) publishSystem(event, reason string) {
	se := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if d.tracker != nil {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		se.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	} else {
		log.Printf("queued %s event", event)
	}
}

// loggingSwitches logs every FET change; used with -fake-gpio.
type loggingSwitches struct {
	inner *gpio.FakeSwitches
}

func (s *loggingSwitches) SetCharge(enable bool) error {
	if enable != s.inner.Charge {
		log.Printf("gpio: charge FET %s", onOff(enable))
	}
	return s.inner.SetCharge(enable)
}

func (s *loggingSwitches) SetDischarge(enable bool) error {
	if enable != s.inner.Discharge {
		log.Printf("gpio: discharge FET %s", onOff(enable))
	}
	return s.inner.SetDischarge(enable)
}

func (s *loggingSwitches) Close() error {
	return s.inner.Close()
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
