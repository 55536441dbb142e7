package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/bms-controller/internal/mqtt"
	"github.com/sweeney/bms-controller/internal/status"
)

const helpText = `commands:
  charge on|off       enable or disable charging
  discharge on|off    enable or disable discharging
  status              show the last status snapshot
  watch on|off        print state changes as they happen
  help                show this help
  quit                exit
`

type actionKind int

const (
	actSend actionKind = iota
	actStatus
	actWatch
	actHelp
	actQuit
)

type action struct {
	kind  actionKind
	cmd   mqtt.Command
	watch bool
}

var errUsage = errors.New("usage")

// parseLine turns one console line into an action.
func parseLine(line string) (action, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return action{}, errUsage
	}

	switch fields[0] {
	case "charge", "discharge":
		if len(fields) != 2 {
			return action{}, fmt.Errorf("%w: %s on|off", errUsage, fields[0])
		}
		on, err := parseOnOff(fields[1])
		if err != nil {
			return action{}, err
		}
		name := mqtt.CommandChargeEnable
		if fields[0] == "discharge" {
			name = mqtt.CommandDischargeEnable
		}
		return action{kind: actSend, cmd: mqtt.Command{Name: name, Value: on}}, nil

	case "watch":
		if len(fields) != 2 {
			return action{}, fmt.Errorf("%w: watch on|off", errUsage)
		}
		on, err := parseOnOff(fields[1])
		if err != nil {
			return action{}, err
		}
		return action{kind: actWatch, watch: on}, nil

	case "status", "s":
		return action{kind: actStatus}, nil
	case "help", "?":
		return action{kind: actHelp}, nil
	case "quit", "exit", "q":
		return action{kind: actQuit}, nil
	}
	return action{}, fmt.Errorf("unknown command %q (type 'help')", fields[0])
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true", "enable":
		return true, nil
	case "off", "0", "false", "disable":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", errUsage, s)
}

// console holds the state shared between the MQTT callback and the
// readline loop.
type console struct {
	out  io.Writer
	send func(mqtt.Command) error

	mu         sync.Mutex
	lastStatus []byte
	watch      bool
}

func newConsole(out io.Writer) *console {
	return &console{out: out, watch: true}
}

// exec runs one line and reports whether the console should exit.
func (c *console) exec(line string) bool {
	a, err := parseLine(line)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return false
	}

	switch a.kind {
	case actSend:
		if err := c.send(a.cmd); err != nil {
			fmt.Fprintf(c.out, "send failed: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "sent %s=%v\n", a.cmd.Name, a.cmd.Value)
	case actStatus:
		c.mu.Lock()
		raw := c.lastStatus
		c.mu.Unlock()
		if raw == nil {
			fmt.Fprintln(c.out, "no status received yet")
			return false
		}
		s, err := formatStatus(raw)
		if err != nil {
			fmt.Fprintf(c.out, "bad status: %v\n", err)
			return false
		}
		fmt.Fprint(c.out, s)
	case actWatch:
		c.mu.Lock()
		c.watch = a.watch
		c.mu.Unlock()
	case actHelp:
		fmt.Fprint(c.out, helpText)
	case actQuit:
		return true
	}
	return false
}

// handleMessage runs on the MQTT callback goroutine.
func (c *console) handleMessage(topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.HasSuffix(topic, "/system") {
		var sj status.StatusJSON
		if err := json.Unmarshal(payload, &sj); err == nil && sj.Status.State != "" {
			c.lastStatus = append([]byte(nil), payload...)
			return
		}
		var sp mqtt.SystemPayload
		if err := json.Unmarshal(payload, &sp); err == nil && sp.System.Event != "" && c.watch {
			fmt.Fprintf(c.out, "system: %s %s\n", sp.System.Event, sp.System.Reason)
		}
		return
	}

	if !c.watch {
		return
	}
	line, err := formatEvent(payload)
	if err != nil {
		fmt.Fprintf(c.out, "bad event on %s: %v\n", topic, err)
		return
	}
	fmt.Fprintln(c.out, line)
}

// formatEvent renders a transition as a single line.
func formatEvent(payload []byte) (string, error) {
	var p mqtt.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", err
	}
	ts := p.BMS.Timestamp
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		ts = t.Local().Format("15:04:05")
	}
	errs := "none"
	if len(p.BMS.Errors) > 0 {
		errs = strings.Join(p.BMS.Errors, ",")
	}
	return fmt.Sprintf("%s %s -> %s (errors: %s)", ts, p.BMS.From, p.BMS.To, errs), nil
}

// formatStatus renders a status snapshot for the terminal.
func formatStatus(payload []byte) (string, error) {
	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		return "", err
	}
	s := sj.Status

	var b strings.Builder
	fmt.Fprintf(&b, "state:     %s", s.State)
	if s.Event != "" {
		fmt.Fprintf(&b, " (%s at %s)", s.Event, s.Timestamp)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "fets:      charge=%s discharge=%s\n", onOff(s.Commanded.Charge), onOff(s.Commanded.Discharge))
	fmt.Fprintf(&b, "enabled:   charge=%s discharge=%s\n", onOff(s.Enabled.Charge), onOff(s.Enabled.Discharge))
	fmt.Fprintf(&b, "allowed:   charge=%s discharge=%s balancing=%s\n",
		onOff(s.Allowed.Charge), onOff(s.Allowed.Discharge), onOff(s.Allowed.Balancing))
	errs := "none"
	if len(s.Errors) > 0 {
		errs = strings.Join(s.Errors, ",")
	}
	fmt.Fprintf(&b, "errors:    %s\n", errs)
	fmt.Fprintf(&b, "cells:     %d x %.3f..%.3f V\n", s.Cells.Count, s.Cells.Min, s.Cells.Max)
	fmt.Fprintf(&b, "pack:      %.2f V %.2f A\n", s.PackVoltage, s.PackCurrent)
	if s.SOC != nil {
		fmt.Fprintf(&b, "soc:       %.0f%%\n", *s.SOC)
	}
	return b.String(), nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
