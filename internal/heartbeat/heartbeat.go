// Package heartbeat schedules periodic status reports from a cron spec.
package heartbeat

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts six-field specs with seconds plus descriptors like @every 5m.
var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Ticker delivers a tick on C each time the schedule fires.
// Ticks are dropped if the previous one has not been received yet.
type Ticker struct {
	cron     *cron.Cron
	schedule cron.Schedule
	c        chan time.Time
	now      func() time.Time
}

// NewTicker parses spec and prepares a stopped ticker.
func NewTicker(spec string) (*Ticker, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse heartbeat schedule %q: %w", spec, err)
	}

	t := &Ticker{
		cron:     cron.New(cron.WithParser(parser)),
		schedule: sched,
		c:        make(chan time.Time, 1),
		now:      time.Now,
	}
	t.cron.Schedule(sched, cron.FuncJob(t.fire))
	return t, nil
}

// C returns the tick channel.
func (t *Ticker) C() <-chan time.Time {
	return t.c
}

// Next returns the first activation after now.
func (t *Ticker) Next(now time.Time) time.Time {
	return t.schedule.Next(now)
}

// Start runs the scheduler in its own goroutine.
func (t *Ticker) Start() {
	t.cron.Start()
}

// Stop halts the scheduler. Ticks already queued stay on C.
func (t *Ticker) Stop() {
	<-t.cron.Stop().Done()
}

func (t *Ticker) fire() {
	select {
	case t.c <- t.now():
	default:
		log.Printf("heartbeat: previous tick not consumed, skipping")
	}
}
