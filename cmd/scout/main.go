// Command scout runs the dictation pipeline end to end: it opens a capture
// device, records until interrupted, and prints the merged transcript as it
// builds. It is a manual-testing harness for internal/session.Controller,
// not a finished product UI.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/arach/scout/internal/config"
	"github.com/arach/scout/internal/engine"
	"github.com/arach/scout/internal/session"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("config", "err", err)
	}
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	pool, err := engine.NewPool(cfg.RefinementPoolSize)
	if err != nil {
		log.Fatal("engine pool", "err", err)
	}
	defer pool.Close()

	ctrl := session.New(cfg, pool)

	subID, events := ctrl.Subscribe()
	defer ctrl.Unsubscribe(subID)

	done := make(chan struct{})
	go consumeEvents(events, done)

	id, err := ctrl.Start("", session.TriggerManual)
	if err != nil {
		log.Fatal("start", "err", err)
	}
	log.Info("recording started", "session", id)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	idleEvict := time.NewTicker(time.Duration(cfg.EngineIdleEvictSeconds) * time.Second)
	defer idleEvict.Stop()

	stopRequested := false
	for !stopRequested {
		select {
		case <-sigCh:
			stopRequested = true
		case <-idleEvict.C:
			pool.IdleEvict(time.Duration(cfg.EngineIdleEvictSeconds) * time.Second)
		}
	}

	if err := ctrl.Stop(id); err != nil {
		log.Error("stop", "err", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("timed out waiting for final events")
	}
}

func consumeEvents(events <-chan session.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		switch ev.Kind {
		case session.EventRecordingStateChanged:
			log.Info("state", "to", ev.State.String())
		case session.EventSegmentAppended:
			fmt.Printf("[%s %d-%d] %s\n", ev.Segment.Tier.String(), ev.Segment.Lo, ev.Segment.Hi, ev.Segment.Text)
		case session.EventSegmentReplaced:
			fmt.Printf("[replace %d] %s\n", ev.OldID, ev.Segment.Text)
		case session.EventWarning:
			log.Warn("warning", "kind", ev.WarnKind, "detail", ev.WarnDetail)
		case session.EventFailed:
			log.Error("failed", "kind", ev.ErrKind.String(), "detail", ev.ErrDetail)
		case session.EventTranscriptFinalized:
			fmt.Println("---")
			fmt.Println(ev.Text)
			return
		}
	}
}
