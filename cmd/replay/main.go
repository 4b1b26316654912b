package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"furnacebot.ai/internal/persistence/runlog"
)

func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory")
		sessionID = flag.String("session", "", "session id to verify")
		eventsDir = flag.String("events", "", "directory containing events-*.jsonl.zst (overrides -data/-session)")
		verbose   = flag.Bool("v", false, "print every event")
	)
	flag.Parse()

	dir := *eventsDir
	if dir == "" {
		if *sessionID == "" {
			fmt.Fprintln(os.Stderr, "missing -session or -events")
			os.Exit(2)
		}
		dir = runlog.SessionDir(*dataDir, *sessionID)
	}

	events, err := runlog.ReadEvents(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	if *verbose {
		for _, ev := range events {
			fmt.Printf("%6d %s %-10s %-10s -> %-10s slot=%d progress=%.3f %s\n",
				ev.Seq, ev.At.Format("15:04:05"), ev.Kind, ev.From, ev.To, ev.SlotItem, ev.Progress, ev.Message)
		}
	}

	rep, err := runlog.Verify(events)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: session=%s dir=%s events=%d transitions=%d batches=%d final=%s ended=%s\n",
		rep.Session, filepath.Clean(dir), rep.Events, rep.Transitions, rep.Batches, rep.FinalPhase, orNone(string(rep.Ended)))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
