package main

import (
	"log"
	"strings"

	"furnacebot.ai/internal/crafter"
)

// lifecycle fans controller lifecycle calls out to stdout, the status hub
// and the host sidecar.
type lifecycle struct {
	log  *log.Logger
	hub  crafter.Host
	link crafter.Host
}

func (l *lifecycle) LogMessage(text string) {
	l.log.Print(text)
	l.hub.LogMessage(text)
	l.link.LogMessage(text)
}

func (l *lifecycle) UpdateProgress(fraction float64) {
	l.hub.UpdateProgress(fraction)
	l.link.UpdateProgress(fraction)
}

func (l *lifecycle) Logout() {
	l.log.Print("logging out")
	l.hub.Logout()
	l.link.Logout()
}

func (l *lifecycle) Stop() {
	l.hub.Stop()
	l.link.Stop()
}

// hostWriter turns log output from the action primitives into host log lines.
type hostWriter struct {
	host crafter.Host
}

func (w hostWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.host.LogMessage(line)
		}
	}
	return len(p), nil
}
