package app

import (
	"bufio"
	"context"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// ExitCommand typed on the console stops the service.
const ExitCommand = "exit"

// Random numbers sent by the demo producer fall in [randomMin, randomMax).
const (
	randomMin = 30
	randomMax = 100
)

// RunConsole broadcasts every line read from r until ctx is done, r is
// exhausted, or the exit command is read. It reports whether the exit
// command ended it.
func (a *App) RunConsole(ctx context.Context, r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return false
		}
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), ExitCommand) {
			a.log.Info("exit requested from console")
			return true
		}
		delivery := a.events.Send(line)
		a.log.Debug("console line sent", "id", delivery.ID, "delivered", delivery.Delivered)
	}
	if err := scanner.Err(); err != nil {
		a.log.Warn("console input failed", "error", err)
	}
	return false
}

// RunRandomNumbers sends a random number every interval until ctx is done.
func (a *App) RunRandomNumbers(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.events.Send(strconv.Itoa(randomMin + rand.IntN(randomMax-randomMin)))
		}
	}
}

// StartProducers launches the producers enabled in the configuration.
// stop is called when the console asks the service to exit.
func (a *App) StartProducers(ctx context.Context, stop context.CancelFunc) {
	if a.cfg.SSE.DemoInterval > 0 {
		go a.RunRandomNumbers(ctx, a.cfg.SSE.DemoInterval)
	}
	if a.cfg.SSE.Console && a.stdin != nil {
		go func() {
			if a.RunConsole(ctx, a.stdin) {
				stop()
			}
		}()
	}
}
