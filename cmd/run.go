// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"golang.org/x/term"
)

// runOptions controls how a plan is executed from the CLI
type runOptions struct {
	title    string
	tui      bool
	attempts int
	extra    []bootloader.Option
}

// isTerminal reports whether stdout is interactive, the default for --tui
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runPlan connects, executes plan on a session and retries the whole plan
// after a reconnect when the link fails, up to attempts times.
func runPlan(plan bootloader.Plan, ro runOptions) (*bootloader.Report, bootloader.Statistics, error) {
	opts, err := engineOptions()
	if err != nil {
		return nil, bootloader.Statistics{}, err
	}
	opts = append(opts, ro.extra...)

	session := bootloader.NewSession(OpenConnection, opts...)
	defer session.Close()

	if err := session.Connect(); err != nil {
		return nil, bootloader.Statistics{}, fmt.Errorf("connection error: %w", err)
	}

	if ro.attempts < 1 {
		ro.attempts = 1
	}

	var report *bootloader.Report
	for attempt := 1; ; attempt++ {
		if ro.tui {
			report, err = runTUI(session, plan, ro.title)
		} else {
			report, err = runText(session, plan)
		}
		if err == nil || !bootloader.IsFatal(err) || attempt >= ro.attempts {
			break
		}

		logger.Warn().Err(err).Int("attempt", attempt).Int("attempts", ro.attempts).Msg("link lost, reconnecting")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		rerr := session.Reconnect(ctx)
		cancel()
		if rerr != nil {
			return report, session.Statistics(), fmt.Errorf("reconnect failed: %w (after %v)", rerr, err)
		}
	}

	stats := session.Statistics()
	logger.Debug().Msg("\n" + stats.String())
	return report, stats, err
}

// runText executes plan printing one line per completed command and a
// progress line per page.
func runText(session *bootloader.Session, plan bootloader.Plan) (*bootloader.Report, error) {
	fmt.Printf("Connection: %s\n\n", session.ConnInfo())

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-stop:
				return
			case ev := <-session.Events():
				printEvent(ev)
			}
		}
	}()

	result := <-session.Submit(plan)
	close(stop)
	<-drained

	// Completions still queued when the plan finished
	for {
		select {
		case ev := <-session.Events():
			if c, ok := ev.(bootloader.Completion); ok {
				printEvent(c)
			}
			continue
		default:
		}
		break
	}

	return result.Report, result.Err
}

func printEvent(ev bootloader.Event) {
	switch ev := ev.(type) {
	case bootloader.Progress:
		if !ev.PageComplete {
			return
		}
		fmt.Printf("\r  %-5s page %4d/%d  %5.1f%%", ev.Command.Name, ev.Page+1, ev.Pages, ev.Percentage()*100)
	case bootloader.Completion:
		if isTransfer(ev.Command) {
			fmt.Println()
		}
		if ev.OK() {
			fmt.Printf("  %-5s ok (%s)\n", ev.Command.Name, formatElapsed(ev.Elapsed))
		} else {
			fmt.Printf("  %-5s FAILED: %v\n", ev.Command.Name, ev.Err)
		}
	}
}

func isTransfer(c stm32boot.Command) bool {
	return c.Opcode == stm32boot.OpReadMemory || c.Opcode == stm32boot.OpWriteMemory
}

// exitCode maps a plan error to the process exit code:
// 0 success, 1 command failure, 2 link failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if bootloader.IsFatal(err) {
		return 2
	}
	return 1
}

// finish reports err on stderr and exits with its exit code
func finish(err error) error {
	if err == nil {
		return nil
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
	return nil
}

// parseAddress accepts decimal or 0x-prefixed hex addresses
func parseAddress(flag, value string) (uint32, error) {
	addr, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	return uint32(addr), nil
}
