package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studylock-backend/internal/lock"
	"studylock-backend/internal/logging"
	"studylock-backend/internal/profiles"
	"studylock-backend/internal/realtime"
)

type WatchOptions struct {
	*RootOptions
	User string
	Poll time.Duration
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow one user's lock state",
		Long: `Run the lock state store for a user and print every state change as a
JSON line. The store is driven by the poll interval, the next deadline, and
Postgres task change notifications.

Lines on stdin simulate the app shell:
  bg | fg          app went to the background / came back
  unlock           open the proof flow
  submit | done    proof submission started / finished
  relock           close the proof flow
  reset            start a new focus session (breaks and points to zero)

Warning lines carry the session's break count and penalty points.

Example:
  studylock watch --user 5b0f5d2c-3f0e-4a53-9a59-0f4f7c1c8a11`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id to watch (required)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", lock.PollInterval, "poll interval")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runWatch(opts *WatchOptions, in io.Reader, out io.Writer) error {
	userID, err := uuid.Parse(opts.User)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}

	a, err := openApp(opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := realtime.Dial(a.cfg.ConnString(), a.log)
	if err != nil {
		return fmt.Errorf("listen for task changes: %w", err)
	}
	defer feed.Close()

	focus := lock.NewFocusTracker(&profilePenalizer{store: a.profiles, userID: userID, log: a.log}, a.log)
	store := lock.NewStore(a.tasks, userID, a.log, lock.WithPollInterval(opts.Poll), lock.WithFocusTracker(focus))

	events := make(chan lock.Event, 4)
	go forward(ctx, feed.Events(ctx, userID), events)
	go readShell(ctx, in, store, focus, events, a.log)

	states, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go printStates(ctx, out, states, store.Warnings(), focus)

	err = store.Run(ctx, events)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func forward(ctx context.Context, from <-chan lock.Event, to chan<- lock.Event) {
	for ev := range from {
		select {
		case to <- ev:
		case <-ctx.Done():
			return
		}
	}
}

type shellCommand int

const (
	cmdUnknown shellCommand = iota
	cmdBackground
	cmdForeground
	cmdUnlock
	cmdSubmit
	cmdDone
	cmdRelock
	cmdReset
)

func parseShellCommand(line string) shellCommand {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "bg", "background":
		return cmdBackground
	case "fg", "foreground":
		return cmdForeground
	case "unlock":
		return cmdUnlock
	case "submit":
		return cmdSubmit
	case "done":
		return cmdDone
	case "relock":
		return cmdRelock
	case "reset":
		return cmdReset
	}
	return cmdUnknown
}

func readShell(ctx context.Context, in io.Reader, store *lock.Store, focus *lock.FocusTracker, events chan<- lock.Event, log logging.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		var ev lock.Event
		switch parseShellCommand(sc.Text()) {
		case cmdBackground:
			ev = lock.EventBackground
		case cmdForeground:
			ev = lock.EventForeground
		case cmdUnlock:
			store.UnlockForProof()
			continue
		case cmdSubmit:
			store.SetSubmitting(true)
			continue
		case cmdDone:
			store.SetSubmitting(false)
			continue
		case cmdRelock:
			if _, err := store.Relock(ctx); err != nil {
				log.Warn("relock refresh failed", "error", err)
			}
			continue
		case cmdReset:
			log.Info("focus session reset", "breaks", focus.Breaks(), "session_points", focus.SessionPoints())
			focus.Reset()
			continue
		default:
			log.Warn("unknown command", "line", sc.Text())
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func printStates(ctx context.Context, out io.Writer, states <-chan lock.State, warnings <-chan lock.Warning, focus *lock.FocusTracker) {
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			_ = enc.Encode(map[string]any{"state": st})
		case w, ok := <-warnings:
			if !ok {
				warnings = nil
				continue
			}
			_ = enc.Encode(map[string]any{
				"warning":        w,
				"breaks":         focus.Breaks(),
				"session_points": focus.SessionPoints(),
			})
		}
	}
}

type focusPenaltyStore interface {
	ApplyFocusPenalty(ctx context.Context, userID uuid.UUID, resetStreak bool) (profiles.Profile, error)
}

// profilePenalizer persists focus penalties on the user's profile.
type profilePenalizer struct {
	store  focusPenaltyStore
	userID uuid.UUID
	log    logging.Logger
}

func (p *profilePenalizer) Penalize(ctx context.Context, pen lock.Penalty) error {
	prof, err := p.store.ApplyFocusPenalty(ctx, p.userID, pen.ResetStreak)
	if err != nil {
		return fmt.Errorf("apply focus penalty: %w", err)
	}
	p.log.Info("focus penalty applied",
		"user", p.userID,
		"breaks", pen.Breaks,
		"reliability", prof.ReliabilityScore,
		"streak", prof.StreakCount,
	)
	return nil
}
