package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gdsim/internal/bootstrap"
	"gdsim/internal/config"
	"gdsim/internal/domain"
	"gdsim/internal/terminal"
	"gdsim/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(loadedConfig func() config.Config) *cobra.Command {
	var (
		topic    string
		duration int
		fresh    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join a discussion, resuming an interrupted one when possible",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadedConfig()
			if !cmd.Flags().Changed("duration") {
				duration = cfg.Session.DefaultDuration
			}
			return runDiscussion(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), runOptions{
				topic:    topic,
				duration: duration,
				fresh:    fresh,
			})
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "discussion topic")
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "discussion length in seconds")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "ignore any interrupted session and start a new one")
	return cmd
}

type runOptions struct {
	topic    string
	duration int
	fresh    bool
}

func runDiscussion(parent context.Context, cfg config.Config, in io.Reader, out io.Writer, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := terminal.NewView(out)
	services, err := bootstrap.BuildWithConfig(cfg, view)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close snapshot store")
		}
	}()

	if opts.fresh {
		if err := services.Store.Clear(ctx); err != nil {
			return err
		}
	}

	loopCtx, cancelLoop := context.WithCancel(context.WithoutCancel(ctx))
	loopDone := make(chan struct{})
	controller := services.Controller

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(loopDone)
		return controller.Run(loopCtx)
	})
	group.Go(func() error {
		defer func() {
			if !bootstrap.Shutdown(cancelLoop, loopDone, shutdownTimeout) {
				log.Warn().Msg("session loop did not stop in time")
			}
		}()
		lines := readLines(in)
		if err := openDiscussion(groupCtx, controller, lines, out, opts); err != nil {
			return err
		}
		return interact(groupCtx, controller, view, lines, out)
	})
	return group.Wait()
}

// openDiscussion resumes a stored session or starts a new one.
func openDiscussion(ctx context.Context, controller *usecase.SessionController, lines <-chan string, out io.Writer, opts runOptions) error {
	if !opts.fresh {
		resumed, err := controller.Resume(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("could not check for an interrupted session")
		}
		if resumed {
			return nil
		}
	}

	topic := strings.TrimSpace(opts.topic)
	if topic == "" {
		fmt.Fprint(out, "Topic: ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errors.New("a discussion topic is required")
			}
			topic = strings.TrimSpace(line)
		}
	}
	return controller.Start(ctx, topic, opts.duration)
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// interact forwards typed lines to the controller until the evaluation has
// been shown, the participant quits, or input ends.
func interact(ctx context.Context, controller *usecase.SessionController, view *terminal.View, lines <-chan string, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-view.Evaluated():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, controller, strings.TrimSpace(line), out)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, controller *usecase.SessionController, line string, out io.Writer) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/hand":
		return false, ignoreInactive(controller.RaiseHand(ctx))
	case "/end":
		return false, controller.End(ctx)
	case "/status":
		printStatus(out, controller.Status())
		return false, nil
	}

	err := controller.SendMessage(ctx, line)
	switch {
	case errors.Is(err, usecase.ErrFloorNotHeld):
		fmt.Fprintln(out, "You do not have the floor yet. Type /hand to ask for it.")
		return false, nil
	case errors.Is(err, usecase.ErrNoActiveSession):
		fmt.Fprintln(out, "The discussion is over. Type /quit to leave.")
		return false, nil
	}
	return false, err
}

func ignoreInactive(err error) error {
	if errors.Is(err, usecase.ErrNoActiveSession) {
		return nil
	}
	return err
}

func printStatus(out io.Writer, status domain.Status) {
	fmt.Fprintf(out, "state=%s turns=%d remaining=%s stream=%s",
		status.State, status.TurnCount, terminal.FormatRemaining(status.RemainingSeconds), status.Stream)
	if status.HandRaisePending {
		fmt.Fprint(out, " hand=pending")
	}
	if status.EndPending {
		fmt.Fprint(out, " end=pending")
	}
	fmt.Fprintln(out)
}
