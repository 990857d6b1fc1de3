package history

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/journal"
	"github.com/tphakala/lightsheet-go/internal/microscope"
)

var (
	limit       int
	journalPath string
	playbackID  string
)

// Command creates the command that lists journaled playbacks.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded playbacks from the acquisition journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := journalPath
			if path == "" {
				path = settings.Journal.Path
			}

			var id uuid.UUID
			if playbackID != "" {
				parsed, err := uuid.Parse(playbackID)
				if err != nil {
					return fmt.Errorf("invalid playback id %q: %w", playbackID, err)
				}
				id = parsed
			}

			j, err := journal.Open(path, settings.Debug)
			if err != nil {
				return err
			}
			defer j.Close()

			if playbackID != "" {
				return printPlayback(cmd, j, id)
			}
			return printRecent(cmd, j, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of playbacks to list, newest first")
	cmd.Flags().StringVar(&journalPath, "path", "", "journal path, defaults to the configured journal")
	cmd.Flags().StringVar(&playbackID, "playback", "", "show the stacks of one playback")

	return cmd
}

func printRecent(cmd *cobra.Command, j *journal.Journal, n int) error {
	ctx := cmd.Context()
	total, succeeded, err := j.CountPlaybacks(ctx)
	if err != nil {
		return err
	}
	playbacks, err := j.RecentPlaybacks(ctx, n)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d playbacks, %d succeeded\n\n", total, succeeded)
	fmt.Fprintf(w, "ID                                    Started              Duration  Points  OK\n")
	fmt.Fprintf(w, "────────────────────────────────────  ───────────────────  ────────  ──────  ─────\n")
	for _, p := range playbacks {
		fmt.Fprintf(w, "%-36s  %s  %8v  %6d  %v\n",
			p.ID, p.StartedAt.Format(time.DateTime), p.Duration.Round(time.Millisecond), p.TimePoints, p.Success)
	}
	return nil
}

func printPlayback(cmd *cobra.Command, j *journal.Journal, id uuid.UUID) error {
	ctx := cmd.Context()
	p, err := j.Playback(ctx, id)
	if err != nil {
		return err
	}
	stacks, err := j.StacksForPlayback(ctx, id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Playback    %s\n", p.ID)
	fmt.Fprintf(w, "Microscope  %s\n", p.Microscope)
	fmt.Fprintf(w, "Queue       %s\n", p.QueueID)
	fmt.Fprintf(w, "Started     %s\n", p.StartedAt.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "Duration    %v\n", p.Duration)
	fmt.Fprintf(w, "Devices     %s\n", strings.Join(p.Devices, ", "))
	fmt.Fprintf(w, "Success     %v\n\n", p.Success)
	printStacks(w, stacks)
	return nil
}

func printStacks(w io.Writer, stacks []microscope.StackInfo) {
	fmt.Fprintf(w, "Camera        Index  Channel  Dimensions      Timestamp\n")
	fmt.Fprintf(w, "────────────  ─────  ───────  ──────────────  ───────────────────\n")
	for _, s := range stacks {
		dims := fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
		fmt.Fprintf(w, "%-12s  %5d  %7d  %-14s  %d\n", s.Camera, s.Index, s.Channel, dims, s.TimestampNanos)
	}
}
