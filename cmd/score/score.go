package score

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/devices/sim"
	"github.com/tphakala/lightsheet-go/internal/score"
)

var (
	planes  int
	channel int
	csvOut  bool
)

// Command creates the command that compiles the rig's score and prints it.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compile the acquisition score and print its layout",
		Long: "Compile one stack worth of the simulated rig's measure and print the measure spans " +
			"and hardware chunks, or the samples of one channel as CSV.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if planes < 1 {
				return fmt.Errorf("planes must be at least 1, got %d", planes)
			}
			cs, err := compile(settings, planes)
			if err != nil {
				return err
			}
			if csvOut {
				return writeChannelCSV(cmd.OutOrStdout(), cs, channel)
			}
			printLayout(cmd.OutOrStdout(), cs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&planes, "planes", "p", 4, "number of planes, one measure each after the trigger wait")
	cmd.Flags().IntVar(&channel, "channel", sim.StaveLightsheetZ, "channel written by --csv")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "write the samples of --channel as CSV instead of the layout")

	return cmd
}

// compile builds a score that waits for a rising edge on the camera trigger
// line, then plays n rig measures.
func compile(settings *conf.Settings, n int) (*score.CompiledScore, error) {
	template, err := sim.MeasureTemplate(settings)
	if err != nil {
		return nil, err
	}

	wait := score.NewMeasureWithStaves("wait_for_trigger", template.NumberOfStaves())
	wait.SetSync(true)
	wait.SetSyncChannel(sim.StaveCameraTrigger)
	wait.SetSyncOnRisingEdge(true)

	s := score.NewScore("preview")
	s.AddMeasure(wait)
	s.AddMeasureMultipleTimes(template, n)

	return score.NewCompiler(settings.SignalGenerator).CompileScore(s)
}

func printLayout(w io.Writer, cs *score.CompiledScore) {
	fmt.Fprintf(w, "Sample interval  %v (%.0f Hz)\n", cs.SampleInterval(), cs.SamplingRate())
	fmt.Fprintf(w, "Channels         %d\n", cs.NumberOfChannels())
	fmt.Fprintf(w, "Time points      %d\n", cs.NumberOfTimePoints())
	fmt.Fprintf(w, "Duration         %v\n", cs.Duration())

	fmt.Fprintf(w, "\nMeasure  Start       Time points  Sync\n")
	fmt.Fprintf(w, "───────  ──────────  ───────────  ────\n")
	for _, span := range cs.Measures() {
		fmt.Fprintf(w, "%7d  %10d  %11d  %v\n", span.Measure, span.Start, span.TimePoints, span.Sync)
	}

	for _, mark := range cs.SyncMarks() {
		fmt.Fprintf(w, "\nSync before time point %d on channel %d (rising edge %v)\n", mark.TimePoint, mark.Channel, mark.RisingEdge)
	}

	fmt.Fprintf(w, "\nChunk  Time points  Capacity\n")
	fmt.Fprintf(w, "─────  ───────────  ────────\n")
	for i, chunk := range cs.Chunks() {
		fmt.Fprintf(w, "%5d  %11d  %8d\n", i, chunk.TimePoints, cs.ChunkSize())
	}
}

func writeChannelCSV(w io.Writer, cs *score.CompiledScore, ch int) error {
	if ch < 0 || ch >= cs.NumberOfChannels() {
		return fmt.Errorf("channel %d out of range, score has %d channels", ch, cs.NumberOfChannels())
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time_point", "seconds", "value"}); err != nil {
		return err
	}
	interval := cs.SampleInterval().Seconds()
	for tp, v := range cs.Channel(ch) {
		record := []string{
			strconv.Itoa(tp),
			strconv.FormatFloat(float64(tp)*interval, 'g', 6, 64),
			strconv.FormatFloat(float64(v), 'g', 6, 32),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
