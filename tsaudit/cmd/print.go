package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/probe"
)

// Version is set at build time with -ldflags "-X github.com/eluv-io/tsaudit/tsaudit/cmd.Version=..."
var Version = "dev"

func addThresholdFlags(cmd *cobra.Command) {
	def := probe.DefaultThresholds()
	cmd.Flags().Float64("max-error-rate", def.MaxErrorRate, "continuity errors per packet above which a stream is problematic")
	cmd.Flags().Int("min-packets", def.MinPackets, "packets per window below which a stream is problematic")
	cmd.Flags().Bool("json", false, "print the result as JSON")
}

func thresholdsFromFlags(cmd *cobra.Command) (probe.Thresholds, error) {
	var th probe.Thresholds
	var err error
	th.MaxErrorRate, err = cmd.Flags().GetFloat64("max-error-rate")
	if err != nil {
		return th, fmt.Errorf("Invalid max-error-rate flag")
	}
	th.MinPackets, err = cmd.Flags().GetInt("min-packets")
	if err != nil {
		return th, fmt.Errorf("Invalid min-packets flag")
	}
	return th, nil
}

func printResult(w io.Writer, res *probe.AnalysisResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "Endpoint %s (%s)\n", res.Endpoint, res.URL)
	if res.Err != "" {
		fmt.Fprintf(w, "\terror: %s\n", res.Err)
	}
	fmt.Fprintf(w, "\tduration: %.1fs\n", res.DurationSeconds)
	fmt.Fprintf(w, "\tdatagrams: %d\n", res.Datagrams)
	fmt.Fprintf(w, "\tpackets: %d\n", res.TotalPackets)
	fmt.Fprintf(w, "\tbitrate: %.1f kbps\n", res.BitrateKbps)
	fmt.Fprintf(w, "\tcontinuity_errors: %d\n", res.ContinuityErrors)
	fmt.Fprintf(w, "\tsync_errors: %d\n", res.SyncErrors)
	fmt.Fprintf(w, "\tincomplete_packets: %d\n", res.IncompletePackets)
	fmt.Fprintf(w, "\tmalformed_sections: %d\n", res.MalformedSections)
	if len(res.SkippedPrograms) > 0 {
		fmt.Fprintf(w, "\tprograms_without_video: %s\n", joinInts(res.SkippedPrograms))
	}
	if len(res.UnknownPIDs) > 0 {
		fmt.Fprintf(w, "\tunknown_pids: %s\n", joinInts(res.UnknownPIDs))
	}

	for _, pr := range res.Programs {
		status := "ok"
		if pr.IsProblematic {
			status = "PROBLEMATIC"
		}
		fmt.Fprintf(w, "Program[%d] %s\n", pr.ProgramID, status)
		for _, s := range pr.Streams {
			fmt.Fprintf(w, "\tpid %d %s: packets=%d cc_errors=%d\n", s.PID, s.Type, s.Packets, s.ContinuityErrors)
			for _, d := range s.ErrorDetails {
				fmt.Fprintf(w, "\t\t%s\n", d)
			}
		}
		for _, m := range pr.MissingStreams {
			fmt.Fprintf(w, "\tpid %d %s: missing\n", m.PID, m.Type)
		}
		for _, r := range pr.Reasons {
			fmt.Fprintf(w, "\treason: %s\n", r)
		}
	}
	return nil
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ", ")
}
