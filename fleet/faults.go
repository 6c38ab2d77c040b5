package fleet

import (
	"fmt"
	"strings"

	"github.com/eluv-io/tsaudit/probe"
)

const noVideoPhrase = " has no video stream"

// FaultDescriptions returns one sentence per problematic program of res, e.g.
//
//	Program 3 (224.200.200.200:10072), missing AAC Audio and Subtitles, PID 101 (AAC Audio) has 14 continuity errors.
//
// Streams are named when their continuity error count exceeds ccErrors.
func FaultDescriptions(res *probe.AnalysisResult, ccErrors int) []string {
	var msgs []string
	for _, pr := range res.Programs {
		if !pr.IsProblematic {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Program %d (%s)", pr.ProgramID, res.Endpoint)

		if !pr.HasVideo {
			sb.WriteString(noVideoPhrase)
		}

		if len(pr.MissingStreams) > 0 {
			types := make([]string, len(pr.MissingStreams))
			for i, m := range pr.MissingStreams {
				types[i] = m.Type
			}
			if pr.HasVideo {
				sb.WriteString(", missing ")
			} else {
				sb.WriteString(" and is missing ")
			}
			sb.WriteString(strings.Join(types, " and "))
		}

		for _, s := range pr.Streams {
			if s.ContinuityErrors > ccErrors {
				fmt.Fprintf(&sb, ", PID %d (%s) has %d continuity errors", s.PID, s.Type, s.ContinuityErrors)
			}
		}

		sb.WriteString(".")
		msgs = append(msgs, sb.String())
	}
	return msgs
}

// PublishableFaults drops duplicates and sentences about programs without
// video, keeping the order of first appearance.
func PublishableFaults(msgs []string) []string {
	res := make([]string, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if seen[m] || strings.Contains(m, noVideoPhrase) {
			continue
		}
		seen[m] = true
		res = append(res, m)
	}
	return res
}
