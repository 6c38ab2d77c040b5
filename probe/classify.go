package probe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/eluv-io/tsaudit/broadcastproto/mpegts"
)

// Thresholds parameterize the health heuristics.
type Thresholds struct {
	MaxErrorRate float64 `yaml:"max_cc_error_rate"` // continuity errors per packet
	MinPackets   int     `yaml:"min_packets"`       // per stream over the window
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrorRate: 0.05,
		MinPackets:   100,
	}
}

// StreamState is the accumulated state of a finished probe run.
type StreamState interface {
	Continuity() *mpegts.ContinuityTracker
	Tables() *mpegts.TableTracker
	UnknownPIDs() []int
	UnknownSightings(pid int) int
}

// Classification holds the per-program verdicts of a run.
type Classification struct {
	Programs    []ProgramResult
	Problematic []int
	Skipped     []int // programs without any received video stream
}

// Classify decides the health of every program declared by the PAT. It does
// not modify st.
//
// Programs without a received video stream are left out of Programs and
// listed in Skipped instead.
func Classify(st StreamState, th Thresholds) Classification {
	cc := st.Continuity()
	tables := st.Tables()
	unknown := st.UnknownPIDs()

	var res Classification
	for _, program := range tables.Programs() {
		pr := ProgramResult{ProgramID: program}

		for _, es := range tables.Streams(program) {
			rec := StreamRecord{
				Type:             es.Label,
				PID:              es.PID,
				Packets:          cc.Packets(es.PID),
				ContinuityErrors: cc.Errors(es.PID),
				ErrorDetails:     cc.Details(es.PID),
			}
			if rec.Packets == 0 {
				pr.MissingStreams = append(pr.MissingStreams, rec)
				continue
			}
			if mpegts.IsVideoLabel(rec.Type) {
				pr.HasVideo = true
			}
			pr.Streams = append(pr.Streams, rec)
		}

		if !pr.HasVideo {
			res.Skipped = append(res.Skipped, program)
			continue
		}

		for i := range pr.Streams {
			s := &pr.Streams[i]
			rate := float64(s.ContinuityErrors) / float64(s.Packets)
			if rate > th.MaxErrorRate {
				s.ErrorDetails = append(s.ErrorDetails, fmt.Sprintf("High continuity error rate: %.2f%%", rate*100))
				pr.markProblematic(fmt.Sprintf("PID %d (%s) continuity error rate %.2f%%", s.PID, s.Type, rate*100))
			}
			if s.Packets < th.MinPackets {
				pr.markProblematic(fmt.Sprintf("PID %d (%s) received only %d packets", s.PID, s.Type, s.Packets))
			}
		}

		for _, m := range pr.MissingStreams {
			pr.markProblematic(fmt.Sprintf("PID %d (%s) declared but not received", m.PID, m.Type))
		}

		if !tables.PMTReceived(program) {
			pmtPID, _ := tables.PMTPID(program)
			pr.Streams = append(pr.Streams, StreamRecord{
				Type:         "Missing PMT",
				PID:          pmtPID,
				ErrorDetails: []string{"No PMT received for this program"},
			})
			pr.markProblematic(fmt.Sprintf("no PMT received on PID %d", pmtPID))
		}

		// Unknown PIDs exclude every declared PID, so this only fires if a
		// declared stream also shows up as undeclared section traffic.
		for _, pid := range unknown {
			if !pr.hasStream(pid) {
				continue
			}
			pr.Streams = append(pr.Streams, StreamRecord{
				Type:         "Unknown PID",
				PID:          pid,
				Packets:      st.UnknownSightings(pid),
				ErrorDetails: []string{"PID active but not referenced in PMT"},
			})
			pr.markProblematic(fmt.Sprintf("PID %d active but not referenced in PMT", pid))
		}

		res.Programs = append(res.Programs, pr)
	}

	markConflicts(tables, res.Programs)

	for _, pr := range res.Programs {
		if pr.IsProblematic {
			res.Problematic = append(res.Problematic, pr.ProgramID)
		}
	}
	return res
}

// markConflicts flags every retained program declaring a PID that another
// program also declares, whether or not the other program was retained.
func markConflicts(tables *mpegts.TableTracker, programs []ProgramResult) {
	pidPrograms := make(map[int][]int)
	for _, program := range tables.Programs() {
		for _, es := range tables.Streams(program) {
			pidPrograms[es.PID] = append(pidPrograms[es.PID], program)
		}
	}

	pids := make([]int, 0, len(pidPrograms))
	for pid, sharing := range pidPrograms {
		if len(sharing) > 1 {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)

	for _, pid := range pids {
		sharing := pidPrograms[pid]
		numbers := make([]string, len(sharing))
		for i, p := range sharing {
			numbers[i] = strconv.Itoa(p)
		}
		detail := fmt.Sprintf("PID %d shared across programs: %s", pid, strings.Join(numbers, ", "))

		for i := range programs {
			pr := &programs[i]
			if !containsInt(sharing, pr.ProgramID) {
				continue
			}
			pr.Streams = append(pr.Streams, StreamRecord{
				Type:         "Conflicting PID",
				PID:          pid,
				ErrorDetails: []string{detail},
			})
			pr.markProblematic(detail)
		}
	}
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
