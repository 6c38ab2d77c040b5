package probe

import (
	"time"
)

// StreamRecord describes one elementary stream of a program as observed
// during a probe run. Synthetic records ("Missing PMT", "Conflicting PID",
// "Unknown PID") carry the PID they refer to and no packets.
type StreamRecord struct {
	Type             string   `json:"type"`
	PID              int      `json:"pid"`
	Packets          int      `json:"packets"`
	ContinuityErrors int      `json:"continuity_errors"`
	ErrorDetails     []string `json:"error_details,omitempty"`
}

// ProgramResult is the verdict on one program.
type ProgramResult struct {
	ProgramID      int            `json:"program_id"`
	Streams        []StreamRecord `json:"streams"`
	MissingStreams []StreamRecord `json:"missing_streams,omitempty"`
	HasVideo       bool           `json:"has_video"`
	IsProblematic  bool           `json:"is_problematic"`
	Reasons        []string       `json:"reasons,omitempty"`
}

func (pr *ProgramResult) markProblematic(reason string) {
	pr.IsProblematic = true
	pr.Reasons = append(pr.Reasons, reason)
}

func (pr *ProgramResult) hasStream(pid int) bool {
	for _, s := range pr.Streams {
		if s.PID == pid {
			return true
		}
	}
	return false
}

// AnalysisResult is the outcome of one probe run. It is built once when the
// run ends and must not be modified afterwards.
type AnalysisResult struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`

	StartedAt       time.Time     `json:"started_at"`
	DurationSeconds float64       `json:"duration_seconds"`
	Elapsed         time.Duration `json:"elapsed"`

	Datagrams    uint64  `json:"datagrams"`
	TotalPackets uint64  `json:"total_packets"`
	TotalBytes   uint64  `json:"total_bytes"`
	BitrateKbps  float64 `json:"bitrate_kbps"`

	SyncErrors        uint64 `json:"sync_errors"`
	IncompletePackets uint64 `json:"incomplete_packets"` // datagrams ending on a partial packet
	MalformedSections uint64 `json:"malformed_sections"`
	ContinuityErrors  int    `json:"continuity_errors"`

	Programs            []ProgramResult `json:"programs"`
	ProblematicPrograms []int           `json:"problematic_programs"`
	SkippedPrograms     []int           `json:"skipped_programs,omitempty"` // no video observed
	UnknownPIDs         []int           `json:"unknown_pids,omitempty"`

	Err string `json:"error,omitempty"`
}

// HasProblems reports whether at least one program was found problematic.
func (r *AnalysisResult) HasProblems() bool {
	return len(r.ProblematicPrograms) > 0
}

// Program returns the result for programID, if it was retained.
func (r *AnalysisResult) Program(programID int) (ProgramResult, bool) {
	for _, p := range r.Programs {
		if p.ProgramID == programID {
			return p, true
		}
	}
	return ProgramResult{}, false
}

// Bitrate returns the average bitrate in kbit/s of totalBytes received over d.
func Bitrate(totalBytes uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(totalBytes) * 8 / d.Seconds() / 1000
}
