package mpegts

import (
	"sort"

	"github.com/eluv-io/errors-go"
)

const (
	TableIDPAT = 0x00
	TableIDPMT = 0x02

	PidPAT = 0x0000

	// maxSectionLength is the largest section_length allowed for PAT/PMT.
	maxSectionLength = 0x3FD
	crcLength        = 4
)

// ElementaryStream is one (type, PID) entry declared by a PMT.
type ElementaryStream struct {
	StreamType uint8
	Label      string
	PID        int
}

// TableTracker builds the program map of a transport stream from PAT and PMT
// sections. State is only ever modified by a section that parsed completely;
// a truncated or inconsistent section leaves it untouched.
type TableTracker struct {
	pmtPIDs map[int]int                // program number -> PMT PID, from the PAT
	streams map[int][]ElementaryStream // program number -> declared streams, from PMTs
	pmtFrom map[int]map[int]bool       // program number -> PIDs its PMT arrived on
}

func NewTableTracker() *TableTracker {
	return &TableTracker{
		pmtPIDs: make(map[int]int),
		streams: make(map[int][]ElementaryStream),
		pmtFrom: make(map[int]map[int]bool),
	}
}

func sectionLength(section []byte) int {
	return int(section[1]&0x0F)<<8 | int(section[2])
}

// ParsePAT parses a PAT section starting at its table_id byte. Program number
// 0 (the network PID) is ignored and later entries for a program overwrite
// earlier ones.
func (t *TableTracker) ParsePAT(section []byte) error {
	e := errors.Template("TableTracker.ParsePAT", errors.K.Invalid)

	if len(section) < 8 {
		return e("reason", "section too short", "len", len(section))
	}
	if section[0] != TableIDPAT {
		return e("reason", "unexpected table id", "table_id", section[0])
	}
	sl := sectionLength(section)
	tableEnd := 3 + sl - crcLength
	if sl > maxSectionLength || tableEnd > len(section) {
		return e("reason", "section exceeds buffer", "section_length", sl, "len", len(section))
	}

	entries := make(map[int]int)
	for i := 8; i+4 <= tableEnd; i += 4 {
		program := int(section[i])<<8 | int(section[i+1])
		pid := int(section[i+2]&0x1F)<<8 | int(section[i+3])
		if program == 0 {
			continue
		}
		entries[program] = pid
	}

	for program, pid := range entries {
		t.pmtPIDs[program] = pid
	}
	return nil
}

// ParsePMT parses a PMT section received on pid, starting at its table_id
// byte. The program must already be known from the PAT. Streams are
// deduplicated by PID within the program.
func (t *TableTracker) ParsePMT(pid int, section []byte) error {
	e := errors.Template("TableTracker.ParsePMT", errors.K.Invalid, "pid", pid)

	if len(section) < 12 {
		return e("reason", "section too short", "len", len(section))
	}
	if section[0] != TableIDPMT {
		return e("reason", "unexpected table id", "table_id", section[0])
	}
	sl := sectionLength(section)
	tableEnd := 3 + sl - crcLength
	if sl > maxSectionLength || tableEnd > len(section) {
		return e("reason", "section exceeds buffer", "section_length", sl, "len", len(section))
	}

	program := int(section[3])<<8 | int(section[4])
	if _, ok := t.pmtPIDs[program]; !ok {
		return e("reason", "program not in PAT", "program", program)
	}

	programInfoLength := int(section[10]&0x0F)<<8 | int(section[11])
	pos := 12 + programInfoLength
	if pos > tableEnd {
		return e("reason", "program info exceeds section", "program_info_length", programInfoLength)
	}

	var found []ElementaryStream
	for pos+5 <= tableEnd {
		streamType := section[pos]
		esPID := int(section[pos+1]&0x1F)<<8 | int(section[pos+2])
		esInfoLength := int(section[pos+3]&0x0F)<<8 | int(section[pos+4])
		found = append(found, ElementaryStream{
			StreamType: streamType,
			Label:      StreamTypeLabel(streamType),
			PID:        esPID,
		})
		pos += 5 + esInfoLength
	}
	if pos > tableEnd {
		return e("reason", "ES info exceeds section", "pos", pos, "table_end", tableEnd)
	}

	declared := t.streams[program]
	for _, es := range found {
		if !containsPID(declared, es.PID) {
			declared = append(declared, es)
		}
	}
	t.streams[program] = declared

	if t.pmtFrom[program] == nil {
		t.pmtFrom[program] = make(map[int]bool)
	}
	t.pmtFrom[program][pid] = true
	return nil
}

func containsPID(streams []ElementaryStream, pid int) bool {
	for _, s := range streams {
		if s.PID == pid {
			return true
		}
	}
	return false
}

// IsPMTPID reports whether pid is registered as the PMT PID of any program.
func (t *TableTracker) IsPMTPID(pid int) bool {
	for _, p := range t.pmtPIDs {
		if p == pid {
			return true
		}
	}
	return false
}

// IsDeclared reports whether pid is declared as an elementary stream by any PMT.
func (t *TableTracker) IsDeclared(pid int) bool {
	for _, streams := range t.streams {
		if containsPID(streams, pid) {
			return true
		}
	}
	return false
}

// ProgramMap returns a copy of the program number -> PMT PID mapping.
func (t *TableTracker) ProgramMap() map[int]int {
	res := make(map[int]int, len(t.pmtPIDs))
	for program, pid := range t.pmtPIDs {
		res[program] = pid
	}
	return res
}

// Programs returns the program numbers declared by the PAT in ascending order.
func (t *TableTracker) Programs() []int {
	programs := make([]int, 0, len(t.pmtPIDs))
	for program := range t.pmtPIDs {
		programs = append(programs, program)
	}
	sort.Ints(programs)
	return programs
}

// PMTPID returns the PMT PID the PAT registered for program.
func (t *TableTracker) PMTPID(program int) (int, bool) {
	pid, ok := t.pmtPIDs[program]
	return pid, ok
}

// Streams returns a copy of the streams declared for program, in PMT order.
func (t *TableTracker) Streams(program int) []ElementaryStream {
	s := t.streams[program]
	if len(s) == 0 {
		return nil
	}
	res := make([]ElementaryStream, len(s))
	copy(res, s)
	return res
}

// PMTReceived reports whether a PMT for program arrived on the PMT PID the
// PAT currently registers for it.
func (t *TableTracker) PMTReceived(program int) bool {
	pid, ok := t.pmtPIDs[program]
	if !ok {
		return false
	}
	return t.pmtFrom[program][pid]
}
