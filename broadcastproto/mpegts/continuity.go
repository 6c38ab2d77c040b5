package mpegts

import (
	"fmt"
	"sort"
)

// MaxErrorDetails is the number of continuity error descriptions kept per PID.
// Further errors are still counted.
const MaxErrorDetails = 5

// ContinuityTracker keeps the last continuity counter, the packet count and
// the continuity errors of every PID seen during one probe run. It is owned by
// a single goroutine and is not safe for concurrent use.
type ContinuityTracker struct {
	last    map[int]uint8
	packets map[int]int
	errors  map[int]int
	details map[int][]string
	total   int
}

func NewContinuityTracker() *ContinuityTracker {
	return &ContinuityTracker{
		last:    make(map[int]uint8),
		packets: make(map[int]int),
		errors:  make(map[int]int),
		details: make(map[int][]string),
	}
}

// Observe records a packet on pid carrying continuity counter cc and reports
// whether cc followed the previous counter of the same PID. The first packet
// of a PID is always in order. The tracker resynchronizes on cc either way.
func (t *ContinuityTracker) Observe(pid int, cc uint8) bool {
	cc &= 0x0f
	t.packets[pid]++

	prev, exists := t.last[pid]
	t.last[pid] = cc
	if !exists {
		return true
	}

	expected := (prev + 1) % 16
	if cc == expected {
		return true
	}

	t.errors[pid]++
	t.total++
	if len(t.details[pid]) < MaxErrorDetails {
		t.details[pid] = append(t.details[pid], fmt.Sprintf("expected %d, got %d", expected, cc))
	}
	return false
}

// Packets returns the number of packets seen on pid.
func (t *ContinuityTracker) Packets(pid int) int {
	return t.packets[pid]
}

// Errors returns the number of continuity errors recorded on pid.
func (t *ContinuityTracker) Errors(pid int) int {
	return t.errors[pid]
}

// Details returns a copy of the captured error descriptions for pid.
func (t *ContinuityTracker) Details(pid int) []string {
	d := t.details[pid]
	if len(d) == 0 {
		return nil
	}
	res := make([]string, len(d))
	copy(res, d)
	return res
}

// TotalErrors returns the continuity errors summed over all PIDs.
func (t *ContinuityTracker) TotalErrors() int {
	return t.total
}

// PIDs returns every PID seen so far in ascending order.
func (t *ContinuityTracker) PIDs() []int {
	pids := make([]int, 0, len(t.packets))
	for pid := range t.packets {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}
