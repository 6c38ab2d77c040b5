package mpegts

import (
	"sort"

	"github.com/Comcast/gots/v2/packet"
	elog "github.com/eluv-io/log-go"
)

const syncByte = 0x47

var mpegtslog = elog.Get("/tsaudit/broadcastproto/mpegts")

// TSStats are the stream-wide counters of one demuxer run.
type TSStats struct {
	DatagramsReceived uint64
	BytesReceived     uint64
	PacketsReceived   uint64

	PATSections uint64
	PMTSections uint64

	ErrorsSync              uint64 // 188-byte strides not starting with the sync byte
	ErrorsIncompletePackets uint64 // datagrams with a trailing fragment
	ErrorsMalformedSections uint64
}

// Demuxer splits datagrams into TS packets and feeds the continuity and table
// trackers. It keeps no locks: a demuxer belongs to the goroutine running the
// probe that created it.
type Demuxer struct {
	continuity *ContinuityTracker
	tables     *TableTracker

	partial map[int]*sectionAssembler // PSI PID -> section being collected
	unknown map[int]int               // PID -> section starts seen on undeclared PIDs
	stats   TSStats
}

func NewDemuxer() *Demuxer {
	return &Demuxer{
		continuity: NewContinuityTracker(),
		tables:     NewTableTracker(),
		partial:    make(map[int]*sectionAssembler),
		unknown:    make(map[int]int),
	}
}

// ProcessDatagram handles one received datagram as a sequence of 188-byte TS
// packets. Strides without the sync byte are skipped without resynchronizing
// and a trailing fragment is dropped.
func (d *Demuxer) ProcessDatagram(data []byte) {
	d.stats.DatagramsReceived++
	d.stats.BytesReceived += uint64(len(data))

	for offset := 0; offset+packet.PacketSize <= len(data); offset += packet.PacketSize {
		if data[offset] != syncByte {
			d.stats.ErrorsSync++
			continue
		}
		var pkt packet.Packet
		copy(pkt[:], data[offset:offset+packet.PacketSize])
		d.HandlePacket(&pkt)
	}
	if len(data)%packet.PacketSize != 0 {
		d.stats.ErrorsIncompletePackets++
	}
}

// HandlePacket processes a single packet that passed the sync byte check.
func (d *Demuxer) HandlePacket(pkt *packet.Packet) {
	d.stats.PacketsReceived++

	pid := pkt.PID()
	inOrder := d.continuity.Observe(pid, uint8(pkt.ContinuityCounter()))

	if !pkt.PayloadUnitStartIndicator() {
		d.continueSection(pid, pkt, inOrder)
		return
	}

	payload, err := pkt.Payload()
	if err != nil || len(payload) < 1 {
		delete(d.partial, pid)
		return
	}
	start := 1 + int(payload[0]) // skip pointer_field
	d.finishSection(pid, payload[1:min(start, len(payload))], inOrder)
	if len(payload) < 2 {
		return
	}
	if start >= len(payload) {
		if d.isPSIPID(pid) {
			d.stats.ErrorsMalformedSections++
		}
		return
	}
	d.startSection(pid, payload[start:])
}

func (d *Demuxer) isPSIPID(pid int) bool {
	return pid == PidPAT || d.tables.IsPMTPID(pid)
}

func (d *Demuxer) startSection(pid int, data []byte) {
	tableID := data[0]
	isPAT := pid == PidPAT && tableID == TableIDPAT
	isPMT := tableID == TableIDPMT && d.tables.IsPMTPID(pid)
	if !isPAT && !isPMT {
		if !d.tables.IsDeclared(pid) {
			d.unknown[pid]++
		}
		return
	}

	sa, err := newSectionAssembler(data)
	if err != nil {
		d.stats.ErrorsMalformedSections++
		return
	}
	if sa.complete() {
		d.dispatch(pid, sa.section())
		return
	}
	d.partial[pid] = sa
}

func (d *Demuxer) continueSection(pid int, pkt *packet.Packet, inOrder bool) {
	sa, ok := d.partial[pid]
	if !ok {
		return
	}
	if !inOrder {
		// a lost packet leaves a hole in the section
		delete(d.partial, pid)
		return
	}
	payload, err := pkt.Payload()
	if err != nil {
		return
	}
	sa.append(payload)
	if sa.complete() {
		delete(d.partial, pid)
		d.dispatch(pid, sa.section())
	}
}

// finishSection completes the section being collected on pid with the bytes
// preceding the pointer_field target of a packet that starts a new one.
func (d *Demuxer) finishSection(pid int, tail []byte, inOrder bool) {
	sa, ok := d.partial[pid]
	if !ok {
		return
	}
	delete(d.partial, pid)
	if !inOrder {
		return
	}
	sa.append(tail)
	if sa.complete() {
		d.dispatch(pid, sa.section())
	}
}

func (d *Demuxer) dispatch(pid int, section []byte) {
	var err error
	switch section[0] {
	case TableIDPAT:
		err = d.tables.ParsePAT(section)
		if err == nil {
			d.stats.PATSections++
		}
	case TableIDPMT:
		err = d.tables.ParsePMT(pid, section)
		if err == nil {
			d.stats.PMTSections++
		}
	}
	if err != nil {
		d.stats.ErrorsMalformedSections++
	}
}

// Continuity returns the continuity tracker fed by this demuxer.
func (d *Demuxer) Continuity() *ContinuityTracker {
	return d.continuity
}

// Tables returns the table tracker fed by this demuxer.
func (d *Demuxer) Tables() *TableTracker {
	return d.tables
}

// Stats returns a copy of the demuxer counters.
func (d *Demuxer) Stats() TSStats {
	return d.stats
}

// UnknownPIDs returns, in ascending order, the PIDs that started a section
// without being the PAT, a registered PMT PID or a declared elementary
// stream. PIDs registered or declared later in the run are not reported.
func (d *Demuxer) UnknownPIDs() []int {
	var pids []int
	for pid := range d.unknown {
		if d.isPSIPID(pid) || d.tables.IsDeclared(pid) {
			continue
		}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// UnknownSightings returns how many section starts were seen on an unknown pid.
func (d *Demuxer) UnknownSightings(pid int) int {
	return d.unknown[pid]
}

// LogStats logs the demuxer counters at debug level.
func (d *Demuxer) LogStats(fields ...interface{}) {
	fields = append(fields,
		"datagrams", d.stats.DatagramsReceived,
		"packets", d.stats.PacketsReceived,
		"bytes", d.stats.BytesReceived,
		"cc_errors", d.continuity.TotalErrors(),
		"sync_errors", d.stats.ErrorsSync,
		"incomplete_packets", d.stats.ErrorsIncompletePackets,
		"malformed_sections", d.stats.ErrorsMalformedSections)
	mpegtslog.Debug("mpegts stats", fields...)
}
