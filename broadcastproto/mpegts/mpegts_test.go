package mpegts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eluv-io/tsaudit/broadcastproto/mpegts/tstest"
)

func programOne() [][]byte {
	return [][]byte{
		tstest.PSIPacket(PidPAT, 0, tstest.PATSection(tstest.Program{Number: 1, PMTPID: 256})),
		tstest.PSIPacket(256, 0, tstest.PMTSection(1, nil,
			tstest.Stream{Type: StreamTypeH264, PID: 100},
			tstest.Stream{Type: StreamTypeAAC, PID: 101},
		)),
	}
}

func TestDemuxerTables(t *testing.T) {
	d := NewDemuxer()
	for _, p := range programOne() {
		d.ProcessDatagram(p)
	}
	d.ProcessDatagram(tstest.Run(100, 0, 7))

	require.Equal(t, map[int]int{1: 256}, d.Tables().ProgramMap())
	require.Len(t, d.Tables().Streams(1), 2)
	require.Equal(t, 7, d.Continuity().Packets(100))

	st := d.Stats()
	require.Equal(t, uint64(3), st.DatagramsReceived)
	require.Equal(t, uint64(9), st.PacketsReceived)
	require.Equal(t, uint64(9*188), st.BytesReceived)
	require.Equal(t, uint64(1), st.PATSections)
	require.Equal(t, uint64(1), st.PMTSections)
	require.Empty(t, d.UnknownPIDs())
}

func TestDemuxerSyncAndFragments(t *testing.T) {
	d := NewDemuxer()
	bad := tstest.Packet(100, 0, false, nil)
	bad[0] = 0x48
	dgram := append([]byte{}, tstest.Packet(100, 0, false, nil)...)
	dgram = append(dgram, bad...)
	dgram = append(dgram, tstest.Packet(100, 1, false, nil)...)
	dgram = append(dgram, 0x47, 0x00, 0x64) // trailing fragment

	d.ProcessDatagram(dgram)

	st := d.Stats()
	require.Equal(t, uint64(2), st.PacketsReceived)
	require.Equal(t, uint64(1), st.ErrorsSync)
	require.Equal(t, uint64(1), st.ErrorsIncompletePackets)
	require.Equal(t, 0, d.Continuity().Errors(100))
}

func TestDemuxerMisalignedDatagram(t *testing.T) {
	d := NewDemuxer()
	// one leading junk byte shifts every stride: nothing is recovered
	dgram := append([]byte{0x00}, tstest.Run(100, 0, 7)...)
	d.ProcessDatagram(dgram)
	require.Equal(t, uint64(0), d.Stats().PacketsReceived)
	require.Equal(t, uint64(7), d.Stats().ErrorsSync)
}

func TestDemuxerPMTBeforePAT(t *testing.T) {
	d := NewDemuxer()
	pkts := programOne()
	d.ProcessDatagram(pkts[1])
	d.ProcessDatagram(pkts[0])
	require.Empty(t, d.Tables().Streams(1))
	require.False(t, d.Tables().PMTReceived(1))
	// the next PMT repetition is accepted
	d.ProcessDatagram(tstest.PSIPacket(256, 1, tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeH264, PID: 100})))
	require.True(t, d.Tables().PMTReceived(1))
}

func TestDemuxerUnknownPIDs(t *testing.T) {
	d := NewDemuxer()
	// PES start on PID 100 before any PMT declares it
	d.ProcessDatagram(tstest.Run(100, 0, 2))
	// section on a PID nobody declares
	d.ProcessDatagram(tstest.PSIPacket(0x11, 0, []byte{0x42, 0xF0, 0x05, 0, 0, 0, 0, 0}))
	for _, p := range programOne() {
		d.ProcessDatagram(p)
	}
	require.Equal(t, []int{0x11}, d.UnknownPIDs())
	require.Equal(t, 1, d.UnknownSightings(0x11))
}

func TestDemuxerMultiPacketPMT(t *testing.T) {
	desc := bytes.Repeat([]byte{0xAB}, 80)
	sec := tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeH264, PID: 100, Descriptors: desc},
		tstest.Stream{Type: StreamTypeAAC, PID: 101, Descriptors: desc},
		tstest.Stream{Type: StreamTypePrivatePES, PID: 102, Descriptors: desc},
	)
	require.Greater(t, len(sec), 183)

	d := NewDemuxer()
	d.ProcessDatagram(programOne()[0])
	d.ProcessDatagram(tstest.Packet(256, 0, true, append([]byte{0x00}, sec[:183]...)))
	require.Empty(t, d.Tables().Streams(1))
	d.ProcessDatagram(tstest.Packet(256, 1, false, sec[183:]))

	require.Len(t, d.Tables().Streams(1), 3)
	require.Equal(t, uint64(0), d.Stats().ErrorsMalformedSections)
}

func TestDemuxerBackToBackPMTSections(t *testing.T) {
	desc := bytes.Repeat([]byte{0xAB}, 80)
	sec := tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeH264, PID: 100, Descriptors: desc},
		tstest.Stream{Type: StreamTypeAAC, PID: 101, Descriptors: desc},
		tstest.Stream{Type: StreamTypePrivatePES, PID: 102, Descriptors: desc},
	)
	tail := sec[183:]
	require.Less(t, len(tail), 183)

	// the second packet ends the first section and starts the next copy
	// right after it, the pointer_field skipping the tail
	second := append([]byte{byte(len(tail))}, tail...)
	head := 184 - len(second)
	second = append(second, sec[:head]...)

	d := NewDemuxer()
	d.ProcessDatagram(programOne()[0])
	d.ProcessDatagram(tstest.Packet(256, 0, true, append([]byte{0x00}, sec[:183]...)))
	d.ProcessDatagram(tstest.Packet(256, 1, true, second))

	require.Len(t, d.Tables().Streams(1), 3)
	require.Equal(t, uint64(1), d.Stats().PMTSections)

	d.ProcessDatagram(tstest.Packet(256, 2, false, sec[head:]))
	require.Equal(t, uint64(2), d.Stats().PMTSections)
	require.Equal(t, uint64(0), d.Stats().ErrorsMalformedSections)
	require.Empty(t, d.UnknownPIDs())
}

func TestDemuxerPointerFieldTailAfterLoss(t *testing.T) {
	desc := bytes.Repeat([]byte{0xAB}, 80)
	sec := tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeH264, PID: 100, Descriptors: desc},
		tstest.Stream{Type: StreamTypeAAC, PID: 101, Descriptors: desc},
		tstest.Stream{Type: StreamTypePrivatePES, PID: 102, Descriptors: desc},
	)
	tail := sec[183:]

	d := NewDemuxer()
	d.ProcessDatagram(programOne()[0])
	d.ProcessDatagram(tstest.Packet(256, 0, true, append([]byte{0x00}, sec[:183]...)))
	// counter jumps: the tail cannot belong to the collected head
	d.ProcessDatagram(tstest.Packet(256, 5, true, append([]byte{byte(len(tail))}, tail...)))

	require.Empty(t, d.Tables().Streams(1))
	require.Equal(t, uint64(0), d.Stats().PMTSections)
}

func TestDemuxerMultiPacketPMTWithLoss(t *testing.T) {
	desc := bytes.Repeat([]byte{0xAB}, 80)
	sec := tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeH264, PID: 100, Descriptors: desc},
		tstest.Stream{Type: StreamTypeAAC, PID: 101, Descriptors: desc},
		tstest.Stream{Type: StreamTypePrivatePES, PID: 102, Descriptors: desc},
	)

	d := NewDemuxer()
	d.ProcessDatagram(programOne()[0])
	d.ProcessDatagram(tstest.Packet(256, 0, true, append([]byte{0x00}, sec[:183]...)))
	// counter jumps: the continuation is discarded
	d.ProcessDatagram(tstest.Packet(256, 2, false, sec[183:]))

	require.Empty(t, d.Tables().Streams(1))
	require.Equal(t, 1, d.Continuity().Errors(256))
}

func TestDemuxerMalformedSectionCounted(t *testing.T) {
	d := NewDemuxer()
	d.ProcessDatagram(programOne()[0])
	sec := tstest.PMTSection(1, []byte{}, tstest.Stream{Type: StreamTypeH264, PID: 100})
	sec[10], sec[11] = 0xF3, 0xFF
	d.ProcessDatagram(tstest.PSIPacket(256, 0, sec))

	require.Equal(t, uint64(1), d.Stats().ErrorsMalformedSections)
	require.Empty(t, d.Tables().Streams(1))
}
