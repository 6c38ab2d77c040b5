package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eluv-io/tsaudit/broadcastproto/mpegts/tstest"
)

func TestParsePAT(t *testing.T) {
	tt := NewTableTracker()
	err := tt.ParsePAT(tstest.PATSection(
		tstest.Program{Number: 1, PMTPID: 100},
		tstest.Program{Number: 2, PMTPID: 200},
	))
	require.NoError(t, err)
	require.Equal(t, map[int]int{1: 100, 2: 200}, tt.ProgramMap())
	require.Equal(t, []int{1, 2}, tt.Programs())
	require.True(t, tt.IsPMTPID(100))
	require.True(t, tt.IsPMTPID(200))
	require.False(t, tt.IsPMTPID(300))
}

func TestParsePATIgnoresNetworkPID(t *testing.T) {
	tt := NewTableTracker()
	err := tt.ParsePAT(tstest.PATSection(
		tstest.Program{Number: 0, PMTPID: 16},
		tstest.Program{Number: 3, PMTPID: 300},
	))
	require.NoError(t, err)
	require.Equal(t, map[int]int{3: 300}, tt.ProgramMap())
}

func TestParsePATLastSeenWins(t *testing.T) {
	tt := NewTableTracker()
	require.NoError(t, tt.ParsePAT(tstest.PATSection(tstest.Program{Number: 1, PMTPID: 100})))
	require.NoError(t, tt.ParsePAT(tstest.PATSection(
		tstest.Program{Number: 1, PMTPID: 110},
		tstest.Program{Number: 1, PMTPID: 120},
	)))
	require.Equal(t, map[int]int{1: 120}, tt.ProgramMap())
}

func TestParsePATTruncated(t *testing.T) {
	tt := NewTableTracker()
	sec := tstest.PATSection(
		tstest.Program{Number: 1, PMTPID: 100},
		tstest.Program{Number: 2, PMTPID: 200},
	)
	require.Error(t, tt.ParsePAT(sec[:len(sec)-6]))
	require.Error(t, tt.ParsePAT(sec[:5]))
	require.Empty(t, tt.ProgramMap())
}

func TestParsePMT(t *testing.T) {
	tt := NewTableTracker()
	require.NoError(t, tt.ParsePAT(tstest.PATSection(tstest.Program{Number: 1, PMTPID: 256})))

	err := tt.ParsePMT(256, tstest.PMTSection(1, []byte{0x09, 0x02, 0xAA, 0xBB},
		tstest.Stream{Type: StreamTypeH264, PID: 100},
		tstest.Stream{Type: StreamTypeAAC, PID: 101, Descriptors: []byte{0x0A, 0x04, 'e', 'n', 'g', 0x00}},
		tstest.Stream{Type: 0x86, PID: 102},
		tstest.Stream{Type: StreamTypeAAC, PID: 101},
	))
	require.NoError(t, err)
	require.Equal(t, []ElementaryStream{
		{StreamType: StreamTypeH264, Label: "H.264 Video", PID: 100},
		{StreamType: StreamTypeAAC, Label: "AAC Audio", PID: 101},
		{StreamType: 0x86, Label: "Unknown (0x86)", PID: 102},
	}, tt.Streams(1))
	require.True(t, tt.PMTReceived(1))
	require.True(t, tt.IsDeclared(101))
	require.False(t, tt.IsDeclared(256))
}

func TestParsePMTRepeatedDoesNotDuplicate(t *testing.T) {
	tt := NewTableTracker()
	require.NoError(t, tt.ParsePAT(tstest.PATSection(tstest.Program{Number: 1, PMTPID: 256})))
	sec := tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeMpeg2Video, PID: 100},
		tstest.Stream{Type: StreamTypeMpeg1Audio, PID: 101},
	)
	for i := 0; i < 3; i++ {
		require.NoError(t, tt.ParsePMT(256, sec))
	}
	require.Len(t, tt.Streams(1), 2)
}

func TestParsePMTUnknownProgram(t *testing.T) {
	tt := NewTableTracker()
	err := tt.ParsePMT(256, tstest.PMTSection(7, nil, tstest.Stream{Type: StreamTypeH264, PID: 100}))
	require.Error(t, err)
	require.Empty(t, tt.Streams(7))
}

func TestParsePMTMalformed(t *testing.T) {
	tt := NewTableTracker()
	require.NoError(t, tt.ParsePAT(tstest.PATSection(tstest.Program{Number: 1, PMTPID: 256})))

	// ES info length runs past the end of the section
	sec := tstest.PMTSection(1, nil,
		tstest.Stream{Type: StreamTypeH264, PID: 100},
		tstest.Stream{Type: StreamTypeAAC, PID: 101},
	)
	sec[len(sec)-4-1] = 0x40
	require.Error(t, tt.ParsePMT(256, sec))

	// program info length runs past the end of the section
	sec = tstest.PMTSection(1, nil, tstest.Stream{Type: StreamTypeH264, PID: 100})
	sec[10], sec[11] = 0xF3, 0xFF
	require.Error(t, tt.ParsePMT(256, sec))

	// truncated buffer
	sec = tstest.PMTSection(1, nil, tstest.Stream{Type: StreamTypeH264, PID: 100})
	require.Error(t, tt.ParsePMT(256, sec[:10]))
	require.Error(t, tt.ParsePMT(256, sec[:len(sec)-5]))

	require.Empty(t, tt.Streams(1))
	require.False(t, tt.PMTReceived(1))
}

func TestPMTReceivedFollowsPAT(t *testing.T) {
	tt := NewTableTracker()
	require.NoError(t, tt.ParsePAT(tstest.PATSection(tstest.Program{Number: 1, PMTPID: 256})))
	require.False(t, tt.PMTReceived(1))
	require.NoError(t, tt.ParsePMT(256, tstest.PMTSection(1, nil, tstest.Stream{Type: StreamTypeH264, PID: 100})))
	require.True(t, tt.PMTReceived(1))

	// the PMT moves to another PID and never shows up there
	require.NoError(t, tt.ParsePAT(tstest.PATSection(tstest.Program{Number: 1, PMTPID: 257})))
	require.False(t, tt.PMTReceived(1))
	require.Len(t, tt.Streams(1), 1)
}

func TestStreamTypeLabel(t *testing.T) {
	require.Equal(t, "MPEG-2 Video", StreamTypeLabel(0x02))
	require.Equal(t, "H.265 Video", StreamTypeLabel(0x24))
	require.Equal(t, "Subtitles", StreamTypeLabel(0x06))
	require.Equal(t, "Unknown (0x0A)", StreamTypeLabel(0x0A))
	require.True(t, IsVideoLabel(StreamTypeLabel(0x01)))
	require.False(t, IsVideoLabel(StreamTypeLabel(0x0F)))
}
