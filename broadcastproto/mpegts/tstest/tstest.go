// Package tstest builds synthetic MPEG-TS packets and PSI sections for tests.
package tstest

import (
	"github.com/Comcast/gots/v2/packet"
)

// Stream is one elementary stream entry of a synthetic PMT.
type Stream struct {
	Type        uint8
	PID         int
	Descriptors []byte
}

// Program is one entry of a synthetic PAT.
type Program struct {
	Number int
	PMTPID int
}

// Packet returns a 188-byte payload-only TS packet. The payload is padded
// with 0xFF and truncated to 184 bytes.
func Packet(pid int, cc uint8, pusi bool, payload []byte) []byte {
	pkt := make([]byte, packet.PacketSize)
	pkt[0] = 0x47
	pkt[1] = byte(pid>>8) & 0x1F
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | (cc & 0x0F)
	n := copy(pkt[4:], payload)
	for i := 4 + n; i < packet.PacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

// Run returns count packets on pid with continuity counters starting at
// firstCC and incrementing modulo 16.
func Run(pid int, firstCC uint8, count int) []byte {
	var res []byte
	for i := 0; i < count; i++ {
		res = append(res, Packet(pid, firstCC+uint8(i), i == 0, []byte{0x00, 0x00, 0x01, 0xE0})...)
	}
	return res
}

// PSIPacket wraps a section in a packet with a zero pointer_field.
func PSIPacket(pid int, cc uint8, section []byte) []byte {
	return Packet(pid, cc, true, append([]byte{0x00}, section...))
}

// PATSection builds a PAT section. The CRC is left zero.
func PATSection(programs ...Program) []byte {
	body := []byte{0x00, 0x01, 0xC1, 0x00, 0x00} // transport_stream_id, version, section numbers
	for _, p := range programs {
		body = append(body,
			byte(p.Number>>8), byte(p.Number),
			0xE0|byte(p.PMTPID>>8)&0x1F, byte(p.PMTPID))
	}
	return section(0x00, body)
}

// PMTSection builds a PMT section for program. The CRC is left zero.
func PMTSection(program int, programInfo []byte, streams ...Stream) []byte {
	body := []byte{
		byte(program >> 8), byte(program),
		0xC1, 0x00, 0x00,
		0xE1, 0x00, // PCR PID 0x100
		0xF0 | byte(len(programInfo)>>8)&0x0F, byte(len(programInfo)),
	}
	body = append(body, programInfo...)
	for _, s := range streams {
		body = append(body,
			s.Type,
			0xE0|byte(s.PID>>8)&0x1F, byte(s.PID),
			0xF0|byte(len(s.Descriptors)>>8)&0x0F, byte(len(s.Descriptors)))
		body = append(body, s.Descriptors...)
	}
	return section(0x02, body)
}

func section(tableID byte, body []byte) []byte {
	length := len(body) + 4
	res := []byte{tableID, 0xB0 | byte(length>>8)&0x0F, byte(length)}
	res = append(res, body...)
	return append(res, 0x00, 0x00, 0x00, 0x00)
}
