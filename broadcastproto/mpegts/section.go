package mpegts

import (
	"github.com/eluv-io/errors-go"
)

// sectionAssembler collects a PSI section that continues past the packet in
// which it started.
type sectionAssembler struct {
	buf  []byte
	need int // table_id through CRC: 3 + section_length
}

func newSectionAssembler(data []byte) (*sectionAssembler, error) {
	if len(data) < 3 {
		return nil, errors.E("newSectionAssembler", errors.K.Invalid, "reason", "section header truncated", "len", len(data))
	}
	sl := sectionLength(data)
	if sl > maxSectionLength {
		return nil, errors.E("newSectionAssembler", errors.K.Invalid, "reason", "section too long", "section_length", sl)
	}
	sa := &sectionAssembler{need: 3 + sl}
	sa.append(data)
	return sa, nil
}

func (sa *sectionAssembler) append(data []byte) {
	missing := sa.need - len(sa.buf)
	if missing <= 0 {
		return
	}
	if len(data) > missing {
		data = data[:missing]
	}
	sa.buf = append(sa.buf, data...)
}

func (sa *sectionAssembler) complete() bool {
	return len(sa.buf) >= sa.need
}

func (sa *sectionAssembler) section() []byte {
	return sa.buf
}
