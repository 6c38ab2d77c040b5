package mpegts

import (
	"fmt"
	"strings"
)

// PMT stream_type values with a known label.
const (
	StreamTypeMpeg1Video = 0x01
	StreamTypeMpeg2Video = 0x02
	StreamTypeMpeg1Audio = 0x03
	StreamTypeMpeg2Audio = 0x04
	StreamTypePrivatePES = 0x06 // DVB subtitles and teletext
	StreamTypeAAC        = 0x0F
	StreamTypeH264       = 0x1B
	StreamTypeH265       = 0x24
)

var streamTypeLabels = map[uint8]string{
	StreamTypeMpeg1Video: "MPEG-1 Video",
	StreamTypeMpeg2Video: "MPEG-2 Video",
	StreamTypeH264:       "H.264 Video",
	StreamTypeH265:       "H.265 Video",
	StreamTypeMpeg1Audio: "MPEG-1 Audio",
	StreamTypeMpeg2Audio: "MPEG-2 Audio",
	StreamTypeAAC:        "AAC Audio",
	StreamTypePrivatePES: "Subtitles",
}

// StreamTypeLabel maps a raw PMT stream_type byte to its label. Unlisted
// types are labelled "Unknown (0xNN)".
func StreamTypeLabel(streamType uint8) string {
	if label, ok := streamTypeLabels[streamType]; ok {
		return label
	}
	return fmt.Sprintf("Unknown (0x%02X)", streamType)
}

// IsVideoLabel reports whether a stream label denotes a video stream.
func IsVideoLabel(label string) bool {
	return strings.Contains(label, "Video")
}
