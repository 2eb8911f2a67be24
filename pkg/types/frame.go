package types

import "time"

// VideoFrame is one encoded access unit moving through the pipeline.
type VideoFrame struct {
	Data            []byte    // Annex B framed NAL units
	ReceivedAt      time.Time // When the frame entered the server
	TargetTimestamp uint64    // Compositor target timestamp in nanoseconds
	FrameNum        uint64    // Sequential frame number
	IsIDR           bool      // True if the frame contains an IDR slice
	Width           int
	Height          int
}

// NALUnit is a single H.264 NAL unit including its start code.
type NALUnit struct {
	Type uint8 // Lower 5 bits of the NAL header
	Data []byte
}

// H.264 NAL unit types.
const (
	NALTypeSlice     uint8 = 1
	NALTypeIDR       uint8 = 5
	NALTypeSEI       uint8 = 6
	NALTypeSPS       uint8 = 7
	NALTypePPS       uint8 = 8
	NALTypeAUD       uint8 = 9
	NALTypeEndSeq    uint8 = 10
	NALTypeEndStream uint8 = 11
	NALTypeFiller    uint8 = 12
)

// Codec identifies the negotiated video codec.
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	default:
		return "unknown"
	}
}
