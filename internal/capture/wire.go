package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/daggintosh/ALVR/pkg/types"
)

// Wire framing between the compositor and the server. All integers are
// little-endian. Each frame record is a fixed header followed by the
// Annex B payload.
const (
	frameMagic   = 0x52564C41 // "ALVR"
	headerSize   = 4 + 8 + 8 + 4 + 4 + 4 + 4
	maxFrameSize = 8 << 20 // sanity bound on a single access unit

	// flags
	flagIDR = 1 << 0
)

// Control bytes sent back to the compositor.
const (
	ctrlForceIDR byte = 0x01
)

// ReadFrame reads one frame record from r.
func ReadFrame(r io.Reader) (*types.VideoFrame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != frameMagic {
		return nil, fmt.Errorf("bad frame magic 0x%08x", magic)
	}

	frameNum := binary.LittleEndian.Uint64(header[4:12])
	targetTimestamp := binary.LittleEndian.Uint64(header[12:20])
	width := binary.LittleEndian.Uint32(header[20:24])
	height := binary.LittleEndian.Uint32(header[24:28])
	flags := binary.LittleEndian.Uint32(header[28:32])
	payloadLen := binary.LittleEndian.Uint32(header[32:36])

	if payloadLen == 0 || payloadLen > maxFrameSize {
		return nil, fmt.Errorf("frame payload length %d out of range", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("short frame payload: %w", err)
	}

	return &types.VideoFrame{
		Data:            payload,
		ReceivedAt:      time.Now(),
		TargetTimestamp: targetTimestamp,
		FrameNum:        frameNum,
		IsIDR:           flags&flagIDR != 0,
		Width:           int(width),
		Height:          int(height),
	}, nil
}

// WriteFrame writes one frame record to w. Used by the loopback tools
// and by tests standing in for the compositor.
func WriteFrame(w io.Writer, f *types.VideoFrame) error {
	if len(f.Data) == 0 || len(f.Data) > maxFrameSize {
		return fmt.Errorf("frame payload length %d out of range", len(f.Data))
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], frameMagic)
	binary.LittleEndian.PutUint64(header[4:12], f.FrameNum)
	binary.LittleEndian.PutUint64(header[12:20], f.TargetTimestamp)
	binary.LittleEndian.PutUint32(header[20:24], uint32(f.Width))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.Height))
	var flags uint32
	if f.IsIDR {
		flags |= flagIDR
	}
	binary.LittleEndian.PutUint32(header[28:32], flags)
	binary.LittleEndian.PutUint32(header[32:36], uint32(len(f.Data)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Data)
	return err
}
