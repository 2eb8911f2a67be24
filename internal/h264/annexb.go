// Package h264 parses Annex B byte streams just enough to spot IDR
// frames and keep the latest SPS/PPS around for sinks that join
// mid-stream.
package h264

import (
	"errors"

	"github.com/daggintosh/ALVR/pkg/types"
)

var errNoNALUnits = errors.New("h264: no NAL units in data")

// nextStartCode returns the index of the next 3- or 4-byte start code
// at or after offset, and the start code length. Returns -1, 0 when no
// start code remains.
func nextStartCode(data []byte, offset int) (int, int) {
	for i := offset; i+3 <= len(data); i++ {
		if data[i] != 0x00 || data[i+1] != 0x00 {
			continue
		}
		if data[i+2] == 0x01 {
			return i, 3
		}
		if i+4 <= len(data) && data[i+2] == 0x00 && data[i+3] == 0x01 {
			return i, 4
		}
	}
	return -1, 0
}

// WalkNALUnits calls fn for each NAL unit in an Annex B stream. The
// slice passed to fn includes the start code and aliases data; fn must
// copy if it retains the bytes. Walking stops early if fn returns
// false.
func WalkNALUnits(data []byte, fn func(nalType uint8, nalu []byte) bool) error {
	start, scLen := nextStartCode(data, 0)
	if start == -1 {
		return errNoNALUnits
	}

	for start != -1 {
		headerAt := start + scLen
		if headerAt >= len(data) {
			break
		}
		nalType := data[headerAt] & 0x1F

		end, nextLen := nextStartCode(data, headerAt+1)
		if end == -1 {
			end = len(data)
		}

		if !fn(nalType, data[start:end]) {
			return nil
		}

		start, scLen = end, nextLen
	}
	return nil
}

// IDRPresent reports whether the access unit contains an IDR slice.
func IDRPresent(data []byte) bool {
	found := false
	_ = WalkNALUnits(data, func(nalType uint8, _ []byte) bool {
		if nalType == types.NALTypeIDR {
			found = true
			return false
		}
		return true
	})
	return found
}
