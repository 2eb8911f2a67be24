package h264

import (
	"sync"

	"github.com/daggintosh/ALVR/pkg/types"
)

// ParameterSets caches the most recent SPS/PPS pair seen on the
// stream. Decoders joining mid-stream need both prepended to the next
// IDR frame to start decoding.
type ParameterSets struct {
	mu  sync.RWMutex
	sps []byte
	pps []byte
}

// Scan updates the cache from an access unit and reports whether the
// unit contains an IDR slice.
func (p *ParameterSets) Scan(data []byte) bool {
	isIDR := false
	var sps, pps []byte

	_ = WalkNALUnits(data, func(nalType uint8, nalu []byte) bool {
		switch nalType {
		case types.NALTypeSPS:
			sps = append([]byte(nil), nalu...)
		case types.NALTypePPS:
			pps = append([]byte(nil), nalu...)
		case types.NALTypeIDR:
			isIDR = true
		}
		return true
	})

	if sps != nil || pps != nil {
		p.mu.Lock()
		if sps != nil {
			p.sps = sps
		}
		if pps != nil {
			p.pps = pps
		}
		p.mu.Unlock()
	}
	return isIDR
}

// Complete reports whether both SPS and PPS have been observed.
func (p *ParameterSets) Complete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sps) > 0 && len(p.pps) > 0
}

// SPS returns a copy of the cached SPS NAL unit, or nil.
func (p *ParameterSets) SPS() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]byte(nil), p.sps...)
}

// PPS returns a copy of the cached PPS NAL unit, or nil.
func (p *ParameterSets) PPS() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]byte(nil), p.pps...)
}

// PrependTo returns data with the cached SPS/PPS prepended. When the
// cache is incomplete, data is returned unchanged.
func (p *ParameterSets) PrependTo(data []byte) []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.sps) == 0 || len(p.pps) == 0 {
		return data
	}

	out := make([]byte, 0, len(p.sps)+len(p.pps)+len(data))
	out = append(out, p.sps...)
	out = append(out, p.pps...)
	out = append(out, data...)
	return out
}
