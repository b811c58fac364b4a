package video

import (
	"bytes"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// NAL unit types that start a decodable sequence.
const (
	nalIDR = 5
	nalSPS = 7
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// assembler depacketizes RTP into Annex-B and keeps everything since the
// most recent SPS or IDR, so the buffer is always decodable on its own.
type assembler struct {
	depacketizer codecs.H264Packet
	buf          bytes.Buffer
	keyframe     bool
	limit        int
}

func newAssembler(limit int) *assembler {
	return &assembler{limit: limit}
}

// push adds one packet and reports whether it completed an access unit.
func (a *assembler) push(pkt *rtp.Packet) (bool, error) {
	nals, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		return false, err
	}
	if len(nals) > 0 {
		if startsSequence(nals) {
			a.buf.Reset()
			a.keyframe = true
		}
		if a.keyframe {
			a.buf.Write(nals)
		}
		if a.limit > 0 && a.buf.Len() > a.limit {
			a.buf.Reset()
			a.keyframe = false
		}
	}
	return pkt.Marker && a.keyframe, nil
}

// bytes returns the buffered stream. The slice is valid until the next push.
func (a *assembler) bytes() []byte {
	return a.buf.Bytes()
}

// startsSequence reports whether the Annex-B data holds an SPS or an IDR
// slice not preceded by other slices.
func startsSequence(annexB []byte) bool {
	for _, t := range nalTypes(annexB) {
		switch t {
		case nalSPS, nalIDR:
			return true
		case 1:
			return false
		}
	}
	return false
}

// nalTypes lists the NAL unit types in Annex-B data.
func nalTypes(annexB []byte) []byte {
	var types []byte
	for i := 0; i+3 < len(annexB); {
		n := 0
		switch {
		case bytes.HasPrefix(annexB[i:], startCode):
			n = 4
		case bytes.HasPrefix(annexB[i:], startCode[1:]):
			n = 3
		}
		if n == 0 {
			i++
			continue
		}
		i += n
		if i < len(annexB) {
			types = append(types, annexB[i]&0x1f)
		}
	}
	return types
}
