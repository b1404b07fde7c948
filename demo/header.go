package demo

import (
	"encoding/binary"
	"math"

	bit "github.com/markus-wa/gobitread"
	"github.com/pkg/errors"

	"demolens/model"
)

// HeaderSize is the fixed size of the demo file header. It doubles as
// the prefix length hashed into a demo's cache key.
const HeaderSize = 0x430

const demoMagic = "HL2DEMO\x00"

// Supported container format. Anything else is a different protocol
// generation and is rejected up front.
const supportedDemoProtocol = 3

func parseHeader(br *bit.BitReader, fileSize int) (model.Header, error) {
	if fileSize < HeaderSize {
		return model.Header{}, errors.Wrap(ErrInvalidHeader, "file shorter than header")
	}

	raw := br.ReadBytes(HeaderSize)

	if string(raw[:8]) != demoMagic {
		return model.Header{}, errors.Wrap(ErrInvalidHeader, "bad magic")
	}

	hdr := model.Header{
		DemoProtocol:    int32(binary.LittleEndian.Uint32(raw[0x08:])),
		NetworkProtocol: int32(binary.LittleEndian.Uint32(raw[0x0C:])),
		Server:          cstring(raw[0x10:0x114]),
		Nick:            cstring(raw[0x114:0x218]),
		Map:             cstring(raw[0x218:0x31C]),
		GameDir:         cstring(raw[0x31C:0x420]),
		Duration:        math.Float32frombits(binary.LittleEndian.Uint32(raw[0x420:])),
		Ticks:           int32(binary.LittleEndian.Uint32(raw[0x424:])),
		Frames:          int32(binary.LittleEndian.Uint32(raw[0x428:])),
		SignonLength:    int32(binary.LittleEndian.Uint32(raw[0x42C:])),
	}

	if hdr.DemoProtocol != supportedDemoProtocol {
		return model.Header{}, errors.Wrapf(ErrInvalidHeader,
			"unsupported demo protocol %d", hdr.DemoProtocol)
	}

	return hdr, nil
}
