package demo

import (
	"math"

	bit "github.com/markus-wa/gobitread"
	"github.com/pkg/errors"
)

// Net message type ids for network protocol 24.
const (
	netNop             = 0
	netDisconnect      = 1
	netFile            = 2
	netTick            = 3
	netStringCmd       = 4
	netSetConVar       = 5
	netSignonState     = 6
	svcPrint           = 7
	svcServerInfo      = 8
	svcSendTable       = 9
	svcClassInfo       = 10
	svcSetPause        = 11
	svcCreateStringTbl = 12
	svcUpdateStringTbl = 13
	svcVoiceInit       = 14
	svcVoiceData       = 15
	svcSounds          = 17
	svcSetView         = 18
	svcFixAngle        = 19
	svcCrosshairAngle  = 20
	svcBSPDecal        = 21
	svcUserMessage     = 23
	svcEntityMessage   = 24
	svcGameEvent       = 25
	svcPacketEntities  = 26
	svcTempEntities    = 27
	svcPrefetch        = 28
	svcMenu            = 29
	svcGameEventList   = 30
	svcGetCvarValue    = 31
	svcCmdKeyValues    = 33
)

const netMessageTypeBits = 6

// tickUpdate advances the accumulator's server tick.
type tickUpdate struct {
	Tick uint32
}

// serverInfo carries the signon metadata the summary records.
type serverInfo struct {
	Version         uint16
	ServerName      string
	Map             string
	IntervalPerTick float32
}

// readNetMessages splits a signon or message packet payload into net
// messages. Messages the analysis cares about are decoded and
// dispatched; everything else is skipped by its own framing so the
// stream stays bit-aligned.
func (s *Stream) readNetMessages(size int, packetTick uint32) error {
	br := s.br
	end := br.ActualPosition() + size*8

	for br.ActualPosition()+netMessageTypeBits <= end {
		typ := int(br.ReadInt(6))

		switch typ {
		case netNop:

		case netDisconnect:
			readString(br)

		case netFile:
			br.Skip(32)
			readString(br)
			br.ReadBit()

		case netTick:
			tick := uint32(br.ReadInt(32))
			br.Skip(32) // host frametime + stddev
			s.dispatcher.Dispatch(tickUpdate{Tick: tick})

		case netStringCmd, svcPrint:
			readString(br)

		case netSetConVar:
			n := int(br.ReadSingleByte())
			for i := 0; i < n; i++ {
				readString(br)
				readString(br)
			}

		case netSignonState:
			br.Skip(8 + 32)

		case svcServerInfo:
			s.readServerInfo()

		case svcSendTable:
			br.ReadBit() // needs decoder
			n := int(br.ReadInt(16))
			br.Skip(n)

		case svcClassInfo:
			count := int(br.ReadInt(16))
			createOnClient := br.ReadBit()
			if !createOnClient {
				idBits := bitCountForRange(count) + 1
				for i := 0; i < count; i++ {
					br.Skip(idBits)
					readString(br)
					readString(br)
				}
			}

		case svcSetPause:
			br.ReadBit()

		case svcCreateStringTbl:
			readString(br) // table name
			maxEntries := int(br.ReadInt(16))
			br.Skip(bitCountForRange(maxEntries) + 1) // entry count
			n := int(br.ReadInt(20))
			if br.ReadBit() { // fixed-size user data
				br.Skip(12 + 4)
			}
			br.ReadBit() // compressed
			br.Skip(n)

		case svcUpdateStringTbl:
			br.Skip(5) // table id
			if br.ReadBit() {
				br.Skip(16) // changed entry count
			}
			n := int(br.ReadInt(20))
			br.Skip(n)

		case svcVoiceInit:
			readString(br)
			quality := br.ReadSingleByte()
			if quality == 255 {
				br.Skip(16)
			}

		case svcVoiceData:
			br.Skip(8 + 8)
			n := int(br.ReadInt(16))
			br.Skip(n)

		case svcSounds:
			reliable := br.ReadBit()
			var n int
			if reliable {
				n = int(br.ReadSingleByte())
			} else {
				br.Skip(8) // sound count
				n = int(br.ReadInt(16))
			}
			br.Skip(n)

		case svcSetView:
			br.Skip(11)

		case svcFixAngle:
			br.ReadBit()
			br.Skip(48)

		case svcCrosshairAngle:
			br.Skip(48)

		case svcBSPDecal:
			readBitVec3Coord(br)
			br.Skip(9) // texture index
			if br.ReadBit() {
				br.Skip(11 + 12) // entity + model index
			}
			br.ReadBit() // low priority

		case svcUserMessage:
			br.Skip(8) // message type
			n := int(br.ReadInt(11))
			br.Skip(n)

		case svcEntityMessage:
			br.Skip(11 + 9)
			n := int(br.ReadInt(11))
			br.Skip(n)

		case svcGameEvent:
			n := int(br.ReadInt(11))
			s.readGameEvent(n, packetTick)

		case svcPacketEntities:
			br.Skip(11) // max entries
			if br.ReadBit() {
				br.Skip(32) // delta-from tick
			}
			br.ReadBit() // baseline
			br.Skip(11)  // updated entries
			n := int(br.ReadInt(20))
			br.ReadBit() // update baseline
			br.Skip(n)

		case svcTempEntities:
			br.Skip(8) // entry count
			n := int(br.ReadInt(17))
			br.Skip(n)

		case svcPrefetch:
			br.Skip(13)

		case svcMenu:
			br.Skip(16)
			n := int(br.ReadInt(16))
			br.Skip(n * 8)

		case svcGameEventList:
			s.readGameEventList()

		case svcGetCvarValue:
			br.Skip(32)
			readString(br)

		case svcCmdKeyValues:
			n := int(br.ReadInt(32))
			br.Skip(n * 8)

		default:
			return errors.Errorf("unknown net message type %d", typ)
		}
	}

	// Trailing padding bits.
	if rem := end - br.ActualPosition(); rem > 0 {
		br.Skip(rem)
	}

	return nil
}

func (s *Stream) readServerInfo() {
	br := s.br

	version := uint16(br.ReadInt(16))
	br.Skip(32)  // server count
	br.ReadBit() // stv
	br.ReadBit() // dedicated
	br.Skip(32)  // client crc
	br.Skip(16)  // max classes
	br.Skip(128) // map md5
	br.Skip(8)   // player slot
	br.Skip(8)   // max clients
	interval := math.Float32frombits(uint32(br.ReadInt(32)))
	br.Skip(8)                // host os
	readString(br)            // game dir
	mapName := readString(br) // map
	readString(br)            // sky
	hostname := readString(br)

	s.dispatcher.Dispatch(serverInfo{
		Version:         version,
		ServerName:      hostname,
		Map:             mapName,
		IntervalPerTick: interval,
	})
}

// readBitCoord skips the engine's variable-width fixed-point coordinate.
func readBitCoord(br *bit.BitReader) {
	hasInt := br.ReadBit()
	hasFrac := br.ReadBit()
	if !hasInt && !hasFrac {
		return
	}
	br.ReadBit() // sign
	if hasInt {
		br.Skip(14)
	}
	if hasFrac {
		br.Skip(5)
	}
}

func readBitVec3Coord(br *bit.BitReader) {
	hasX := br.ReadBit()
	hasY := br.ReadBit()
	hasZ := br.ReadBit()
	if hasX {
		readBitCoord(br)
	}
	if hasY {
		readBitCoord(br)
	}
	if hasZ {
		readBitCoord(br)
	}
}
