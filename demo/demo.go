// Package demo decodes TF2 demo files far enough to reconstruct the
// game state a match summary needs: the current tick, the connected
// player table, and the kill feed. It is driven packet by packet and
// never looks ahead, so a caller can report progress from the number
// of bytes consumed.
//
// Decoding is deliberately scoped. Header, packet framing and every
// net-message framing are decoded so the stream stays aligned, but
// only server info, tick updates and game events are interpreted;
// entity deltas are skipped wholesale.
package demo

import (
	"bytes"

	bit "github.com/markus-wa/gobitread"
	dp "github.com/markus-wa/godispatch"
	"github.com/pkg/errors"

	"demolens/model"
)

// Demo packet types, as written by the engine's demo recorder.
const (
	packetSignon       = 1
	packetMessage      = 2
	packetSyncTick     = 3
	packetConsoleCmd   = 4
	packetUserCmd      = 5
	packetDataTables   = 6
	packetStop         = 7
	packetStringTables = 8
)

// cmdInfoBytes is the size of the per-packet camera info blob that
// precedes signon and message payloads.
const cmdInfoBytes = 76

// Stream decodes one demo file packet by packet, folding everything it
// understands into a GameState accumulator.
type Stream struct {
	br         *bit.BitReader
	header     model.Header
	size       int
	state      *GameState
	dispatcher dp.Dispatcher
	schema     eventSchema
	done       bool
}

// NewStream parses the demo header and prepares a packet stream over
// the remaining bytes. The header is validated eagerly so malformed
// files fail before any analysis work starts.
func NewStream(b []byte) (*Stream, error) {
	br := new(bit.BitReader)
	br.OpenWithBuffer(bytes.NewReader(b), make([]byte, 1<<14))

	s := &Stream{
		br:     br,
		size:   len(b),
		state:  newGameState(),
		schema: make(eventSchema),
	}
	s.state.register(&s.dispatcher)

	hdr, err := parseHeader(br, len(b))
	if err != nil {
		return nil, err
	}
	s.header = hdr

	return s, nil
}

// Header returns the decoded file header.
func (s *Stream) Header() model.Header { return s.header }

// State exposes the game state accumulated so far.
func (s *Stream) State() *GameState { return s.state }

// BytesConsumed reports how far into the file decoding has progressed.
func (s *Stream) BytesConsumed() int { return s.br.ActualPosition() / 8 }

// TotalBytes is the full size of the demo file.
func (s *Stream) TotalBytes() int { return s.size }

// Accumulator pass-throughs, so a Stream satisfies the analyser's
// source interface directly.

func (s *Stream) Tick() uint32              { return s.state.Tick() }
func (s *Stream) Players() []*PlayerInfo    { return s.state.Players() }
func (s *Stream) Kills() []Kill             { return s.state.Kills() }
func (s *Stream) Connections() []Connection { return s.state.Connections() }
func (s *Stream) ServerName() string        { return s.state.ServerName() }
func (s *Stream) IntervalPerTick() float32  { return s.state.IntervalPerTick() }
func (s *Stream) DemoVersion() uint16       { return s.state.DemoVersion() }

// Next decodes a single demo packet and applies it to the game state.
// It returns false once the stop packet or the end of the file is
// reached. Any framing or message decode failure is fatal to the
// stream.
func (s *Stream) Next() (more bool, err error) {
	if s.done {
		return false, nil
	}

	// The bit reader panics on unexpected EOF, which for a truncated
	// demo is a decode error rather than a crash.
	defer func() {
		if r := recover(); r != nil {
			s.done = true
			err = errors.Errorf("unexpected end of demo stream: %v", r)
		}
	}()

	if s.BytesConsumed() >= s.size {
		s.done = true
		return false, nil
	}

	typ := int(s.br.ReadSingleByte())
	if typ == packetStop {
		s.done = true
		return false, nil
	}

	tick := uint32(int32(s.br.ReadSignedInt(32)))

	switch typ {
	case packetSignon, packetMessage:
		s.br.Skip(cmdInfoBytes * 8)
		s.br.Skip(64) // in/out sequence numbers
		size := int(s.br.ReadSignedInt(32))
		if err := s.readNetMessages(size, tick); err != nil {
			s.done = true
			return false, err
		}
	case packetSyncTick:
		// No payload.
	case packetConsoleCmd, packetDataTables, packetStringTables:
		size := int(s.br.ReadSignedInt(32))
		s.br.Skip(size * 8)
	case packetUserCmd:
		s.br.Skip(32) // outgoing sequence number
		size := int(s.br.ReadSignedInt(32))
		s.br.Skip(size * 8)
	default:
		s.done = true
		return false, errors.Errorf("unknown demo packet type %d at tick %d", typ, tick)
	}

	return true, nil
}

// ErrInvalidHeader reports a file that is not a TF2 demo.
var ErrInvalidHeader = errors.New("invalid demo header")

// readString reads a null-terminated string.
func readString(br *bit.BitReader) string {
	var sb bytes.Buffer
	for {
		b := br.ReadSingleByte()
		if b == 0 {
			return sb.String()
		}
		sb.WriteByte(b)
	}
}

// cstring trims a fixed-size char array at its first null byte.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// bitCountForRange returns how many bits index values below max need.
func bitCountForRange(max int) int {
	n := 1
	for 1<<uint(n) < max {
		n++
	}
	return n
}
