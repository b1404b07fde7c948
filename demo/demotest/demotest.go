// Package demotest builds small, well-formed demo files in memory.
// Tests use it to exercise the decoder and everything downstream of
// it without shipping multi-megabyte recordings.
package demotest

import (
	"bytes"
	"encoding/binary"
	"math"

	"demolens/model"
)

// Packet and net-message ids mirrored from the decoder.
const (
	packetSignon  = 1
	packetMessage = 2
	packetStop    = 7

	netTick          = 3
	svcServerInfo    = 8
	svcGameEvent     = 25
	svcGameEventList = 30
)

// Game event value types.
const (
	valEnd    = 0
	valString = 1
	valFloat  = 2
	valLong   = 3
	valShort  = 4
	valByte   = 5
	valBool   = 6
)

const headerSize = 0x430

type eventKey struct {
	name string
	typ  int
}

type eventDesc struct {
	id   int
	name string
	keys []eventKey
}

// The fixed event schema every built demo announces during signon. It
// covers exactly the events the accumulator interprets.
var schema = []eventDesc{
	{id: 1, name: "player_connect_client", keys: []eventKey{
		{"name", valString}, {"index", valByte}, {"userid", valShort},
		{"networkid", valString}, {"bot", valBool},
	}},
	{id: 2, name: "player_disconnect", keys: []eventKey{
		{"userid", valShort}, {"reason", valString}, {"name", valString},
		{"networkid", valString}, {"bot", valBool},
	}},
	{id: 3, name: "player_team", keys: []eventKey{
		{"userid", valShort}, {"team", valByte},
	}},
	{id: 4, name: "player_changeclass", keys: []eventKey{
		{"userid", valShort}, {"class", valShort},
	}},
	{id: 5, name: "player_spawn", keys: []eventKey{
		{"userid", valShort}, {"team", valShort}, {"class", valShort},
	}},
	{id: 6, name: "player_death", keys: []eventKey{
		{"userid", valShort}, {"attacker", valShort}, {"assister", valShort},
		{"weapon", valString},
	}},
}

func descriptorFor(name string) eventDesc {
	for _, d := range schema {
		if d.name == name {
			return d
		}
	}
	panic("demotest: unknown event " + name)
}

// bitWriter emits a least-significant-bit-first stream, the mirror
// image of the decoder's read order.
type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) writeBits(v uint64, n int) {
	for i := 0; i < n; i++ {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v&(1<<uint(i)) != 0 {
			w.buf[w.nbits/8] |= 1 << uint(w.nbits%8)
		}
		w.nbits++
	}
}

func (w *bitWriter) writeBit(b bool) {
	if b {
		w.writeBits(1, 1)
	} else {
		w.writeBits(0, 1)
	}
}

func (w *bitWriter) writeByte(b byte) { w.writeBits(uint64(b), 8) }

func (w *bitWriter) writeString(s string) {
	for i := 0; i < len(s); i++ {
		w.writeByte(s[i])
	}
	w.writeByte(0)
}

// appendFrom copies every bit of o, unpadded.
func (w *bitWriter) appendFrom(o *bitWriter) {
	for i := 0; i < o.nbits; i++ {
		w.writeBits(uint64(o.buf[i/8]>>uint(i%8))&1, 1)
	}
}

// bytes returns the stream padded with zero bits to a byte boundary.
func (w *bitWriter) bytes() []byte { return w.buf }

// Builder scripts a demo: connect players, advance ticks, emit kills,
// then render the whole thing as file bytes.
type Builder struct {
	// Header fields, applied when Bytes assembles the file.
	Nick     string
	Server   string
	MapName  string
	GameDir  string
	Duration float32
	Ticks    int32

	// Signon server info.
	Hostname        string
	IntervalPerTick float32
	DemoVersion     uint16

	tick uint32
	body bytes.Buffer
}

// NewBuilder returns a builder with plausible defaults.
func NewBuilder() *Builder {
	return &Builder{
		Nick:            "recorder",
		Server:          "127.0.0.1:27015",
		MapName:         "pl_badwater",
		GameDir:         "tf",
		Duration:        30,
		Ticks:           2000,
		Hostname:        "Test Server",
		IntervalPerTick: 0.015,
		DemoVersion:     24,
	}
}

// Tick advances the server tick with a net_tick message.
func (b *Builder) Tick(t uint32) {
	b.tick = t
	w := &bitWriter{}
	w.writeBits(netTick, 6)
	w.writeBits(uint64(t), 32)
	w.writeBits(0, 32) // host frametime + stddev
	b.emitPacket(packetMessage, w)
}

// Connect announces a human player with the given network id.
func (b *Builder) Connect(userid int, name, networkID string) {
	b.emitEvent("player_connect_client", map[string]any{
		"name": name, "index": 0, "userid": userid,
		"networkid": networkID, "bot": false,
	})
}

// ConnectBot announces a bot, which never resolves to a Steam id.
func (b *Builder) ConnectBot(userid int, name string) {
	b.emitEvent("player_connect_client", map[string]any{
		"name": name, "index": 0, "userid": userid,
		"networkid": "BOT", "bot": true,
	})
}

func (b *Builder) Disconnect(userid int, reason string) {
	b.emitEvent("player_disconnect", map[string]any{
		"userid": userid, "reason": reason, "name": "", "networkid": "", "bot": false,
	})
}

func (b *Builder) Team(userid int, team model.Team) {
	b.emitEvent("player_team", map[string]any{
		"userid": userid, "team": int(team),
	})
}

func (b *Builder) Class(userid int, class model.Class) {
	b.emitEvent("player_changeclass", map[string]any{
		"userid": userid, "class": int(class),
	})
}

func (b *Builder) Spawn(userid int, team model.Team, class model.Class) {
	b.emitEvent("player_spawn", map[string]any{
		"userid": userid, "team": int(team), "class": int(class),
	})
}

// Kill emits a player_death. An id that was never connected leaves the
// corresponding participant unresolved.
func (b *Builder) Kill(victim, attacker, assister int, weapon string) {
	b.emitEvent("player_death", map[string]any{
		"userid": victim, "attacker": attacker, "assister": assister,
		"weapon": weapon,
	})
}

// Bytes assembles the complete file: header, a signon packet carrying
// server info and the event schema, the scripted packets, and the stop
// marker.
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	out.Write(b.headerBytes())

	signon := &bitWriter{}
	b.writeServerInfo(signon)
	b.writeEventList(signon)
	writePacket(&out, packetSignon, 0, signon)

	out.Write(b.body.Bytes())
	out.WriteByte(packetStop)
	return out.Bytes()
}

func (b *Builder) headerBytes() []byte {
	raw := make([]byte, headerSize)
	copy(raw, "HL2DEMO\x00")
	binary.LittleEndian.PutUint32(raw[0x08:], 3)  // demo protocol
	binary.LittleEndian.PutUint32(raw[0x0C:], 24) // network protocol
	copy(raw[0x10:], b.Server)
	copy(raw[0x114:], b.Nick)
	copy(raw[0x218:], b.MapName)
	copy(raw[0x31C:], b.GameDir)
	binary.LittleEndian.PutUint32(raw[0x420:], math.Float32bits(b.Duration))
	binary.LittleEndian.PutUint32(raw[0x424:], uint32(b.Ticks))
	binary.LittleEndian.PutUint32(raw[0x428:], uint32(b.Ticks))
	binary.LittleEndian.PutUint32(raw[0x42C:], 0)
	return raw
}

func (b *Builder) writeServerInfo(w *bitWriter) {
	w.writeBits(svcServerInfo, 6)
	w.writeBits(uint64(b.DemoVersion), 16)
	w.writeBits(0, 32) // server count
	w.writeBit(false)  // stv
	w.writeBit(true)   // dedicated
	w.writeBits(0, 32) // client crc
	w.writeBits(0, 16) // max classes
	w.writeBits(0, 64) // map md5, low half
	w.writeBits(0, 64) // map md5, high half
	w.writeBits(0, 8)  // player slot
	w.writeBits(24, 8) // max clients
	w.writeBits(uint64(math.Float32bits(b.IntervalPerTick)), 32)
	w.writeBits('l', 8) // host os
	w.writeString(b.GameDir)
	w.writeString(b.MapName)
	w.writeString("sky_day01_01")
	w.writeString(b.Hostname)
}

func (b *Builder) writeEventList(w *bitWriter) {
	descs := &bitWriter{}
	for _, d := range schema {
		descs.writeBits(uint64(d.id), 9)
		descs.writeString(d.name)
		for _, k := range d.keys {
			descs.writeBits(uint64(k.typ), 3)
			descs.writeString(k.name)
		}
		descs.writeBits(valEnd, 3)
	}

	w.writeBits(svcGameEventList, 6)
	w.writeBits(uint64(len(schema)), 9)
	w.writeBits(uint64(descs.nbits), 20)
	w.appendFrom(descs)
}

func (b *Builder) emitEvent(name string, vals map[string]any) {
	desc := descriptorFor(name)

	payload := &bitWriter{}
	payload.writeBits(uint64(desc.id), 9)
	for _, k := range desc.keys {
		v := vals[k.name]
		switch k.typ {
		case valString:
			payload.writeString(v.(string))
		case valFloat:
			payload.writeBits(uint64(math.Float32bits(v.(float32))), 32)
		case valLong:
			payload.writeBits(uint64(uint32(v.(int))), 32)
		case valShort:
			payload.writeBits(uint64(uint16(v.(int))), 16)
		case valByte:
			payload.writeBits(uint64(byte(v.(int))), 8)
		case valBool:
			payload.writeBit(v.(bool))
		}
	}

	w := &bitWriter{}
	w.writeBits(svcGameEvent, 6)
	w.writeBits(uint64(payload.nbits), 11)
	w.appendFrom(payload)
	b.emitPacket(packetMessage, w)
}

func (b *Builder) emitPacket(typ byte, payload *bitWriter) {
	writePacket(&b.body, typ, b.tick, payload)
}

func writePacket(out *bytes.Buffer, typ byte, tick uint32, payload *bitWriter) {
	data := payload.bytes()

	out.WriteByte(typ)
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], tick)
	out.Write(scratch[:])
	out.Write(make([]byte, 76)) // cmdinfo
	out.Write(make([]byte, 8))  // in/out sequence numbers
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(data)))
	out.Write(scratch[:])
	out.Write(data)
}
