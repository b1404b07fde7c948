package demo

import (
	"math"

	"demolens/model"
)

// Game event value types from the event schema.
const (
	eventValueEnd    = 0
	eventValueString = 1
	eventValueFloat  = 2
	eventValueLong   = 3
	eventValueShort  = 4
	eventValueByte   = 5
	eventValueBool   = 6
)

type eventKey struct {
	name string
	typ  int
}

type eventDescriptor struct {
	id   int
	name string
	keys []eventKey
}

// eventSchema maps event ids to descriptors, filled from the
// svc_GameEventList message during signon.
type eventSchema map[int]*eventDescriptor

type eventValue struct {
	typ int
	str string
	num int
	f   float32
	b   bool
}

// gameEvent is one decoded event with values keyed by schema name.
type gameEvent struct {
	name   string
	tick   uint32
	values map[string]eventValue
}

func (e *gameEvent) intVal(key string) int {
	return e.values[key].num
}

func (e *gameEvent) strVal(key string) string {
	return e.values[key].str
}

// readGameEventList decodes the event schema. Events decoded before
// the schema arrives (which does not happen in well-formed demos) are
// skipped unparsed.
func (s *Stream) readGameEventList() {
	br := s.br

	numEvents := int(br.ReadInt(9))
	br.Skip(20) // payload length in bits, parsed inline instead

	for i := 0; i < numEvents; i++ {
		desc := &eventDescriptor{
			id:   int(br.ReadInt(9)),
			name: readString(br),
		}
		for {
			typ := int(br.ReadInt(3))
			if typ == eventValueEnd {
				break
			}
			desc.keys = append(desc.keys, eventKey{name: readString(br), typ: typ})
		}
		s.schema[desc.id] = desc
	}
}

// readGameEvent decodes one svc_GameEvent payload of n bits and
// dispatches any event the accumulator understands.
func (s *Stream) readGameEvent(n int, tick uint32) {
	br := s.br
	end := br.ActualPosition() + n

	id := int(br.ReadInt(9))
	desc, ok := s.schema[id]
	if !ok {
		br.Skip(end - br.ActualPosition())
		return
	}

	ev := &gameEvent{
		name:   desc.name,
		tick:   tick,
		values: make(map[string]eventValue, len(desc.keys)),
	}

	for _, key := range desc.keys {
		var v eventValue
		v.typ = key.typ
		switch key.typ {
		case eventValueString:
			v.str = readString(br)
		case eventValueFloat:
			v.f = math.Float32frombits(uint32(br.ReadInt(32)))
		case eventValueLong:
			v.num = int(int32(br.ReadInt(32)))
		case eventValueShort:
			v.num = int(br.ReadInt(16))
		case eventValueByte:
			v.num = int(br.ReadSingleByte())
		case eventValueBool:
			v.b = br.ReadBit()
		}
		ev.values[key.name] = v
	}

	// Declared length is authoritative; realign in case the schema and
	// payload disagree.
	if rem := end - br.ActualPosition(); rem > 0 {
		br.Skip(rem)
	}

	s.dispatchGameEvent(ev)
}

// Typed game events consumed by the GameState accumulator.

type playerConnect struct {
	Tick      uint32
	UserID    int
	Name      string
	NetworkID string
	Bot       bool
}

type playerDisconnect struct {
	Tick   uint32
	UserID int
	Reason string
}

type playerTeamChange struct {
	Tick   uint32
	UserID int
	Team   model.Team
}

type playerClassChange struct {
	Tick   uint32
	UserID int
	Class  model.Class
}

type playerSpawn struct {
	Tick   uint32
	UserID int
	Team   model.Team
	Class  model.Class
}

type playerKill struct {
	Tick       uint32
	VictimID   int
	AttackerID int
	AssisterID int
	Weapon     string
}

func (s *Stream) dispatchGameEvent(ev *gameEvent) {
	switch ev.name {
	case "player_connect_client":
		s.dispatcher.Dispatch(playerConnect{
			Tick:      ev.tick,
			UserID:    ev.intVal("userid"),
			Name:      ev.strVal("name"),
			NetworkID: ev.strVal("networkid"),
			Bot:       ev.values["bot"].b || ev.intVal("bot") != 0,
		})
	case "player_disconnect":
		s.dispatcher.Dispatch(playerDisconnect{
			Tick:   ev.tick,
			UserID: ev.intVal("userid"),
			Reason: ev.strVal("reason"),
		})
	case "player_team":
		s.dispatcher.Dispatch(playerTeamChange{
			Tick:   ev.tick,
			UserID: ev.intVal("userid"),
			Team:   clampTeam(ev.intVal("team")),
		})
	case "player_changeclass":
		s.dispatcher.Dispatch(playerClassChange{
			Tick:   ev.tick,
			UserID: ev.intVal("userid"),
			Class:  clampClass(ev.intVal("class")),
		})
	case "player_spawn":
		s.dispatcher.Dispatch(playerSpawn{
			Tick:   ev.tick,
			UserID: ev.intVal("userid"),
			Team:   clampTeam(ev.intVal("team")),
			Class:  clampClass(ev.intVal("class")),
		})
	case "player_death":
		s.dispatcher.Dispatch(playerKill{
			Tick:       ev.tick,
			VictimID:   ev.intVal("userid"),
			AttackerID: ev.intVal("attacker"),
			AssisterID: ev.intVal("assister"),
			Weapon:     ev.strVal("weapon"),
		})
	}
}

func clampClass(n int) model.Class {
	if n < 0 || n >= model.ClassCount {
		return model.ClassOther
	}
	return model.Class(n)
}

func clampTeam(n int) model.Team {
	if n < 0 || n >= model.TeamCount {
		return model.TeamUnassigned
	}
	return model.Team(n)
}
