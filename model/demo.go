package model

import (
	"encoding/hex"
)

// SteamID is a 64-bit Steam community id. Transient per-session user
// ids from the demo stream are resolved to SteamIDs before anything is
// recorded against a player.
type SteamID uint64

// CacheKey is the content fingerprint of a demo file: an MD5 digest of
// the file's creation time and its first 0x430 bytes (the header plus
// early signon data). It keys the on-disk cache of analysed demos.
type CacheKey [16]byte

// Hex returns the lowercase hex form used for cache file names.
func (k CacheKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// Header is the fixed-layout metadata block at the start of a demo
// file, as written by the recording client.
type Header struct {
	DemoProtocol    int32   `msgpack:"demo_protocol"`
	NetworkProtocol int32   `msgpack:"network_protocol"`
	Server          string  `msgpack:"server"`
	Nick            string  `msgpack:"nick"`
	Map             string  `msgpack:"map"`
	GameDir         string  `msgpack:"game_dir"`
	Duration        float32 `msgpack:"duration"`
	Ticks           int32   `msgpack:"ticks"`
	Frames          int32   `msgpack:"frames"`
	SignonLength    int32   `msgpack:"signon_length"`
}

// AnalysedDemo is the complete summary produced by a single analysis
// pass over a demo file. It is immutable once the pass finishes.
type AnalysedDemo struct {
	// User is the recording player, resolved by matching a connected
	// player's name against the header nick. Zero when no match.
	User SteamID `msgpack:"user"`

	Header          Header  `msgpack:"header"`
	ServerName      string  `msgpack:"server_name"`
	DemoVersion     uint16  `msgpack:"demo_version"`
	IntervalPerTick float32 `msgpack:"interval_per_tick"`

	Players map[SteamID]*DemoPlayer `msgpack:"players"`

	// Kills is chronological. Per-player kill/assist/death lists hold
	// indices into this slice rather than copies.
	Kills []Death `msgpack:"kills"`

	Events []TickEvent `msgpack:"events"`
}

// DemoPlayer aggregates one player's match: kill participation, class
// and team occupancy over time, and ping.
type DemoPlayer struct {
	Name string `msgpack:"name"`

	// Indices into AnalysedDemo.Kills.
	Kills   []int `msgpack:"kills"`
	Assists []int `msgpack:"assists"`
	Deaths  []int `msgpack:"deaths"`

	// MostPlayedClasses is ordered by accumulated time, descending.
	// Classes the player never touched are absent.
	MostPlayedClasses []Class     `msgpack:"most_played_classes"`
	HighestKillstreak *Killstreak `msgpack:"highest_killstreak"`

	// ClassDetails is indexed by Class ordinal, TimeOnTeam by Team
	// ordinal. Times are in seconds once the pass has finished.
	ClassDetails [ClassCount]ClassDetails `msgpack:"class_details"`
	TimeOnTeam   [TeamCount]uint32        `msgpack:"time_on_team"`

	// Run-length encoded timelines. A new run is appended only when
	// the class or team changes; otherwise the last run is extended.
	TicksOnClasses []ClassRun `msgpack:"ticks_on_classes"`
	TicksOnTeams   []TeamRun  `msgpack:"ticks_on_teams"`

	// Time is total observed seconds across all classes.
	Time        uint32 `msgpack:"time"`
	AveragePing uint64 `msgpack:"average_ping"`

	FirstTick uint32 `msgpack:"first_tick"`
	LastTick  uint32 `msgpack:"last_tick"`
}

// ClassDetails holds a player's totals for one class. All fields only
// grow during a pass.
type ClassDetails struct {
	// Time starts as a raw tick count and is rescaled to seconds when
	// the pass finishes.
	Time       uint32 `msgpack:"time"`
	NumKills   uint32 `msgpack:"num_kills"`
	NumAssists uint32 `msgpack:"num_assists"`
	NumDeaths  uint32 `msgpack:"num_deaths"`
}

// Killstreak is a player's best uninterrupted run of kills and the
// class they were playing when it peaked.
type Killstreak struct {
	Kills uint32 `msgpack:"kills"`
	Class Class  `msgpack:"class"`
}

// ClassRun is a maximal span of ticks spent on one class.
type ClassRun struct {
	Class    Class  `msgpack:"class"`
	Start    uint32 `msgpack:"start"`
	Duration uint32 `msgpack:"duration"`
}

// TeamRun is a maximal span of ticks spent on one team.
type TeamRun struct {
	Team     Team   `msgpack:"team"`
	Start    uint32 `msgpack:"start"`
	Duration uint32 `msgpack:"duration"`
}

// Death is one kill-feed entry. Attacker and Assister are nil when the
// corresponding participant could not be resolved to a connected
// player, such as world kills or a killer who already disconnected.
type Death struct {
	Tick     uint32   `msgpack:"tick"`
	Attacker *SteamID `msgpack:"attacker"`
	Assister *SteamID `msgpack:"assister"`
	Victim   SteamID  `msgpack:"victim"`
	Weapon   string   `msgpack:"weapon"`
}

// EventKind discriminates TickEvent entries.
type EventKind uint8

const (
	// EventDeath references AnalysedDemo.Kills by index.
	EventDeath EventKind = iota
	EventPlayerJoin
	EventPlayerLeave
)

// TickEvent is a sparse, chronological record of notable moments
// beyond the kill feed.
type TickEvent struct {
	Tick   uint32    `msgpack:"tick"`
	Kind   EventKind `msgpack:"kind"`
	Player SteamID   `msgpack:"player"`
	// Death is the Kills index for EventDeath entries, -1 otherwise.
	Death int `msgpack:"death"`
}

// NewAnalysedDemo returns an empty summary ready for a pass.
func NewAnalysedDemo(header Header) *AnalysedDemo {
	return &AnalysedDemo{
		Header:  header,
		Players: make(map[SteamID]*DemoPlayer),
	}
}

// Player returns the record for id, creating it on first sight.
func (d *AnalysedDemo) Player(id SteamID) *DemoPlayer {
	p, ok := d.Players[id]
	if !ok {
		p = &DemoPlayer{}
		d.Players[id] = p
	}
	return p
}
