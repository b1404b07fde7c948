package demo

import (
	"github.com/leighmacdonald/steamid/v4/steamid"
	dp "github.com/markus-wa/godispatch"

	"demolens/model"
)

// PlayerInfo is the accumulator's view of one connected player.
type PlayerInfo struct {
	// UserID is the transient per-session id game events refer to.
	UserID    int
	NetworkID string
	// SteamID is zero for bots and players whose network id did not
	// resolve.
	SteamID model.SteamID
	Name    string
	Class   model.Class
	Team    model.Team
	// Ping is not carried by game events; it stays zero unless a
	// richer accumulator supplies it.
	Ping uint32
}

// Kill is one kill-feed entry, still keyed by transient user ids.
type Kill struct {
	Tick       uint32
	VictimID   int
	AttackerID int
	AssisterID int
	Weapon     string
}

// Connection is a join or leave observed on the stream, resolved to a
// stable identity as early as possible so players who never reach a
// tick snapshot are still named.
type Connection struct {
	Tick    uint32
	SteamID model.SteamID
	Name    string
	Join    bool
}

// GameState accumulates the decoded stream into the narrow surface
// analysis needs: current tick, connected players, the kill feed and
// the join/leave log.
type GameState struct {
	tick            uint32
	serverName      string
	mapName         string
	version         uint16
	intervalPerTick float32

	players     map[int]*PlayerInfo
	kills       []Kill
	connections []Connection
}

func newGameState() *GameState {
	return &GameState{
		players: make(map[int]*PlayerInfo),
	}
}

// register wires the state's handlers into the stream's dispatcher.
func (g *GameState) register(d *dp.Dispatcher) {
	d.RegisterHandler(g.handleTick)
	d.RegisterHandler(g.handleServerInfo)
	d.RegisterHandler(g.handleConnect)
	d.RegisterHandler(g.handleDisconnect)
	d.RegisterHandler(g.handleTeamChange)
	d.RegisterHandler(g.handleClassChange)
	d.RegisterHandler(g.handleSpawn)
	d.RegisterHandler(g.handleKill)
}

// Tick is the current server tick.
func (g *GameState) Tick() uint32 { return g.tick }

// ServerName is the hostname from the signon server info, empty until
// that message has been decoded.
func (g *GameState) ServerName() string { return g.serverName }

// MapName is the map from the signon server info.
func (g *GameState) MapName() string { return g.mapName }

// DemoVersion is the network protocol version the server reported.
func (g *GameState) DemoVersion() uint16 { return g.version }

// IntervalPerTick is the simulation interval in seconds per tick.
func (g *GameState) IntervalPerTick() float32 { return g.intervalPerTick }

// Players lists currently connected players. Order is unspecified.
func (g *GameState) Players() []*PlayerInfo {
	out := make([]*PlayerInfo, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p)
	}
	return out
}

// Kills is the append-only kill feed.
func (g *GameState) Kills() []Kill { return g.kills }

// Connections is the append-only join/leave log.
func (g *GameState) Connections() []Connection { return g.connections }

func (g *GameState) handleTick(t tickUpdate) {
	g.tick = t.Tick
}

func (g *GameState) handleServerInfo(si serverInfo) {
	g.serverName = si.ServerName
	g.mapName = si.Map
	g.version = si.Version
	g.intervalPerTick = si.IntervalPerTick
}

func (g *GameState) handleConnect(ev playerConnect) {
	info := &PlayerInfo{
		UserID:    ev.UserID,
		NetworkID: ev.NetworkID,
		Name:      ev.Name,
	}
	if !ev.Bot {
		info.SteamID = parseNetworkID(ev.NetworkID)
	}
	g.players[ev.UserID] = info

	if info.SteamID != 0 {
		g.connections = append(g.connections, Connection{
			Tick:    ev.Tick,
			SteamID: info.SteamID,
			Name:    ev.Name,
			Join:    true,
		})
	}
}

func (g *GameState) handleDisconnect(ev playerDisconnect) {
	info, ok := g.players[ev.UserID]
	if !ok {
		return
	}
	delete(g.players, ev.UserID)

	if info.SteamID != 0 {
		g.connections = append(g.connections, Connection{
			Tick:    ev.Tick,
			SteamID: info.SteamID,
			Name:    info.Name,
		})
	}
}

func (g *GameState) handleTeamChange(ev playerTeamChange) {
	if p, ok := g.players[ev.UserID]; ok {
		p.Team = ev.Team
	}
}

func (g *GameState) handleClassChange(ev playerClassChange) {
	if p, ok := g.players[ev.UserID]; ok {
		p.Class = ev.Class
	}
}

func (g *GameState) handleSpawn(ev playerSpawn) {
	if p, ok := g.players[ev.UserID]; ok {
		p.Team = ev.Team
		p.Class = ev.Class
	}
}

func (g *GameState) handleKill(ev playerKill) {
	g.kills = append(g.kills, Kill{
		Tick:       ev.Tick,
		VictimID:   ev.VictimID,
		AttackerID: ev.AttackerID,
		AssisterID: ev.AssisterID,
		Weapon:     ev.Weapon,
	})
}

// parseNetworkID resolves an engine network id ("STEAM_0:1:12345" or
// "[U:1:24691]") to a 64-bit Steam id. Returns zero for bots and
// malformed ids.
func parseNetworkID(networkID string) model.SteamID {
	if networkID == "" || networkID == "BOT" {
		return 0
	}
	sid := steamid.New(networkID)
	if !sid.Valid() {
		return 0
	}
	return model.SteamID(sid.Int64())
}
