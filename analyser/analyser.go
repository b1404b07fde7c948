// Package analyser turns a recorded demo into an AnalysedDemo summary
// in a single pass over the packet stream. The walker drives a decoded
// game-state source tick by tick, crediting class/team time to every
// connected player and correlating kill events to stable identities,
// then finalises derived fields once the stream ends.
package analyser

import (
	"fmt"
	"log/slog"
	"sort"

	"demolens/demo"
	"demolens/model"
)

// progressInterval is how many consumed bytes separate two progress
// updates, so reporting never becomes a bottleneck on large demos.
const progressInterval = 1 << 20

// Source is the narrow read surface the walker consumes: packet
// advancement plus the accumulator projections. demo.Stream satisfies
// it; tests drive the walker with synthetic sources.
type Source interface {
	// Next applies one packet. False means the stream has ended.
	Next() (bool, error)
	BytesConsumed() int
	TotalBytes() int

	Tick() uint32
	Players() []*demo.PlayerInfo
	Kills() []demo.Kill
	Connections() []demo.Connection
	ServerName() string
	IntervalPerTick() float32
	DemoVersion() uint16
}

// Analyse decodes and summarises a complete demo file. A nil progress
// updater disables reporting. Decode failures abort the analysis;
// unattributable kills are dropped and logged instead.
func Analyse(b []byte, progress *ProgressUpdater) (*model.AnalysedDemo, error) {
	stream, err := demo.NewStream(b)
	if err != nil {
		return nil, fmt.Errorf("parse demo: %w", err)
	}
	return AnalyseSource(stream.Header(), stream, progress)
}

// AnalyseSource runs the walk over an already-opened source.
func AnalyseSource(header model.Header, src Source, progress *ProgressUpdater) (*model.AnalysedDemo, error) {
	out := model.NewAnalysedDemo(header)

	var (
		lastTick        uint32
		numTicksChecked uint64
		lastKills       int
		lastConnections int
		lastProgressAt  int
	)
	streaks := newKillstreakTracker()

	for {
		more, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("decode demo packet: %w", err)
		}
		if !more {
			break
		}

		// Out-of-band signals first: the server name and the
		// join/leave log are captured as soon as they appear, so a
		// player who disconnects before their first tick snapshot is
		// still named.
		if out.ServerName == "" {
			out.ServerName = src.ServerName()
		}
		lastConnections = drainConnections(out, src.Connections(), lastConnections)

		tick := src.Tick()
		if tick == lastTick {
			continue
		}

		// No time is credited before the first observed tick; the walk
		// starts counting from there.
		var tickDelta uint32
		if lastTick != 0 && tick > lastTick {
			tickDelta = tick - lastTick
		}
		lastTick = tick
		numTicksChecked++

		if consumed := src.BytesConsumed(); consumed-lastProgressAt >= progressInterval {
			lastProgressAt = consumed
			progress.Update(Progress{
				State:    InProgress,
				Fraction: float64(consumed) / float64(src.TotalBytes()),
			})
		}

		players := src.Players()
		creditTime(out, players, tick, tickDelta)
		lastKills = correlateKills(out, players, src.Kills(), lastKills, streaks)
	}

	finalise(out, src, numTicksChecked)
	progress.Update(Progress{State: Finished, Fraction: 1})

	return out, nil
}

// drainConnections folds newly observed joins and leaves into the
// summary, seeding player names early.
func drainConnections(out *model.AnalysedDemo, conns []demo.Connection, from int) int {
	for _, c := range conns[from:] {
		rec := out.Player(c.SteamID)
		if rec.Name == "" {
			rec.Name = c.Name
		}

		kind := model.EventPlayerLeave
		if c.Join {
			kind = model.EventPlayerJoin
		}
		out.Events = append(out.Events, model.TickEvent{
			Tick:   c.Tick,
			Kind:   kind,
			Player: c.SteamID,
			Death:  -1,
		})
	}
	return len(conns)
}

// creditTime advances every connected, resolvable player by the tick
// delta: class and team counters, total time, ping, the run-length
// timelines and the first/last tick markers.
func creditTime(out *model.AnalysedDemo, players []*demo.PlayerInfo, tick, tickDelta uint32) {
	for _, p := range players {
		if p.SteamID == 0 {
			continue
		}

		rec := out.Player(p.SteamID)
		if rec.Name == "" {
			rec.Name = p.Name
		}

		rec.ClassDetails[p.Class].Time += tickDelta
		rec.TimeOnTeam[p.Team] += tickDelta
		rec.Time += tickDelta
		rec.AveragePing += uint64(p.Ping)

		if rec.FirstTick == 0 {
			rec.FirstTick = tick
		}
		rec.LastTick = tick

		extendClassRun(rec, p.Class, tick, tickDelta)
		extendTeamRun(rec, p.Team, tick, tickDelta)
	}
}

// extendClassRun appends a run only when the class changed; otherwise
// the latest run absorbs the delta.  A new run starts where the last
// observation left off, keeping the timeline contiguous in tick space.
func extendClassRun(rec *model.DemoPlayer, class model.Class, tick, tickDelta uint32) {
	n := len(rec.TicksOnClasses)
	if n > 0 && rec.TicksOnClasses[n-1].Class == class {
		rec.TicksOnClasses[n-1].Duration += tickDelta
		return
	}
	rec.TicksOnClasses = append(rec.TicksOnClasses, model.ClassRun{
		Class:    class,
		Start:    tick - tickDelta,
		Duration: tickDelta,
	})
}

func extendTeamRun(rec *model.DemoPlayer, team model.Team, tick, tickDelta uint32) {
	n := len(rec.TicksOnTeams)
	if n > 0 && rec.TicksOnTeams[n-1].Team == team {
		rec.TicksOnTeams[n-1].Duration += tickDelta
		return
	}
	rec.TicksOnTeams = append(rec.TicksOnTeams, model.TeamRun{
		Team:     team,
		Start:    tick - tickDelta,
		Duration: tickDelta,
	})
}

// correlateKills resolves the transient ids on newly visible kill
// events and updates the three participants. A kill whose victim
// cannot be resolved is dropped; an unresolved attacker or assister is
// recorded as nil instead.
func correlateKills(out *model.AnalysedDemo, players []*demo.PlayerInfo, kills []demo.Kill, from int, streaks *killstreakTracker) int {
	byUserID := make(map[int]*demo.PlayerInfo, len(players))
	for _, p := range players {
		if p.SteamID != 0 {
			byUserID[p.UserID] = p
		}
	}

	for _, k := range kills[from:] {
		victim, ok := byUserID[k.VictimID]
		if !ok {
			slog.Debug("dropping kill with unresolvable victim",
				"tick", k.Tick, "victim_id", k.VictimID, "weapon", k.Weapon)
			continue
		}

		attacker := byUserID[k.AttackerID]
		assister := byUserID[k.AssisterID]

		death := model.Death{
			Tick:   k.Tick,
			Victim: victim.SteamID,
			Weapon: k.Weapon,
		}
		if attacker != nil {
			id := attacker.SteamID
			death.Attacker = &id
		}
		if assister != nil {
			id := assister.SteamID
			death.Assister = &id
		}

		idx := len(out.Kills)
		out.Kills = append(out.Kills, death)
		out.Events = append(out.Events, model.TickEvent{
			Tick:   k.Tick,
			Kind:   model.EventDeath,
			Player: victim.SteamID,
			Death:  idx,
		})

		victimRec := out.Player(victim.SteamID)
		victimRec.Deaths = append(victimRec.Deaths, idx)
		victimRec.ClassDetails[victim.Class].NumDeaths++
		streaks.RecordDeath(victim.SteamID)

		if attacker != nil {
			rec := out.Player(attacker.SteamID)
			rec.Kills = append(rec.Kills, idx)
			rec.ClassDetails[attacker.Class].NumKills++
			streaks.RecordKill(attacker.SteamID, attacker.Class, rec)
		}

		if assister != nil {
			rec := out.Player(assister.SteamID)
			rec.Assists = append(rec.Assists, idx)
			rec.ClassDetails[assister.Class].NumAssists++
		}
	}

	return len(kills)
}

// finalise fills the derived fields once the stream has ended: class
// popularity, averaged ping, the recording user, protocol metadata and
// the tick-to-seconds rescale.
func finalise(out *model.AnalysedDemo, src Source, numTicksChecked uint64) {
	out.DemoVersion = src.DemoVersion()
	out.IntervalPerTick = src.IntervalPerTick()

	for _, rec := range out.Players {
		mostPlayed := make([]model.Class, 0, len(model.Classes))
		for _, c := range model.Classes {
			if rec.ClassDetails[c].Time > 0 {
				mostPlayed = append(mostPlayed, c)
			}
		}
		sort.SliceStable(mostPlayed, func(i, j int) bool {
			return rec.ClassDetails[mostPlayed[i]].Time > rec.ClassDetails[mostPlayed[j]].Time
		})
		rec.MostPlayedClasses = mostPlayed

		// Ping was accumulated as a sum per checked tick. A walk that
		// observed no ticks leaves it at zero rather than dividing.
		if numTicksChecked > 0 {
			rec.AveragePing /= numTicksChecked
		}
	}

	// Lowest matching id wins so repeated analyses of the same bytes
	// agree even when two players share the recorded nickname.
	for id, rec := range out.Players {
		if rec.Name != "" && rec.Name == out.Header.Nick && (out.User == 0 || id < out.User) {
			out.User = id
		}
	}

	// Raw tick counters become seconds.
	interval := out.IntervalPerTick
	for _, rec := range out.Players {
		for i := range rec.ClassDetails {
			rec.ClassDetails[i].Time = scaleTicks(rec.ClassDetails[i].Time, interval)
		}
		for i := range rec.TimeOnTeam {
			rec.TimeOnTeam[i] = scaleTicks(rec.TimeOnTeam[i], interval)
		}
		rec.Time = scaleTicks(rec.Time, interval)
	}
}

func scaleTicks(ticks uint32, intervalPerTick float32) uint32 {
	return uint32(float32(ticks) * intervalPerTick)
}
