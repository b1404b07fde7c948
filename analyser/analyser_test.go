package analyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demolens/demo"
	"demolens/demo/demotest"
	"demolens/model"
)

// fakeStep is one packet's worth of accumulator state.
type fakeStep struct {
	tick    uint32
	players []*demo.PlayerInfo
	kills   []demo.Kill
	conns   []demo.Connection
}

// fakeSource replays scripted accumulator states, so walker behaviour
// can be pinned down without constructing demo bytes.
type fakeSource struct {
	steps    []fakeStep
	pos      int
	server   string
	interval float32
	version  uint16
}

func newFakeSource(steps ...fakeStep) *fakeSource {
	return &fakeSource{steps: steps, server: "fake server", interval: 1, version: 24}
}

func (f *fakeSource) Next() (bool, error) {
	if f.pos >= len(f.steps) {
		return false, nil
	}
	f.pos++
	return true, nil
}

func (f *fakeSource) cur() fakeStep {
	if f.pos == 0 {
		return fakeStep{}
	}
	return f.steps[f.pos-1]
}

func (f *fakeSource) BytesConsumed() int             { return f.pos * (2 << 20) }
func (f *fakeSource) TotalBytes() int                { return len(f.steps) * (2 << 20) }
func (f *fakeSource) Tick() uint32                   { return f.cur().tick }
func (f *fakeSource) Players() []*demo.PlayerInfo    { return f.cur().players }
func (f *fakeSource) Kills() []demo.Kill             { return f.cur().kills }
func (f *fakeSource) Connections() []demo.Connection { return f.cur().conns }
func (f *fakeSource) ServerName() string             { return f.server }
func (f *fakeSource) IntervalPerTick() float32       { return f.interval }
func (f *fakeSource) DemoVersion() uint16            { return f.version }

func fakePlayer(userID int, sid model.SteamID, name string, class model.Class, team model.Team, ping uint32) *demo.PlayerInfo {
	return &demo.PlayerInfo{
		UserID:  userID,
		SteamID: sid,
		Name:    name,
		Class:   class,
		Team:    team,
		Ping:    ping,
	}
}

const (
	aliceID = model.SteamID(76561197960265829)
	bobID   = model.SteamID(76561197960265930)
)

func TestWalk_CreditsClassAndTeamTime(t *testing.T) {
	t.Parallel()

	alice := func(ping uint32) *demo.PlayerInfo {
		return fakePlayer(2, aliceID, "alice", model.ClassScout, model.TeamRed, ping)
	}
	src := newFakeSource(
		fakeStep{tick: 100, players: []*demo.PlayerInfo{alice(0)}},
		fakeStep{tick: 150, players: []*demo.PlayerInfo{alice(0)}},
		fakeStep{tick: 200, players: []*demo.PlayerInfo{alice(0)}},
	)

	out, err := AnalyseSource(model.Header{}, src, nil)
	require.NoError(t, err)

	rec := out.Players[aliceID]
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.Name)

	// No time is credited for the span before the first observed tick.
	assert.Equal(t, uint32(100), rec.Time)
	assert.Equal(t, uint32(100), rec.ClassDetails[model.ClassScout].Time)
	assert.Equal(t, uint32(100), rec.TimeOnTeam[model.TeamRed])
	assert.Equal(t, uint32(100), rec.FirstTick)
	assert.Equal(t, uint32(200), rec.LastTick)
	assert.Equal(t, []model.Class{model.ClassScout}, rec.MostPlayedClasses)
}

func TestWalk_TimelineRunsAreContiguous(t *testing.T) {
	t.Parallel()

	as := func(class model.Class) *demo.PlayerInfo {
		return fakePlayer(2, aliceID, "alice", class, model.TeamRed, 0)
	}
	src := newFakeSource(
		fakeStep{tick: 100, players: []*demo.PlayerInfo{as(model.ClassScout)}},
		fakeStep{tick: 200, players: []*demo.PlayerInfo{as(model.ClassScout)}},
		fakeStep{tick: 300, players: []*demo.PlayerInfo{as(model.ClassSoldier)}},
		fakeStep{tick: 400, players: []*demo.PlayerInfo{as(model.ClassSoldier)}},
		fakeStep{tick: 500, players: []*demo.PlayerInfo{as(model.ClassScout)}},
	)

	out, err := AnalyseSource(model.Header{}, src, nil)
	require.NoError(t, err)

	rec := out.Players[aliceID]
	require.NotNil(t, rec)

	runs := rec.TicksOnClasses
	require.Len(t, runs, 3)
	assert.Equal(t, model.ClassScout, runs[0].Class)
	assert.Equal(t, model.ClassSoldier, runs[1].Class)
	assert.Equal(t, model.ClassScout, runs[2].Class)

	// Consecutive runs always change class and leave no tick gaps, and
	// the whole timeline spans exactly first to last observed tick.
	var total uint32
	for i, r := range runs {
		total += r.Duration
		if i > 0 {
			prev := runs[i-1]
			assert.NotEqual(t, prev.Class, r.Class)
			assert.Equal(t, prev.Start+prev.Duration, r.Start)
		}
	}
	assert.Equal(t, rec.LastTick-rec.FirstTick, total)

	require.Len(t, rec.TicksOnTeams, 1)
	assert.Equal(t, model.TeamRed, rec.TicksOnTeams[0].Team)
	assert.Equal(t, rec.LastTick-rec.FirstTick, rec.TicksOnTeams[0].Duration)
}

func TestWalk_CorrelatesKills(t *testing.T) {
	t.Parallel()

	players := []*demo.PlayerInfo{
		fakePlayer(2, aliceID, "alice", model.ClassScout, model.TeamRed, 0),
		fakePlayer(3, bobID, "bob", model.ClassSoldier, model.TeamBlu, 0),
	}
	kill := demo.Kill{Tick: 150, VictimID: 3, AttackerID: 2, AssisterID: 99, Weapon: "scattergun"}
	src := newFakeSource(
		fakeStep{tick: 100, players: players},
		fakeStep{tick: 200, players: players, kills: []demo.Kill{kill}},
	)

	out, err := AnalyseSource(model.Header{}, src, nil)
	require.NoError(t, err)

	require.Len(t, out.Kills, 1)
	death := out.Kills[0]
	assert.Equal(t, uint32(150), death.Tick)
	assert.Equal(t, bobID, death.Victim)
	require.NotNil(t, death.Attacker)
	assert.Equal(t, aliceID, *death.Attacker)
	// User id 99 was never connected, so the assist stays unattributed.
	assert.Nil(t, death.Assister)
	assert.Equal(t, "scattergun", death.Weapon)

	alice := out.Players[aliceID]
	bob := out.Players[bobID]
	assert.Equal(t, []int{0}, alice.Kills)
	assert.Equal(t, []int{0}, bob.Deaths)
	assert.Empty(t, alice.Deaths)
	assert.Equal(t, uint32(1), alice.ClassDetails[model.ClassScout].NumKills)
	assert.Equal(t, uint32(1), bob.ClassDetails[model.ClassSoldier].NumDeaths)

	var deaths int
	for _, ev := range out.Events {
		if ev.Kind == model.EventDeath {
			deaths++
			assert.Equal(t, 0, ev.Death)
			assert.Equal(t, bobID, ev.Player)
		}
	}
	assert.Equal(t, 1, deaths)
}

func TestWalk_DropsKillWithUnresolvableVictim(t *testing.T) {
	t.Parallel()

	players := []*demo.PlayerInfo{
		fakePlayer(2, aliceID, "alice", model.ClassScout, model.TeamRed, 0),
	}
	kill := demo.Kill{Tick: 150, VictimID: 42, AttackerID: 2, Weapon: "scattergun"}
	src := newFakeSource(
		fakeStep{tick: 100, players: players},
		fakeStep{tick: 200, players: players, kills: []demo.Kill{kill}},
	)

	out, err := AnalyseSource(model.Header{}, src, nil)
	require.NoError(t, err)

	assert.Empty(t, out.Kills)
	assert.Empty(t, out.Players[aliceID].Kills)
}

func TestWalk_KillstreakPeaksAndResets(t *testing.T) {
	t.Parallel()

	players := []*demo.PlayerInfo{
		fakePlayer(2, aliceID, "alice", model.ClassScout, model.TeamRed, 0),
		fakePlayer(3, bobID, "bob", model.ClassSoldier, model.TeamBlu, 0),
	}
	kills := []demo.Kill{
		{Tick: 100, VictimID: 3, AttackerID: 2, Weapon: "scattergun"},
		{Tick: 200, VictimID: 2, AttackerID: 3, Weapon: "rocket"},
		{Tick: 300, VictimID: 3, AttackerID: 2, Weapon: "scattergun"},
	}
	src := newFakeSource(
		fakeStep{tick: 100, players: players},
		fakeStep{tick: 200, players: players, kills: kills[:1]},
		fakeStep{tick: 300, players: players, kills: kills[:2]},
		fakeStep{tick: 400, players: players, kills: kills},
	)

	out, err := AnalyseSource(model.Header{}, src, nil)
	require.NoError(t, err)

	// Alice died between her two kills, so neither streak reached two.
	alice := out.Players[aliceID]
	require.NotNil(t, alice.HighestKillstreak)
	assert.Equal(t, uint32(1), alice.HighestKillstreak.Kills)
	assert.Equal(t, model.ClassScout, alice.HighestKillstreak.Class)
}

func TestWalk_AveragesPingOverCheckedTicks(t *testing.T) {
	t.Parallel()

	steps := make([]fakeStep, 0, 10)
	for i := 1; i <= 10; i++ {
		ping := uint32(100)
		if i > 5 {
			ping = 200
		}
		steps = append(steps, fakeStep{
			tick:    uint32(i * 10),
			players: []*demo.PlayerInfo{fakePlayer(2, aliceID, "alice", model.ClassScout, model.TeamRed, ping)},
		})
	}

	out, err := AnalyseSource(model.Header{}, newFakeSource(steps...), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(150), out.Players[aliceID].AveragePing)
}

func TestWalk_NoTicksLeavesPingZero(t *testing.T) {
	t.Parallel()

	src := newFakeSource(fakeStep{
		conns: []demo.Connection{{Tick: 0, SteamID: aliceID, Name: "alice", Join: true}},
	})

	out, err := AnalyseSource(model.Header{}, src, nil)
	require.NoError(t, err)

	rec := out.Players[aliceID]
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.Name)
	assert.Zero(t, rec.AveragePing)
	assert.Zero(t, rec.Time)

	require.Len(t, out.Events, 1)
	assert.Equal(t, model.EventPlayerJoin, out.Events[0].Kind)
	assert.Equal(t, -1, out.Events[0].Death)
}

func TestWalk_ResolvesUserFromHeaderNick(t *testing.T) {
	t.Parallel()

	players := []*demo.PlayerInfo{
		fakePlayer(2, aliceID, "alice", model.ClassScout, model.TeamRed, 0),
		fakePlayer(3, bobID, "bob", model.ClassSoldier, model.TeamBlu, 0),
	}
	src := newFakeSource(fakeStep{tick: 100, players: players})

	out, err := AnalyseSource(model.Header{Nick: "bob"}, src, nil)
	require.NoError(t, err)
	assert.Equal(t, bobID, out.User)
}

func TestWalk_UserTieBreaksOnLowestID(t *testing.T) {
	t.Parallel()

	players := []*demo.PlayerInfo{
		fakePlayer(2, model.SteamID(500), "twin", model.ClassScout, model.TeamRed, 0),
		fakePlayer(3, model.SteamID(300), "twin", model.ClassSoldier, model.TeamBlu, 0),
	}
	src := newFakeSource(fakeStep{tick: 100, players: players})

	out, err := AnalyseSource(model.Header{Nick: "twin"}, src, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SteamID(300), out.User)
}

func TestWalk_ReportsProgress(t *testing.T) {
	t.Parallel()

	src := newFakeSource(
		fakeStep{tick: 100},
		fakeStep{tick: 200},
		fakeStep{tick: 300},
	)

	updater, checker := NewProgress()
	_, err := AnalyseSource(model.Header{}, src, updater)
	require.NoError(t, err)

	got := checker.Check()
	assert.Equal(t, Finished, got.State)
	assert.Equal(t, 1.0, got.Fraction)
}

func buildMatch() *demotest.Builder {
	b := demotest.NewBuilder()
	b.Nick = "alice"
	b.IntervalPerTick = 1
	b.Connect(2, "alice", "[U:1:101]")
	b.Connect(3, "bob", "[U:1:202]")
	b.ConnectBot(4, "some bot")
	b.Team(2, model.TeamRed)
	b.Class(2, model.ClassScout)
	b.Team(3, model.TeamBlu)
	b.Class(3, model.ClassSoldier)
	b.Tick(100)
	b.Kill(3, 2, -1, "scattergun")
	b.Tick(200)
	b.Kill(3, 2, -1, "scattergun")
	b.Tick(300)
	b.Kill(2, 3, -1, "tf_projectile_rocket")
	b.Tick(400)
	b.Disconnect(3, "#TF_MM_Generic_Kicked")
	return b
}

func findPlayer(t *testing.T, d *model.AnalysedDemo, name string) (model.SteamID, *model.DemoPlayer) {
	t.Helper()
	for id, p := range d.Players {
		if p.Name == name {
			return id, p
		}
	}
	t.Fatalf("no player named %q", name)
	return 0, nil
}

func TestAnalyse_EndToEnd(t *testing.T) {
	t.Parallel()

	out, err := Analyse(buildMatch().Bytes(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Test Server", out.ServerName)
	assert.Equal(t, uint16(24), out.DemoVersion)
	assert.Equal(t, float32(1), out.IntervalPerTick)

	// The bot never resolves to an identity, so only two players exist.
	require.Len(t, out.Players, 2)
	aliceSID, alice := findPlayer(t, out, "alice")
	bobSID, bob := findPlayer(t, out, "bob")

	assert.Equal(t, aliceSID, out.User)

	require.Len(t, out.Kills, 3)
	assert.Equal(t, []int{0, 1}, alice.Kills)
	assert.Equal(t, []int{2}, alice.Deaths)
	assert.Equal(t, []int{2}, bob.Kills)
	assert.Equal(t, []int{0, 1}, bob.Deaths)

	for i, tick := range []uint32{100, 200, 300} {
		assert.Equal(t, tick, out.Kills[i].Tick)
		require.NotNil(t, out.Kills[i].Attacker)
		assert.Nil(t, out.Kills[i].Assister)
	}
	assert.Equal(t, bobSID, out.Kills[0].Victim)
	assert.Equal(t, aliceSID, *out.Kills[0].Attacker)
	assert.Equal(t, aliceSID, out.Kills[2].Victim)

	require.NotNil(t, alice.HighestKillstreak)
	assert.Equal(t, uint32(2), alice.HighestKillstreak.Kills)
	assert.Equal(t, model.ClassScout, alice.HighestKillstreak.Class)
	require.NotNil(t, bob.HighestKillstreak)
	assert.Equal(t, uint32(1), bob.HighestKillstreak.Kills)

	assert.Equal(t, []model.Class{model.ClassScout}, alice.MostPlayedClasses)
	assert.Equal(t, []model.Class{model.ClassSoldier}, bob.MostPlayedClasses)

	// Four ticks observed, 300 ticks of credited time at one second per
	// tick, all on one class and team.
	assert.Equal(t, uint32(300), alice.Time)
	assert.Equal(t, uint32(300), alice.ClassDetails[model.ClassScout].Time)
	assert.Equal(t, uint32(300), alice.TimeOnTeam[model.TeamRed])
	assert.Equal(t, uint32(100), alice.FirstTick)
	assert.Equal(t, uint32(400), alice.LastTick)

	// Two joins, three deaths, one leave.
	var joins, deaths, leaves int
	for _, ev := range out.Events {
		switch ev.Kind {
		case model.EventPlayerJoin:
			joins++
		case model.EventDeath:
			deaths++
		case model.EventPlayerLeave:
			leaves++
		}
	}
	assert.Equal(t, 2, joins)
	assert.Equal(t, 3, deaths)
	assert.Equal(t, 1, leaves)
}

func TestAnalyse_Deterministic(t *testing.T) {
	t.Parallel()

	raw := buildMatch().Bytes()

	first, err := Analyse(raw, nil)
	require.NoError(t, err)
	second, err := Analyse(raw, nil)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestAnalyse_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Analyse([]byte("this is not a demo"), nil)
	require.Error(t, err)
}
