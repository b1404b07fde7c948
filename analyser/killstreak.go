package analyser

import (
	"demolens/model"
)

// killstreakTracker follows each player's current run of kills during
// the walk. A player's streak grows on every kill they land and resets
// when they die; the best streak seen so far is written back to the
// player record as it peaks, together with the class it peaked on.
type killstreakTracker struct {
	current map[model.SteamID]uint32
}

func newKillstreakTracker() *killstreakTracker {
	return &killstreakTracker{
		current: make(map[model.SteamID]uint32),
	}
}

// RecordKill extends the attacker's streak and updates the player
// record if this is their best run of the match.
func (t *killstreakTracker) RecordKill(attacker model.SteamID, class model.Class, rec *model.DemoPlayer) {
	streak := t.current[attacker] + 1
	t.current[attacker] = streak

	if rec.HighestKillstreak == nil || streak > rec.HighestKillstreak.Kills {
		rec.HighestKillstreak = &model.Killstreak{
			Kills: streak,
			Class: class,
		}
	}
}

// RecordDeath ends the victim's streak.
func (t *killstreakTracker) RecordDeath(victim model.SteamID) {
	delete(t.current, victim)
}
