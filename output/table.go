// Package output renders analysed demos for people: terminal tables
// for the CLI and spreadsheet export for sharing aggregated stats.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"demolens/model"
)

// WriteSummary renders the match header, the per-player table and the
// chronological kill feed.
func WriteSummary(w io.Writer, d *model.AnalysedDemo) {
	writeHeader(w, d)
	writePlayers(w, d)
	writeKillFeed(w, d)
}

func writeHeader(w io.Writer, d *model.AnalysedDemo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRow(table.Row{"Map", d.Header.Map})
	t.AppendRow(table.Row{"Server", d.ServerName})
	t.AppendRow(table.Row{"Address", d.Header.Server})
	t.AppendRow(table.Row{"Recorded by", d.Header.Nick})
	t.AppendRow(table.Row{"Duration", formatSeconds(uint32(d.Header.Duration))})
	t.AppendRow(table.Row{"Players", len(d.Players)})
	t.AppendRow(table.Row{"Kills", len(d.Kills)})
	t.Render()
}

func writePlayers(w io.Writer, d *model.AnalysedDemo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Player", "Steam ID", "K", "A", "D", "Classes", "Time", "Ping"})

	for _, id := range sortedPlayerIDs(d) {
		p := d.Players[id]
		t.AppendRow(table.Row{
			p.Name,
			uint64(id),
			len(p.Kills),
			len(p.Assists),
			len(p.Deaths),
			formatClasses(p),
			formatSeconds(p.Time),
			p.AveragePing,
		})
	}
	t.Render()
}

func writeKillFeed(w io.Writer, d *model.AnalysedDemo) {
	if len(d.Kills) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Tick", "Attacker", "Weapon", "Victim", "Assist"})

	for _, k := range d.Kills {
		t.AppendRow(table.Row{
			k.Tick,
			optPlayerName(d, k.Attacker),
			k.Weapon,
			playerName(d, k.Victim),
			optPlayerName(d, k.Assister),
		})
	}
	t.Render()
}

// sortedPlayerIDs orders players by kills descending, then name, so
// the table reads like a scoreboard.
func sortedPlayerIDs(d *model.AnalysedDemo) []model.SteamID {
	ids := make([]model.SteamID, 0, len(d.Players))
	for id := range d.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := d.Players[ids[i]], d.Players[ids[j]]
		if len(a.Kills) != len(b.Kills) {
			return len(a.Kills) > len(b.Kills)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return ids[i] < ids[j]
	})
	return ids
}

func formatClasses(p *model.DemoPlayer) string {
	parts := make([]string, 0, len(p.MostPlayedClasses))
	for _, c := range p.MostPlayedClasses {
		parts = append(parts, fmt.Sprintf("%s (%s)", c, formatSeconds(p.ClassDetails[c].Time)))
	}
	return strings.Join(parts, ", ")
}

func formatSeconds(s uint32) string {
	return (time.Duration(s) * time.Second).String()
}

func playerName(d *model.AnalysedDemo, id model.SteamID) string {
	if p, ok := d.Players[id]; ok && p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("<%d>", uint64(id))
}

func optPlayerName(d *model.AnalysedDemo, id *model.SteamID) string {
	if id == nil {
		return ""
	}
	return playerName(d, *id)
}
