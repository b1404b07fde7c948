package output

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"demolens/model"
)

// SheetsClient uploads analysed-demo stats to a Google Sheet.
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsClient creates a client from service account credentials
// and a spreadsheet URL.
func NewSheetsClient(ctx context.Context, credentialsJSON []byte, sheetURL, sheetName string) (*SheetsClient, error) {
	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, err
	}

	return &SheetsClient{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google
// Sheets URL.
func extractSpreadsheetID(url string) (string, error) {
	// Match pattern: /spreadsheets/d/{spreadsheetId}/
	re := regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	matches := re.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("could not extract spreadsheet ID from URL: %s", url)
	}
	return matches[1], nil
}

// UploadPlayerStats replaces the sheet's contents with one row per
// player across the given demos, aggregating kill participation and
// class time.
func (c *SheetsClient) UploadPlayerStats(ctx context.Context, demos []*model.AnalysedDemo) error {
	headers := []interface{}{
		"Steam ID", "Name", "Demos", "Kills", "Assists", "Deaths",
		"Time", "Average Ping", "Highest Killstreak",
	}
	for _, class := range model.Classes {
		headers = append(headers,
			fmt.Sprintf("%s Time", class),
			fmt.Sprintf("%s Kills", class),
			fmt.Sprintf("%s Deaths", class),
		)
	}

	rows := [][]interface{}{headers}
	for _, agg := range aggregatePlayers(demos) {
		row := []interface{}{
			fmt.Sprintf("%d", agg.id),
			agg.name,
			agg.demos,
			agg.kills,
			agg.assists,
			agg.deaths,
			agg.time,
			agg.averagePing,
			agg.killstreak,
		}
		for _, class := range model.Classes {
			d := agg.classes[class]
			row = append(row, d.Time, d.NumKills, d.NumDeaths)
		}
		rows = append(rows, row)
	}

	// Clear existing data in the sheet first.
	clearRange := fmt.Sprintf("%s!A:ZZ", c.sheetName)
	_, err := c.service.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	writeRange := fmt.Sprintf("%s!A1", c.sheetName)
	valueRange := &sheets.ValueRange{Values: rows}

	_, err = c.service.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write to sheet: %w", err)
	}

	return nil
}

type aggregatedPlayer struct {
	id          model.SteamID
	name        string
	demos       int
	kills       int
	assists     int
	deaths      int
	time        uint32
	averagePing uint64
	killstreak  uint32
	classes     [model.ClassCount]model.ClassDetails
}

// aggregatePlayers folds per-demo player records into one row per
// identity, ordered by kills descending.
func aggregatePlayers(demos []*model.AnalysedDemo) []*aggregatedPlayer {
	byID := make(map[model.SteamID]*aggregatedPlayer)
	for _, d := range demos {
		for id, p := range d.Players {
			agg, ok := byID[id]
			if !ok {
				agg = &aggregatedPlayer{id: id}
				byID[id] = agg
			}

			agg.demos++
			if agg.name == "" {
				agg.name = p.Name
			}
			agg.kills += len(p.Kills)
			agg.assists += len(p.Assists)
			agg.deaths += len(p.Deaths)
			agg.time += p.Time
			agg.averagePing += p.AveragePing
			if p.HighestKillstreak != nil && p.HighestKillstreak.Kills > agg.killstreak {
				agg.killstreak = p.HighestKillstreak.Kills
			}
			for i := range agg.classes {
				agg.classes[i].Time += p.ClassDetails[i].Time
				agg.classes[i].NumKills += p.ClassDetails[i].NumKills
				agg.classes[i].NumAssists += p.ClassDetails[i].NumAssists
				agg.classes[i].NumDeaths += p.ClassDetails[i].NumDeaths
			}
		}
	}

	out := make([]*aggregatedPlayer, 0, len(byID))
	for _, agg := range byID {
		if agg.demos > 0 {
			agg.averagePing /= uint64(agg.demos)
		}
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].kills != out[j].kills {
			return out[i].kills > out[j].kills
		}
		return out[i].id < out[j].id
	})
	return out
}
