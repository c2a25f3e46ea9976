package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
)

// RosterEntry is a participant with the latest task of each round, if any.
type RosterEntry struct {
	Participant course.Participant
	Rounds      [2]*course.Task
}

// Roster lists every registered participant and where their dispatches stand.
func Roster(ctx context.Context, store coursedb.Store) ([]RosterEntry, error) {
	participants, err := store.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	entries := make([]RosterEntry, 0, len(participants))
	for _, p := range participants {
		e := RosterEntry{Participant: p}
		for i := range e.Rounds {
			task, err := store.LatestTask(ctx, p.Email, i+1)
			if errors.Is(err, coursedb.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("latest round %d task of %s: %w", i+1, p.Email, err)
			}
			e.Rounds[i] = &task
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func roundState(t *course.Task) string {
	switch {
	case t == nil:
		return "-"
	case t.Dispatched():
		return "sent " + strconv.Itoa(t.StatusCode)
	case t.StatusCode == 0:
		return "unreachable"
	default:
		return "failed " + strconv.Itoa(t.StatusCode)
	}
}

// RosterTable renders the roster with one row per participant.
func RosterTable(entries []RosterEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Participant.Email,
			e.Participant.Endpoint,
			e.Participant.RegisteredAt.UTC().Format("2006-01-02 15:04"),
			roundState(e.Rounds[0]),
			roundState(e.Rounds[1]),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("EMAIL", "ENDPOINT", "REGISTERED", "ROUND 1", "ROUND 2").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	return fmt.Sprintf("%d participants\n%s", len(entries), t.String())
}
