package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	var round int

	var resultsCmd = &cobra.Command{
		Use:   "results",
		Short: "Browse submissions and their latest evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			m := newResultsModel(cmd.Context(), store, coursedb.SubmFilter{Round: round})
			final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			if err != nil {
				return err
			}
			if rm, ok := final.(resultsModel); ok && rm.err != nil {
				return rm.err
			}
			return nil
		},
	}
	resultsCmd.Flags().IntVarP(&round, "round", "r", 0, "Only show this round")
	return resultsCmd
}

// submRow is a submission with its newest result, if any.
type submRow struct {
	subm   course.Submission
	latest *course.EvaluationResult
}

type rowsLoadedMsg struct {
	rows []submRow
	err  error
}

func loadRows(ctx context.Context, store coursedb.Store, f coursedb.SubmFilter) tea.Cmd {
	return func() tea.Msg {
		subms, err := store.ListSubmissions(ctx, f)
		if err != nil {
			return rowsLoadedMsg{err: err}
		}
		rows := make([]submRow, 0, len(subms))
		for _, s := range subms {
			results, err := store.ListResults(ctx, s.UUID)
			if err != nil {
				return rowsLoadedMsg{err: err}
			}
			row := submRow{subm: s}
			for i := range results {
				if row.latest == nil || results[i].Attempt > row.latest.Attempt {
					row.latest = &results[i]
				}
			}
			rows = append(rows, row)
		}
		return rowsLoadedMsg{rows: rows}
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3498db")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	borderStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

type resultsModel struct {
	ctx     context.Context
	store   coursedb.Store
	filter  coursedb.SubmFilter
	spinner spinner.Model
	table   table.Model
	rows    []submRow
	loading bool
	detail  bool
	err     error
}

func newResultsModel(ctx context.Context, store coursedb.Store, f coursedb.SubmFilter) resultsModel {
	s := spinner.New()
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Email", Width: 28},
			{Title: "Task", Width: 18},
			{Title: "Round", Width: 5},
			{Title: "Status", Width: 9},
			{Title: "Attempt", Width: 7},
			{Title: "Score", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	st.Selected = st.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(st)

	return resultsModel{ctx: ctx, store: store, filter: f, spinner: s, table: t, loading: true}
}

func (m resultsModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadRows(m.ctx, m.store, m.filter))
}

func (m resultsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if !m.loading && len(m.rows) > 0 {
				m.detail = !m.detail
			}
			return m, nil
		case "esc":
			m.detail = false
			return m, nil
		case "r":
			if !m.loading {
				m.loading = true
				m.detail = false
				return m, tea.Batch(m.spinner.Tick, loadRows(m.ctx, m.store, m.filter))
			}
		}

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case rowsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.rows = msg.rows
		m.table.SetRows(tableRows(msg.rows))
		return m, nil
	}

	if m.detail {
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func tableRows(rows []submRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		attempt, score := "-", "-"
		if r.latest != nil {
			attempt = fmt.Sprintf("%d", r.latest.Attempt)
			score = fmt.Sprintf("%.2f", r.latest.Aggregate)
		}
		out = append(out, table.Row{
			r.subm.Email, r.subm.TaskID, fmt.Sprintf("%d", r.subm.Round),
			string(r.subm.Status), attempt, score,
		})
	}
	return out
}

func (m resultsModel) View() string {
	if m.loading {
		return m.spinner.View() + " loading submissions...\n"
	}
	if len(m.rows) == 0 {
		return "No submissions yet.\n\n" + mutedStyle.Render("q quit") + "\n"
	}
	if m.detail {
		return m.detailView(m.rows[m.table.Cursor()])
	}
	return borderStyle.Render(m.table.View()) + "\n" +
		mutedStyle.Render("enter details  r reload  q quit") + "\n"
}

func (m resultsModel) detailView(r submRow) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s  round %d", r.subm.Email, r.subm.TaskID, r.subm.Round)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("repo:   %s @ %s\n", r.subm.RepoURL, r.subm.CommitSHA))
	b.WriteString(fmt.Sprintf("pages:  %s\n", r.subm.PagesURL))
	b.WriteString(fmt.Sprintf("status: %s\n\n", r.subm.Status))

	if r.latest == nil {
		b.WriteString("Not evaluated yet.\n")
	} else {
		res := r.latest
		b.WriteString(fmt.Sprintf("attempt %d  aggregate %.2f\n", res.Attempt, res.Aggregate))
		b.WriteString(fmt.Sprintf("license %.2f  readme %.2f  static %.2f  rubric %.2f  functional %.2f\n\n",
			res.License, res.Readme, res.Static, res.Rubric, res.Functional))
		for _, c := range res.Checks {
			mark := passStyle.Render("pass")
			if !c.Passed {
				mark = failStyle.Render("fail")
			}
			b.WriteString(fmt.Sprintf("%s %-10s %s: %s\n", mark, c.Kind, c.Name, c.Reason))
			if c.ArtifactURL != nil {
				b.WriteString(mutedStyle.Render("     screenshot "+*c.ArtifactURL) + "\n")
			}
		}
	}
	b.WriteString("\n" + mutedStyle.Render("esc back  q quit") + "\n")
	return b.String()
}
