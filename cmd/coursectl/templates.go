package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/course"
	"github.com/spf13/cobra"
)

func newTemplatesCmd() *cobra.Command {
	var seed string
	var round int

	var templatesCmd = &cobra.Command{
		Use:   "templates",
		Short: "List task templates or preview a rendered task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.LoadInstructor()
			if err != nil {
				return err
			}
			set, err := course.LoadTemplates(cfg.TemplatesPath)
			if err != nil {
				return err
			}

			b := lipgloss.NewStyle().Foreground(lipgloss.Color("#3498db"))
			v := lipgloss.NewStyle().Foreground(lipgloss.Color("#e056fd"))

			if seed == "" {
				for _, t := range set.Templates {
					fmt.Printf("%s  %s\n", b.Render(t.ID), v.Render(fmt.Sprintf("%d round 2 variants", len(t.Round2))))
					fmt.Printf("  %s\n", t.Brief)
				}
				return nil
			}

			r, err := set.Render(seed, round)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", b.Render("task:"), r.TaskID())
			fmt.Printf("%s %s\n", b.Render("brief:"), r.Brief)
			fmt.Printf("%s\n  - %s\n", b.Render("checks:"), strings.Join(r.Checks, "\n  - "))
			for _, a := range r.Attachments {
				fmt.Printf("%s %s (%d char data URI)\n", b.Render("attachment:"), a.Name, len(a.URL))
			}
			return nil
		},
	}
	templatesCmd.Flags().StringVar(&seed, "seed", "", "Render the task this seed would produce")
	templatesCmd.Flags().IntVar(&round, "round", 1, "Round to render with --seed")
	return templatesCmd
}
