package main

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/talgya/atlas-live/internal/config"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/persistence"
)

const diaryContentWidth = 60

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// writeDiary prints one block per country, newest visit last.
func writeDiary(w io.Writer, memories []ledger.CountryMemory, now time.Time) {
	if len(memories) == 0 {
		fmt.Fprintln(w, "No visits recorded.")
		return
	}
	for i, m := range memories {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s, last %s\n", m.EntityID,
			english.Plural(m.TotalVisits, "visit", "visits"),
			humanize.RelTime(m.LastVisit, now, "ago", "from now"))
		for _, v := range m.Visits {
			content := truncate(strings.ReplaceAll(v.Content, "\n", " "), diaryContentWidth)
			fmt.Fprintf(w, "  day %d  %-10s %-5s %s\n", v.Day, v.Theme, v.LocalTime, content)
		}
	}
}

func newDiaryCmd() *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "diary",
		Short: "Show the travel diary",
		Long:  "Print every recorded visit per country from the broadcast database.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			ids := []string{country}
			if country == "" {
				if ids, err = db.CountryIDs(ctx); err != nil {
					return fmt.Errorf("diary: %w", err)
				}
			}

			var memories []ledger.CountryMemory
			for _, id := range ids {
				m, err := db.LoadEntityMemory(ctx, id)
				if err != nil {
					return fmt.Errorf("diary %s: %w", id, err)
				}
				if m.TotalVisits > 0 {
					memories = append(memories, m)
				}
			}
			writeDiary(cmd.OutOrStdout(), memories, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "only show this country id")
	return cmd
}
