package main

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"autoprint/internal/ipc"
	"autoprint/internal/ledger"
)

var titleCaser = cases.Title(language.English)

// statusTitle renders a ledger status or stage name for display.
func statusTitle(value string) string {
	return titleCaser.String(strings.ReplaceAll(strings.TrimSpace(value), "_", " "))
}

// buildLedgerStatusRows orders raw status counts for table rendering. Known
// statuses come first in lifecycle order; anything unexpected sorts after.
func buildLedgerStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}

	known := make([]string, 0, len(ledger.AllStatuses()))
	for _, status := range ledger.AllStatuses() {
		known = append(known, string(status))
	}
	seen := make(map[string]bool, len(known))

	rows := make([][]string, 0, len(stats))
	for _, status := range known {
		seen[status] = true
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{statusTitle(status), strconv.Itoa(count)})
	}

	var extra []string
	for status, count := range stats {
		if seen[status] || count == 0 {
			continue
		}
		extra = append(extra, status)
	}
	sort.Strings(extra)
	for _, status := range extra {
		rows = append(rows, []string{statusTitle(status), strconv.Itoa(stats[status])})
	}
	return rows
}

// buildLedgerListRows converts ledger entries to table rows.
func buildLedgerListRows(entries []ipc.LedgerEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		printed := entry.PrintedAt
		if printed == "" {
			printed = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.FileName,
			statusTitle(entry.Status),
			entry.DiscoveredAt,
			printed,
		})
	}
	return rows
}

func parseIDArgs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
