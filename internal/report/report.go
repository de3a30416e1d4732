// Package report renders a RunResult for terminals.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"pricehub/internal/ingest"
)

const maxReasonWidth = 48

// Write prints a run summary followed by one table row per source.
func Write(w io.Writer, res *ingest.RunResult) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "run %s: %s\n", res.ID, res.Status)
	fmt.Fprintf(&sb, "sources: %d attempted, %d ok, %d failed\n",
		res.SourcesAttempted, res.SourcesSucceeded, res.SourcesFailed)
	fmt.Fprintf(&sb, "records: %d extracted, %d persisted, %d items skipped\n",
		res.RecordsExtracted, res.RecordsPersisted, res.ItemsSkipped)
	if d := res.Duration(); d > 0 {
		fmt.Fprintf(&sb, "duration: %s\n", d.Round(time.Millisecond))
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "error: %s\n", res.Error)
	}

	if len(res.Sources) > 0 {
		sb.WriteString("\n")
		rows := [][]string{{"Source", "Zip", "State", "Records", "Skipped", "Reason"}}
		for _, s := range res.Sources {
			reason := s.Reason
			if s.Kind != "" {
				reason = string(s.Kind) + ": " + reason
			}
			rows = append(rows, []string{
				s.Source,
				s.Zipcode,
				string(s.State),
				strconv.Itoa(s.Records),
				strconv.Itoa(s.Skipped),
				runewidth.Truncate(reason, maxReasonWidth, "…"),
			})
		}
		for _, line := range Table(rows) {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Table aligns rows by display width. The first row is the header and is
// followed by a separator line.
func Table(rows [][]string) []string {
	colCount := 0
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	widths := make([]int, colCount)
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	line := func(row []string) string {
		var sb strings.Builder
		sb.WriteString("|")
		for j := 0; j < colCount; j++ {
			content := ""
			if j < len(row) {
				content = row[j]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, widths[j]))
			sb.WriteString(" |")
		}
		return sb.String()
	}

	out := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		out = append(out, line(row))
		if i == 0 {
			sep := make([]string, colCount)
			for j := range sep {
				sep[j] = strings.Repeat("-", widths[j])
			}
			out = append(out, line(sep))
		}
	}
	return out
}

// EventLine is a one-line rendering of a run event for tailing clients.
func EventLine(ev ingest.Event) string {
	ts := ev.At.Format("15:04:05")
	short := ev.RunID
	if len(short) > 8 {
		short = short[:8]
	}

	switch {
	case ev.Source != nil && ev.Source.Failed():
		s := ev.Source
		return fmt.Sprintf("%s %s %-14s %s (%s): %s: %s", ts, short, ev.Type, s.Source, s.Zipcode, s.Kind, s.Reason)
	case ev.Source != nil:
		s := ev.Source
		return fmt.Sprintf("%s %s %-14s %s (%s): %d records, %d skipped", ts, short, ev.Type, s.Source, s.Zipcode, s.Records, s.Skipped)
	case ev.Run != nil:
		r := ev.Run
		line := fmt.Sprintf("%s %s %-14s %d/%d sources ok, %d records persisted",
			ts, short, ev.Type, r.SourcesSucceeded, r.SourcesAttempted, r.RecordsPersisted)
		if r.Error != "" {
			line += ": " + r.Error
		}
		return line
	default:
		return fmt.Sprintf("%s %s %s", ts, short, ev.Type)
	}
}
