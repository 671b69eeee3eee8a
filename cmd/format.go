package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rubiojr/timetrip/pkg/era"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)

	highlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// formatYear renders a year with digit grouping, e.g. "-2,500,000,000".
func formatYear(year int64) string {
	return printer.Sprintf("%d", year)
}

// formatAge renders a year as a short geological age: "4.5 Ga" for billions
// of years ago, "66 Ma" for millions, "3,000 BCE" and "1969 CE" otherwise.
func formatAge(year int64) string {
	abs := math.Abs(float64(year))
	switch {
	case year < 0 && abs >= 1e9:
		return trimFloat(abs/1e9) + " Ga"
	case year < 0 && abs >= 1e6:
		return trimFloat(abs/1e6) + " Ma"
	case year < 0:
		return printer.Sprintf("%d BCE", -year)
	case year >= 1e6:
		return "+" + trimFloat(float64(year)/1e6) + " My"
	default:
		return fmt.Sprintf("%d CE", year)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.1f", f)
	return strings.TrimSuffix(s, ".0")
}

// formatRange renders a year range using formatAge.
func formatRange(start, end int64) string {
	if start == end {
		return formatAge(start)
	}
	return formatAge(start) + " → " + formatAge(end)
}

// titleCase capitalises categories and continents for display.
func titleCase(s string) string {
	if s == "" {
		return "-"
	}
	return titler.String(strings.ReplaceAll(s, "_", " "))
}

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}

	if diff < 7*24*time.Hour {
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers(headers...)
}

// renderEvents lays events out as a table.
func renderEvents(events []timeline.Event) string {
	if len(events) == 0 {
		return noDataStyle.Render("No events found.")
	}
	t := newTable("ID", "Title", "When", "Category", "Continent", "Location")
	for _, ev := range events {
		t.Row(
			string(ev.ID),
			ev.Title,
			formatRange(ev.StartYear, ev.EndYear),
			titleCase(ev.Category),
			ev.Continent,
			formatLocation(ev),
		)
	}
	return t.String()
}

func formatLocation(ev timeline.Event) string {
	p, ok := ev.Location()
	if !ok {
		return "-"
	}
	coords := fmt.Sprintf("%.2f, %.2f", p.Lat, p.Lon)
	if ev.LocationLabel != "" {
		return ev.LocationLabel + " (" + coords + ")"
	}
	return coords
}

// renderPoints lays the points of a rendered figure out as a table, one row
// per marker. Highlighted points are flagged.
func renderPoints(points []timeline.Point, highlighted map[timeline.EventID]bool) string {
	if len(points) == 0 {
		return noDataStyle.Render("Nothing to draw in this range.")
	}
	t := newTable("", "Year", "Row", "Item")
	for _, p := range points {
		mark := ""
		item := ""
		switch {
		case p.IsCluster():
			item = "cluster " + p.ClusterID
		case p.Event != nil:
			item = p.Event.Title
			if highlighted[p.Event.ID] {
				mark = "★"
			}
		default:
			item = fmt.Sprint(p.Identity)
		}
		x := p.XText
		if x == "" {
			x = formatAge(int64(p.X))
		}
		t.Row(mark, x, titleCase(p.Y), item)
	}
	return t.String()
}

// renderClusters lays clusters out as a table.
func renderClusters(clusters []timeline.ClusterInfo) string {
	t := newTable("Cluster", "Bucket", "Events", "Category", "Continent")
	for _, c := range clusters {
		t.Row(
			c.ID,
			formatRange(int64(c.BucketStart), int64(c.BucketEnd)),
			formatNumber(c.EventCount),
			titleCase(c.Category),
			c.Continent,
		)
	}
	return t.String()
}

// renderEra describes an era on one line.
func renderEra(e era.Era) string {
	return summaryStyle.Render(e.Name) + "  " +
		metaStyle.Render(fmt.Sprintf("%s → %s", formatAge(e.StartYear), formatAge(e.EndYear)))
}
