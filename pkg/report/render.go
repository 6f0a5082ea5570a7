package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func RenderJSON(w io.Writer, report Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// RenderTable prints the report as terminal tables. Colors follow fatih/color, which disables
// itself when w is not a terminal or NO_COLOR is set.
func RenderTable(w io.Writer, report Report) error {
	status := statusColor(report.Status).SprintFunc()
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	section := color.New(color.FgYellow).SprintFunc()

	if _, err := fmt.Fprintf(w, "%s %s [%s]\n%s\n", title(strings.ToUpper(report.Operation)), report.TimetableId, status(report.Status), report.Summary); err != nil {
		return err
	}

	if len(report.Rows) > 0 {
		fmt.Fprintf(w, "\n%s (version %d, score %.2f)\n", section("Timetable"), report.Version, report.Score)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Id", "Slot", "Course", "Class", "Room", "Teacher"})
		for _, row := range report.Rows {
			teacher := row.Teacher
			if row.Substitute {
				teacher += " (substitute)"
			}
			table.Append([]string{row.Id, row.Slot, row.Course, row.Class, row.Room, teacher})
		}
		table.Render()
	}

	for _, group := range []struct {
		name    string
		entries []Entry
	}{{"Hard violations", report.Hard}, {"Soft penalties", report.Soft}} {
		if len(group.entries) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", section(group.name))
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Constraint", "Sessions", "Resource", "Penalty", "Message"})
		for _, entry := range group.entries {
			table.Append([]string{entry.Constraint, sessionIds(entry.Sessions), entry.Resource, fmt.Sprintf("%.2f", entry.Penalty), entry.Message})
		}
		table.Render()
	}

	if len(report.Conflict) > 0 {
		fmt.Fprintf(w, "\n%s (%s)\n", section("Conflicting sessions"), strings.Join(report.Blocking, ", "))
		sessionTable(w, report.Conflict)
	} else if len(report.Blocking) > 0 {
		fmt.Fprintf(w, "\n%s %s\n", section("Blocking constraints:"), strings.Join(report.Blocking, ", "))
	}
	if len(report.Unassigned) > 0 {
		fmt.Fprintf(w, "\n%s\n", section("Unassigned sessions"))
		sessionTable(w, report.Unassigned)
	}

	if len(report.Changes) > 0 {
		fmt.Fprintf(w, "\n%s\n", section("Changes"))
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Session", "Before", "After"})
		for _, change := range report.Changes {
			table.Append([]string{string(change.Session), describeRow(change.Before), describeRow(change.After)})
		}
		table.Render()
	}
	if len(report.Unresolved) > 0 {
		fmt.Fprintf(w, "\n%s\n", section("Unresolved"))
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Session", "Course", "Teacher", "Constraints"})
		for _, blocker := range report.Unresolved {
			table.Append([]string{string(blocker.Session.Id), blocker.Session.Name, blocker.Session.Teacher, strings.Join(blocker.Constraints, ", ")})
		}
		table.Render()
	}
	return nil
}

func statusColor(status string) *color.Color {
	switch status {
	case "complete", "repaired", "unchanged":
		return color.New(color.FgGreen)
	case "timed-out", "partial":
		return color.New(color.FgYellow)
	}
	return color.New(color.FgRed)
}

func sessionTable(w io.Writer, sessions []Session) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Session", "Course", "Class", "Teacher"})
	for _, session := range sessions {
		table.Append([]string{string(session.Id), session.Name, session.Class, session.Teacher})
	}
	table.Render()
}

func sessionIds(sessions []Session) string {
	return strings.Join(lo.Map(sessions, func(session Session, _ int) string { return string(session.Id) }), ", ")
}

func describeRow(row Row) string {
	if row.Session == "" {
		return "-"
	}
	description := fmt.Sprintf("%s, %s, %s", row.Slot, row.Room, row.Teacher)
	if row.Substitute {
		description += " (substitute)"
	}
	return description
}
