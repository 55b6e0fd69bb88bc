package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/beatleader/ledger"
	"github.com/beatleader/ledger/migration"
)

func printStatus(w io.Writer, status *ledger.StatusResult) error {
	rows := [][]string{{"ID", "Name", "Status", "Applied at", "Reversible"}}
	for _, state := range status.Migrations {
		appliedAt := "-"
		if !state.AppliedAt.IsZero() {
			appliedAt = state.AppliedAt.UTC().Format(time.DateTime)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(state.ID), 10),
			state.Name,
			state.Status.String(),
			appliedAt,
			yesNo(state.CanUndo),
		})
	}

	if err := pterm.DefaultTable.WithWriter(w).WithHasHeader().WithData(rows).Render(); err != nil {
		return fmt.Errorf("failed to render status: %w", err)
	}

	fmt.Fprintf(w, "%d applied, %d pending, %d missing\n",
		status.AppliedCount, status.PendingCount, status.MissingCount)
	return nil
}

func printPlan(w io.Writer, plan *ledger.Plan) error {
	if plan.Empty() {
		fmt.Fprintf(w, "Nothing to do, the database is at %s\n", formatTarget(plan.Target))
		return nil
	}

	rows := [][]string{{"ID", "Name", "Action"}}
	for _, rec := range plan.Records {
		rows = append(rows, []string{strconv.FormatUint(uint64(rec.ID), 10), rec.Name, action(plan.Direction)})
	}

	if err := pterm.DefaultTable.WithWriter(w).WithHasHeader().WithData(rows).Render(); err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}

	fmt.Fprintf(w, "%d migrations to %s to reach %s\n", len(plan.Records), action(plan.Direction), formatTarget(plan.Target))
	return nil
}

func printReport(w io.Writer, report *ledger.Report) {
	for _, entry := range report.Completed {
		fmt.Fprintf(w, "%s %d %s\n", pastAction(entry.Direction), entry.ID, entry.Name)
	}
	fmt.Fprintf(w, "%d migrations %s (run %s)\n", len(report.Completed), pastAction(report.Direction), report.RunID)
}

func printViolations(w io.Writer, violations []*ledger.RoundTripError) {
	if len(violations) == 0 {
		fmt.Fprintln(w, "All migrations round-trip")
		return
	}

	for _, v := range violations {
		fmt.Fprintf(w, "%d %s: %s failed: %v\n", v.Record.ID, v.Record.Name, v.Stage, v.Cause)
		if len(v.Suggested) > 0 {
			fmt.Fprintln(w, "  suggested down operations:")
			for _, op := range v.Suggested {
				fmt.Fprintf(w, "    %s\n", op)
			}
		}
	}
}

func action(dir migration.Direction) string {
	if dir == migration.Down {
		return "revert"
	}
	return "apply"
}

func pastAction(dir migration.Direction) string {
	if dir == migration.Down {
		return "reverted"
	}
	return "applied"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
