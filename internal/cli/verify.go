package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/beatleader/ledger/history"
	"github.com/beatleader/ledger/internal/config"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

var ErrRoundTripViolations = errors.New("migrations do not round-trip")

func (a *app) verifyCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every migration's down operations undo its up operations",
		Long: `Replay every migration on an in-memory schema, applying then reverting each
one, and report migrations whose down operations do not restore the schema.
With the sqlite driver index names must also be unique across tables.
Known violations of the history catalog are reported but do not fail the
command unless --strict is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := schema.NewSnapshot()
			if a.cfg.Driver == config.DriverSQLite {
				base.WithGlobalIndexNames()
			}

			violations := a.ledger.VerifyRoundTrips(cmd.Context(), base)
			printViolations(a.out, violations)

			var known []migration.ID
			if a.cfg.Source == config.SourceHistory && !strict {
				known = history.KnownViolations()
			}

			failed := 0
			for _, v := range violations {
				if !slices.Contains(known, v.Record.ID) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d checked", ErrRoundTripViolations, failed, len(a.ledger.Records()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on known violations too")
	return cmd
}
