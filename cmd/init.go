// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/catalog"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/domain"
)

var defaultFailReasons = []domain.FailReason{
	{Code: "defect", Title: "Product defect", IsActive: true},
	{Code: "env", Title: "Environment issue", IsActive: true},
	{Code: "blocked", Title: "Blocked by dependency", IsActive: true},
	{Code: "data", Title: "Bad test data", IsActive: true},
	{Code: "flaky", Title: "Unstable behaviour, needs investigation", IsActive: true},
}

// NewInitCmd creates the init command that provisions the database and seeds
// the first admin user plus the default fail-reason vocabulary.
func NewInitCmd() *cobra.Command {
	var (
		email       string
		displayName string
		dataDir     string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the tracker database and seed an admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := coredb.Open(ctx, coredb.Options{DataDir: dataDir})
			if err != nil {
				return fmt.Errorf("open core db: %w", err)
			}
			defer db.Close()

			recorder := audit.NewRecorder(db)
			accessSvc := access.NewService(db, recorder)

			admin, err := accessSvc.CreateUser(ctx, "", email, displayName, domain.GlobalAdmin)
			if err != nil {
				return fmt.Errorf("seed admin user: %w", err)
			}

			catalogStore := catalog.NewStore(db, recorder, accessSvc)
			for _, reason := range defaultFailReasons {
				if _, err := catalogStore.SetFailReason(ctx, admin.ID, reason); err != nil {
					return fmt.Errorf("seed fail reason %s: %w", reason.Code, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Admin user created: %s <%s>\n", admin.DisplayName, admin.Email)
			fmt.Fprintf(cmd.OutOrStdout(), "Bearer token: uran.%s\n", admin.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "admin@localhost", "Admin user email")
	cmd.Flags().StringVar(&displayName, "name", "Administrator", "Admin user display name")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the tracker database (overrides DATA_DIR)")

	return cmd
}
