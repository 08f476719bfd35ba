package cli

import (
	"github.com/spf13/cobra"

	"nepse-journal/internal/models"
)

// addStrategyCommands adds strategy commands.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Trading strategies",
		Long:  "Name the setups you trade and tag trades with them. Deleting a strategy keeps its trades.",
	}

	var description string
	add := &cobra.Command{
		Use:     "add <name>",
		Short:   "Create a strategy",
		Example: `  journal strategy add "Breakout" --description "Close above 52 week high on volume"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			st, err := app.Ledger.CreateStrategy(ctx, app.UserID, args[0], description)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(st)
			}
			output.Success("✓ Strategy %q created", st.Name)
			output.Dim("ID: %s", st.ID)
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "what the strategy trades")

	list := &cobra.Command{
		Use:   "list",
		Short: "List strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			strategies, err := app.Ledger.ListStrategies(ctx, app.UserID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if strategies == nil {
					strategies = []models.Strategy{}
				}
				return output.JSON(strategies)
			}
			if len(strategies) == 0 {
				output.Info("No strategies defined.")
				return nil
			}

			table := NewTable(output, "Name", "Description", "ID")
			for _, st := range strategies {
				table.AddRow(st.Name, TruncateString(st.Description, 40), st.ID)
			}
			table.Render()
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a strategy; its trades stay untagged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := app.Ledger.DeleteStrategy(ctx, app.UserID, args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("✓ Strategy %s deleted", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, del)
	rootCmd.AddCommand(cmd)
}
