package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds workflow documentation commands.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newQuickstartCmd())
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "examples",
		Short:       "Show common workflow examples",
		Long:        "Display examples of common journaling workflows.",
		Annotations: map[string]string{skipStoreAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Fund the Portfolio",
					commands: []string{
						"journal portfolio settings --capital 100000  # Starting capital",
						"journal portfolio deposit 25000 --note 'Salary'",
						"journal portfolio withdraw 5000             # Reduce cash",
						"journal portfolio balance                   # Reconciled balance",
					},
				},
				{
					title: "Journal a Swing Trade",
					commands: []string{
						"journal strategy add Breakout               # Name the setup",
						"journal trade add NABIL --price 1250 --qty 20 --stop-loss 1200 --target 1400",
						"journal trade list --status OPEN            # Open trades",
						"journal trade close <id> --price 1380       # Realize the P&L",
					},
				},
				{
					title: "Fix a Mistake",
					commands: []string{
						"journal portfolio txn list                  # Find the transaction",
						"journal portfolio txn delete <id>           # Balance is recomputed",
						"journal trade update <id> --exit-price 1375 # Correct an exit",
					},
				},
				{
					title: "Weekly Review",
					commands: []string{
						"journal portfolio show                      # Dashboard",
						"journal portfolio history --chart           # Balance curve",
						"journal stats --monthly --chart             # Performance",
					},
				},
				{
					title: "Export and Repair",
					commands: []string{
						"journal export trades --format csv",
						"journal export transactions -o - --format json",
						"journal admin recalculate                   # Repair stale balances",
					},
				},
				{
					title: "Run the API",
					commands: []string{
						"journal serve --addr 127.0.0.1:8080",
						"curl localhost:8080/api/users/default/balance",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}

			return nil
		},
	}
}

func newQuickstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "quickstart",
		Short:       "New user guide",
		Long:        "Step-by-step guide for new users.",
		Annotations: map[string]string{skipStoreAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("NEPSE Journal - Quick Start Guide")
			output.Println()

			steps := []struct {
				step  int
				title string
				desc  string
				cmd   string
			}{
				{
					step:  1,
					title: "Review the Configuration",
					desc:  "A commented config.toml is written on first run.",
					cmd:   "journal config path",
				},
				{
					step:  2,
					title: "Set Your Starting Capital",
					desc:  "Creates the portfolio and starts tracking the balance.",
					cmd:   "journal portfolio settings --capital 100000",
				},
				{
					step:  3,
					title: "Record Cash Movements",
					desc:  "Deposits add to the balance, withdrawals subtract.",
					cmd:   "journal portfolio deposit 10000",
				},
				{
					step:  4,
					title: "Journal Your Trades",
					desc:  "Only closed trades with an exit price move the balance.",
					cmd:   "journal trade add NICA --price 900 --qty 50",
				},
				{
					step:  5,
					title: "Review",
					desc:  "See the dashboard and your statistics.",
					cmd:   "journal portfolio show && journal stats",
				},
			}

			for _, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), s.step, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Getting Help")
			output.Println()
			output.Printf("  %s - Common workflows\n", output.Cyan("journal examples"))
			output.Printf("  %s - Help for any command\n", output.Cyan("journal help <command>"))
			output.Printf("  %s - Use another journal owner\n", output.Cyan("journal --user <id> ..."))

			return nil
		},
	}
}
