package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/finance"
	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/output"
)

var clientCmd = &cobra.Command{
	Use:     "client",
	Aliases: []string{"clients"},
	Short:   "Manage clients",
	GroupID: "records",
}

var clientAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("client name is required")
		}
		amountStr, _ := cmd.Flags().GetString("contract-amount")
		amount := decimal.Zero
		if amountStr != "" {
			var err error
			if amount, err = decimal.NewFromString(amountStr); err != nil {
				return fmt.Errorf("invalid contract amount %q", amountStr)
			}
		}

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		c := models.Client{
			ID:             models.NewID("c_"),
			Name:           name,
			ContractAmount: amount,
			Balance:        decimal.Zero,
			CreatedAt:      time.Now().UTC(),
		}
		c.TaxID, _ = cmd.Flags().GetString("tax-id")
		c.Phone, _ = cmd.Flags().GetString("phone")
		c.Email, _ = cmd.Flags().GetString("email")
		c.Address, _ = cmd.Flags().GetString("address")
		c.ContractNumber, _ = cmd.Flags().GetString("contract")

		if c.TaxID != "" {
			if existing, err := finance.ResolveClient(a.state.Clients(), c.TaxID); err == nil && existing.TaxID == c.TaxID {
				return fmt.Errorf("client with tax id %s already exists: %s", c.TaxID, existing.Name)
			}
		}

		if err := a.state.UpdateClients(func(cs []models.Client) []models.Client {
			return append(cs, c)
		}); err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		a.flushAfterMutation(cmd.Context())

		if jsonOutput(cmd) {
			return output.JSON(c)
		}
		output.Success("Added client %s (%s)", c.Name, c.ID)
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clients with payment progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		clients := a.state.Clients()
		txs := a.state.Transactions()

		if jsonOutput(cmd) {
			type row struct {
				models.Client
				Stats finance.ClientStats `json:"stats"`
			}
			rows := make([]row, 0, len(clients))
			for _, c := range clients {
				rows = append(rows, row{Client: c, Stats: finance.StatsFor(c, txs)})
			}
			return output.JSON(rows)
		}

		if len(clients) == 0 {
			fmt.Println("No clients")
			return nil
		}
		for _, c := range clients {
			s := finance.StatsFor(c, txs)
			line := fmt.Sprintf("%-10s %-28s", c.ID, c.Name)
			if c.TaxID != "" {
				line += "  tax " + c.TaxID
			}
			if s.ContractTotal.IsPositive() {
				line += fmt.Sprintf("  paid %s of %s (%d%%)",
					output.FormatMoney(s.TotalIncome, ""), output.FormatMoney(s.ContractTotal, ""), s.PayPercent)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	clientAddCmd.Flags().String("tax-id", "", "Tax identification number")
	clientAddCmd.Flags().String("phone", "", "Phone number")
	clientAddCmd.Flags().String("email", "", "Email address")
	clientAddCmd.Flags().String("address", "", "Street address")
	clientAddCmd.Flags().String("contract", "", "Contract number")
	clientAddCmd.Flags().String("contract-amount", "", "Contract total")

	clientCmd.AddCommand(clientAddCmd, clientListCmd)
	rootCmd.AddCommand(clientCmd)
}
