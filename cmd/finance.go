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

var financeCmd = &cobra.Command{
	Use:     "finance",
	Aliases: []string{"fin"},
	Short:   "Money pools and the transaction ledger",
	GroupID: "records",
}

var financeAccountCmd = &cobra.Command{
	Use:   "account [NAME]",
	Short: "List accounts, or add one when NAME is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if len(args) == 1 {
			a.pullBeforeMutation(cmd.Context())
			currency, _ := cmd.Flags().GetString("currency")
			var added models.FinancialAccount
			err := a.state.UpdateFinance(func(accts []models.FinancialAccount, txs []models.Transaction) ([]models.FinancialAccount, []models.Transaction, error) {
				out, acct, err := finance.AddAccount(accts, args[0], currency)
				added = acct
				return out, txs, err
			})
			if err != nil {
				return err
			}
			a.flushAfterMutation(cmd.Context())
			output.Success("Added account %s (%s)", added.Name, added.ID)
			return nil
		}

		accts := a.state.Accounts()
		if jsonOutput(cmd) {
			return output.JSON(accts)
		}
		for _, acct := range accts {
			fmt.Printf("%-12s %-20s %s\n", acct.ID, acct.Name, output.FormatMoney(acct.Balance, acct.Currency))
		}
		return nil
	},
}

var financeRecordCmd = &cobra.Command{
	Use:   "record income|expense AMOUNT",
	Short: "Record a transaction and move the account balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var typ models.TransactionType
		switch strings.ToLower(args[0]) {
		case "income", "in":
			typ = models.TransactionIncome
		case "expense", "out":
			typ = models.TransactionExpense
		default:
			return finance.ErrInvalidType
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = time.Now().Format(time.DateOnly)
		} else if _, err := time.Parse(time.DateOnly, date); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		tx := models.Transaction{Type: typ, Amount: amount, Date: date}
		tx.AccountID, _ = cmd.Flags().GetString("account")
		tx.Category, _ = cmd.Flags().GetString("category")
		tx.Comment, _ = cmd.Flags().GetString("comment")
		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			c, err := finance.ResolveClient(a.state.Clients(), ref)
			if err != nil {
				return err
			}
			tx.ClientID, tx.ClientTaxID = c.ID, c.TaxID
		}

		var recorded models.Transaction
		err = a.state.UpdateFinance(func(accts []models.FinancialAccount, txs []models.Transaction) ([]models.FinancialAccount, []models.Transaction, error) {
			outA, outT, err := finance.Record(accts, txs, tx)
			if err == nil {
				recorded = outT[len(outT)-1]
			}
			return outA, outT, err
		})
		if err != nil {
			return err
		}
		a.flushAfterMutation(cmd.Context())

		if jsonOutput(cmd) {
			return output.JSON(recorded)
		}
		output.Success("Recorded %s %s (%s)", strings.ToLower(string(recorded.Type)), output.FormatMoney(recorded.Amount, ""), recorded.ID)
		return nil
	},
}

var financeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		txs := a.state.Transactions()
		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			c, err := finance.ResolveClient(a.state.Clients(), ref)
			if err != nil {
				return err
			}
			var filtered []models.Transaction
			for _, tx := range txs {
				if tx.ClientID == c.ID || (c.TaxID != "" && tx.ClientTaxID == c.TaxID) {
					filtered = append(filtered, tx)
				}
			}
			txs = filtered
			defer func() {
				s := finance.StatsFor(c, a.state.Transactions())
				fmt.Printf("\n%s: paid %s of %s (%d%%), outstanding %s\n", c.Name,
					output.FormatMoney(s.TotalIncome, ""), output.FormatMoney(s.ContractTotal, ""),
					s.PayPercent, output.FormatMoney(s.Debt, ""))
			}()
		}

		if jsonOutput(cmd) {
			if txs == nil {
				txs = []models.Transaction{}
			}
			return output.JSON(txs)
		}
		if len(txs) == 0 {
			fmt.Println("No transactions")
			return nil
		}
		for _, tx := range txs {
			sign := "+"
			if tx.Type == models.TransactionExpense {
				sign = "-"
			}
			line := fmt.Sprintf("%s  %s%-14s %-10s", tx.Date, sign, output.FormatMoney(tx.Amount, ""), tx.Category)
			if tx.AccountID != "" {
				line += "  " + tx.AccountID
			}
			if tx.Comment != "" {
				line += "  " + tx.Comment
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	financeAccountCmd.Flags().String("currency", "KZT", "Currency for a new account")

	financeRecordCmd.Flags().String("account", "", "Account id whose balance moves")
	financeRecordCmd.Flags().String("client", "", "Client id or tax id")
	financeRecordCmd.Flags().String("category", "", "Category")
	financeRecordCmd.Flags().String("date", "", "Date (YYYY-MM-DD, default today)")
	financeRecordCmd.Flags().String("comment", "", "Comment")

	financeListCmd.Flags().String("client", "", "Only this client's transactions, with payment totals")

	financeCmd.AddCommand(financeAccountCmd, financeRecordCmd, financeListCmd)
	rootCmd.AddCommand(financeCmd)
}
