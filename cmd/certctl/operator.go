package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/deathcert/registry/internal/auth"
	"github.com/deathcert/registry/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func tokenPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".certctl", "token")
}

// operatorToken returns the token from CERTCTL_TOKEN, the config file, or
// the file saved by login, in that order.
func operatorToken() string {
	if tok := viper.GetString("token"); tok != "" {
		return tok
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readSecret(prompt string) (string, error) {
	if s := os.Getenv("CERTCTL_OPERATOR_SECRET"); s != "" {
		return s, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ── login ────────────────────────────────────────────────────────────────────

var loginOperator string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange the operator secret for a token and save it",
	Long: `Login reads the operator secret from CERTCTL_OPERATOR_SECRET or stdin,
obtains an operator token and saves it to ~/.certctl/token.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, err := readSecret("Operator secret: ")
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		c := client.New(registryURL, client.WithTimeout(timeout))
		if err := c.Login(ctx, loginOperator, secret); err != nil {
			return err
		}
		path := tokenPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(c.Token()+"\n"), 0o600); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Printf("Logged in as %s. Token saved to %s\n", loginOperator, path)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginOperator, "operator", os.Getenv("USER"), "Operator name recorded in the audit log")
}

// ── hash-secret ──────────────────────────────────────────────────────────────

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret",
	Short: "Print the bcrypt hash to configure as auth.operator_secret_hash",
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, err := readSecret("New operator secret: ")
		if err != nil {
			return err
		}
		hash, err := auth.HashSecret(secret)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

// ── pending ──────────────────────────────────────────────────────────────────

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List, approve or delete pending certificates",
	RunE:  runPendingList,
}

var pendingApproveCmd = &cobra.Command{
	Use:   "approve <cid>",
	Short: "Record a pending certificate on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := newClient().Approve(ctx, args[0])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(res)
		}
		if res.Status == client.StatusDeclined {
			fmt.Println("Transaction was rejected in the wallet. The certificate is still pending.")
			return nil
		}
		fmt.Println(res.Message)
		return nil
	},
}

var pendingDeleteYes bool

var pendingDeleteCmd = &cobra.Command{
	Use:   "delete <cid>",
	Short: "Remove a pending certificate from the queue (nothing is sent to the ledger)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !pendingDeleteYes {
			fmt.Fprintf(os.Stderr, "Delete pending certificate %s? [y/N] ", args[0])
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(line)); a != "y" && a != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := newClient().DeletePending(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	pendingDeleteCmd.Flags().BoolVarP(&pendingDeleteYes, "yes", "y", false, "Skip the confirmation prompt")
	pendingCmd.AddCommand(pendingApproveCmd, pendingDeleteCmd)
}

func runPendingList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	views, err := newClient().ListPending(ctx)
	if err != nil {
		return err
	}
	if outFormat == "json" {
		return printJSON(views)
	}
	if len(views) == 0 {
		fmt.Println("No pending certificates.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IC\tCID\tSTATUS\tSUBMITTED\tSUBMITTER")
	for _, v := range views {
		status := v.Status
		if v.InFlight {
			status += " (in flight)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.IC, v.ContentAddress, status,
			v.CreatedAt.Local().Format("2006-01-02 15:04"), v.SubmitterAddress)
	}
	return w.Flush()
}

// ── roles ────────────────────────────────────────────────────────────────────

var rolesCmd = &cobra.Command{
	Use:   "roles <address> | roles <grantAuthority|revokeAuthority|grantFamily|revokeFamily> <address>",
	Short: "Check or change the ledger roles of an account",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c := newClient()

		if len(args) == 2 {
			res, err := c.ManageRole(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if outFormat == "json" {
				return printJSON(res)
			}
			fmt.Println(res.Message)
			return nil
		}

		roles, err := c.CheckRoles(ctx, args[0])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(roles)
		}
		fmt.Printf("Admin:     %t\nAuthority: %t\nFamily:    %t\n", roles.IsAdmin, roles.IsAuthority, roles.IsFamily)
		return nil
	},
}

// ── wallet ───────────────────────────────────────────────────────────────────

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show the registry wallet's accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		wl, err := newClient().Wallet(ctx)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(wl)
		}
		for i, a := range wl.Accounts {
			marker := " "
			if i == 0 {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, a)
		}
		return nil
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var (
	auditFrom  int
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		page, err := newClient().Audit(ctx, auditFrom, auditLimit)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(page)
		}
		fmt.Printf("%d entries, root %s\n\n", page.Count, page.Root)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTIME\tACTION\tSUBJECT\tACTOR")
		for _, e := range page.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Index, e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Subject, e.Actor)
		}
		return w.Flush()
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the audit chain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		v, err := newClient().VerifyAudit(ctx)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(v)
		}
		if !v.Valid {
			return fmt.Errorf("audit chain broken at entry %d: %s", v.BrokenIndex, v.Error)
		}
		fmt.Println("Audit chain is intact.")
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditFrom, "from", 0, "First entry index")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to show")
	auditCmd.AddCommand(auditVerifyCmd)
}
