package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/deathcert/registry/pkg/client"
	"github.com/spf13/cobra"
)

// ── submit ───────────────────────────────────────────────────────────────────

var (
	submitRecordFile string
	submitDocument   string
	submitIC         string
	submitSubmitter  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a death record or certificate document for approval",
	Long: `Submit pins a death record (a JSON file) or a certificate document and
queues it for approval by an authority.

  certctl submit --record record.json
  certctl submit --document certificate.pdf --ic 900101-14-5678`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitRecordFile, "record", "", "JSON file holding the death record")
	submitCmd.Flags().StringVar(&submitDocument, "document", "", "Certificate document to upload instead of a record")
	submitCmd.Flags().StringVar(&submitIC, "ic", "", "IC number of the deceased (with --document)")
	submitCmd.Flags().StringVar(&submitSubmitter, "submitter", "", "Submitter account address (defaults to the registry wallet)")
	submitCmd.MarkFlagsMutuallyExclusive("record", "document")
	submitCmd.MarkFlagsOneRequired("record", "document")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	c := newClient()

	var (
		sub *client.Submission
		err error
	)
	if submitRecordFile != "" {
		data, rerr := os.ReadFile(submitRecordFile)
		if rerr != nil {
			return fmt.Errorf("read record: %w", rerr)
		}
		var rec client.DeathRecord
		if rerr := json.Unmarshal(data, &rec); rerr != nil {
			return fmt.Errorf("parse record %s: %w", submitRecordFile, rerr)
		}
		sub, err = c.Submit(ctx, rec, submitSubmitter)
	} else {
		if submitIC == "" {
			return fmt.Errorf("--ic is required with --document")
		}
		data, rerr := os.ReadFile(submitDocument)
		if rerr != nil {
			return fmt.Errorf("read document: %w", rerr)
		}
		sub, err = c.SubmitDocument(ctx, submitIC, filepath.Base(submitDocument), data, submitSubmitter)
	}
	if err != nil {
		return err
	}

	if outFormat == "json" {
		return printJSON(sub)
	}
	fmt.Println(sub.Message)
	fmt.Printf("  IC:      %s\n", sub.Pending.IC)
	fmt.Printf("  CID:     %s\n", sub.Pending.ContentAddress)
	fmt.Printf("  Gateway: %s\n", sub.GatewayURL)
	return nil
}

// ── lookup ───────────────────────────────────────────────────────────────────

var lookupCmd = &cobra.Command{
	Use:   "lookup <ic>",
	Short: "Look up the certificate recorded for an IC number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		cert, err := newClient().Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(cert)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "IC\t%s\n", cert.IC)
		fmt.Fprintf(w, "Certificate ID\t%s\n", cert.ID)
		fmt.Fprintf(w, "Valid\t%t\n", cert.IsValid)
		fmt.Fprintf(w, "CID\t%s\n", cert.ContentAddress)
		fmt.Fprintf(w, "Submitter\t%s\n", cert.SubmitterAddress)
		fmt.Fprintf(w, "Recorded\t%s\n", cert.Timestamp.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(w, "Document\t%s\n", cert.GatewayURL)
		return w.Flush()
	},
}
