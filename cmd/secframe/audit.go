package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/audit"
)

var (
	auditKey    string
	auditAction string
	auditSince  time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := audit.Filter{Key: auditKey, Action: audit.Action(auditAction)}
		if auditSince > 0 {
			f.Since = time.Now().Add(-auditSince)
		}
		entries, err := audit.Read(cfg.AuditLog, f)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tKEY\tACTOR\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime), e.Action, e.Key, orDash(e.Actor), e.Error)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditKey, "key", "", "only entries for this key")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "only entries with this action, e.g. password_read")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only entries newer than this, e.g. 24h")
	rootCmd.AddCommand(auditCmd)
}
