package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/audit"
	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/trust"
)

var (
	verifyAnchors     []string
	verifyAnchorsOnly bool
	verifyHost        string
	verifyClient      bool
	verifyAt          string

	settingsDomain string
	settingsResult string
	settingsSSL    bool
)

var domains = map[string]trust.Domain{
	"user":   trust.User,
	"admin":  trust.Admin,
	"system": trust.System,
}

var settingResults = map[string]trust.ForCertificate{
	"trust-root":    trust.SettingsTrustRoot,
	"trust-as-root": trust.SettingsTrustAsRoot,
	"deny":          trust.SettingsDeny,
	"unspecified":   trust.SettingsUnspecified,
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Evaluate certificate chains and manage trust settings",
}

var trustVerifyCmd = &cobra.Command{
	Use:   "verify <chain-file>",
	Short: "Evaluate a certificate chain, leaf first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, err := loadCertificates(args[0])
		if err != nil {
			return err
		}
		defer cf.CloseAll(chain)

		policy := certs.NewBasicX509Policy(service())
		if verifyHost != "" || verifyClient {
			side := certs.ServerPolicy
			if verifyClient {
				side = certs.ClientPolicy
			}
			policy.Close()
			policy = certs.NewSSLPolicy(service(), side, verifyHost)
		}
		defer policy.Close()

		t, err := trust.New(chain, policy)
		if err != nil {
			return err
		}
		defer t.Close()

		var anchors []*certs.Certificate
		defer func() { cf.CloseAll(anchors) }()
		for _, path := range verifyAnchors {
			list, err := loadCertificates(path)
			if err != nil {
				return err
			}
			anchors = append(anchors, list...)
		}
		if len(anchors) > 0 {
			if err := t.SetAnchors(anchors); err != nil {
				return err
			}
			if err := t.SetAnchorsOnly(verifyAnchorsOnly); err != nil {
				return err
			}
		}
		if verifyAt != "" {
			at, err := time.Parse(time.DateOnly, verifyAt)
			if err != nil {
				return fmt.Errorf("parsing --at: %w", err)
			}
			if err := t.SetVerifyDate(at); err != nil {
				return err
			}
		}

		result, err := t.Evaluate()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Result:\t%s\n", result)
		for i := 0; i < t.CertificateCount(); i++ {
			if c, ok := t.CertificateAt(i); ok {
				fmt.Fprintf(w, "  %d:\t%s\n", i, c.SubjectSummary())
			}
		}
		w.Flush()

		if !result.Success() {
			return fmt.Errorf("chain not trusted: %w", t.EvaluateWithError())
		}
		return nil
	},
}

var trustSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage per-certificate trust settings",
}

func settingsFor() (*trust.Settings, error) {
	d, ok := domains[settingsDomain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q (want user, admin or system)", settingsDomain)
	}
	return trust.NewSettings(service(), d), nil
}

var trustSettingsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List certificates with trust settings",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settingsFor()
		if err != nil {
			return err
		}
		list, err := s.Certificates()
		if err != nil {
			return err
		}
		defer cf.CloseAll(list)
		if len(list) == 0 {
			fmt.Printf("No trust settings in the %s domain\n", settingsDomain)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SUBJECT\tTLS SERVER")
		for _, c := range list {
			result, _, err := s.TLSTrustSettingsForCertificate(c)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n", c.SubjectSummary(), result)
		}
		return w.Flush()
	},
}

var trustSettingsSetCmd = &cobra.Command{
	Use:   "set <cert-file>",
	Short: "Record trust settings for a certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, ok := settingResults[settingsResult]
		if !ok {
			return fmt.Errorf("unknown result %q", settingsResult)
		}
		s, err := settingsFor()
		if err != nil {
			return err
		}
		list, err := loadCertificates(args[0])
		if err != nil {
			return err
		}
		defer cf.CloseAll(list)

		var entries []trust.Entry
		if result != trust.SettingsTrustRoot || settingsSSL {
			e := trust.Entry{Result: result, HasResult: true}
			if settingsSSL {
				e.Policy = certs.NewSSLPolicy(service(), certs.ServerPolicy, "")
				defer e.Policy.Close()
			}
			entries = append(entries, e)
		}
		err = s.SetTrustSettings(list[0], entries)
		logTrustChange(args[0], err)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", list[0].SubjectSummary(), result)
		return nil
	},
}

var trustSettingsRemoveCmd = &cobra.Command{
	Use:     "remove <cert-file>",
	Short:   "Remove the trust settings of a certificate",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settingsFor()
		if err != nil {
			return err
		}
		list, err := loadCertificates(args[0])
		if err != nil {
			return err
		}
		defer cf.CloseAll(list)

		err = s.RemoveTrustSettings(list[0])
		logTrustChange(args[0], err)
		return err
	},
}

// logTrustChange records a settings change. Audit failures are reported but
// do not fail the command.
func logTrustChange(path string, changeErr error) {
	auditLog, err := audit.NewLogger(cfg.AuditLog)
	if err == nil {
		defer auditLog.Close()
		entry := audit.Entry{Action: audit.ActionTrustSettings, Key: filepath.Base(path), Actor: "cli", Trigger: "manual"}
		if changeErr != nil {
			entry.Error = changeErr.Error()
		}
		err = auditLog.Log(entry)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "writing audit log: %v\n", err)
	}
}

func init() {
	trustVerifyCmd.Flags().StringSliceVar(&verifyAnchors, "anchor", nil, "file of anchor certificates (repeatable)")
	trustVerifyCmd.Flags().BoolVar(&verifyAnchorsOnly, "anchors-only", true, "ignore system roots when anchors are given")
	trustVerifyCmd.Flags().StringVar(&verifyHost, "host", "", "check the leaf as a TLS server for this host")
	trustVerifyCmd.Flags().BoolVar(&verifyClient, "client", false, "check the leaf as a TLS client certificate")
	trustVerifyCmd.Flags().StringVar(&verifyAt, "at", "", "evaluate validity on this date (YYYY-MM-DD)")

	trustSettingsCmd.PersistentFlags().StringVar(&settingsDomain, "domain", "user", "settings domain: user, admin or system")
	trustSettingsSetCmd.Flags().StringVar(&settingsResult, "result", "trust-root", "trust-root, trust-as-root, deny or unspecified")
	trustSettingsSetCmd.Flags().BoolVar(&settingsSSL, "ssl-only", false, "limit the setting to TLS server evaluation")

	trustSettingsCmd.AddCommand(trustSettingsListCmd)
	trustSettingsCmd.AddCommand(trustSettingsSetCmd)
	trustSettingsCmd.AddCommand(trustSettingsRemoveCmd)
	trustCmd.AddCommand(trustVerifyCmd)
	trustCmd.AddCommand(trustSettingsCmd)
	rootCmd.AddCommand(trustCmd)
}
