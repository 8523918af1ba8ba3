package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/audit"
	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/importexport"
)

var (
	importKeychain string
	askPassphrase  bool
)

func isPKCS12(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return true
	}
	return false
}

func passphraseFor(path string) (string, error) {
	if !askPassphrase && !isPKCS12(path) {
		return "", nil
	}
	b, err := readSecret("Passphrase for " + filepath.Base(path) + ": ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Import and inspect certificates and identities",
}

var certImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a DER, PEM or PKCS#12 file into a keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		passphrase, err := passphraseFor(path)
		if err != nil {
			return err
		}
		kc, err := openUnlocked(importKeychain)
		if err != nil {
			return err
		}
		defer kc.Close()
		kcPath, _ := kc.Path()

		auditLog, err := audit.NewLogger(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer auditLog.Close()

		entry := audit.Entry{Action: audit.ActionImport, Key: filepath.Base(path), Keychain: kcPath, Actor: "cli", Trigger: "manual"}
		res, err := loadFile(path, passphrase, kc)
		if err != nil {
			entry.Error = err.Error()
			auditLog.Log(entry)
			return err
		}
		defer res.Close()
		if err := auditLog.Log(entry); err != nil {
			return fmt.Errorf("writing audit log: %w", err)
		}

		fmt.Printf("Imported %d identities, %d certificates, %d keys into %s\n",
			len(res.Identities), len(res.Certificates), len(res.Keys), kcPath)
		return nil
	},
}

var certShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Describe the certificates in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if isPKCS12(path) {
			return showPKCS12(path)
		}
		list, err := loadCertificates(path)
		if err != nil {
			return err
		}
		defer cf.CloseAll(list)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for i, c := range list {
			if i > 0 {
				fmt.Fprintln(w)
			}
			describeCertificate(w, c)
		}
		return w.Flush()
	},
}

func showPKCS12(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	passphrase, err := passphraseFor(path)
	if err != nil {
		return err
	}
	entries, err := importexport.PKCS12(service(), data, passphrase)
	if err != nil {
		return err
	}
	defer func() {
		for _, e := range entries {
			e.Close()
		}
	}()
	if len(entries) == 0 {
		fmt.Println("No identities in archive")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Label:\t%s\n", orDash(e.Label))
		fmt.Fprintf(w, "Key ID:\t%x\n", e.KeyID)
		if e.Trust != nil {
			result, err := e.Trust.Evaluate()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Trust:\t%s\n", result)
		}
		for _, c := range e.Chain {
			describeCertificate(w, c)
		}
	}
	return w.Flush()
}

func describeCertificate(w *tabwriter.Writer, c *certs.Certificate) {
	fmt.Fprintf(w, "Subject:\t%s\n", c.SubjectSummary())
	if cn, err := c.CommonName(); err == nil {
		fmt.Fprintf(w, "Common name:\t%s\n", orDash(cn))
	}
	if emails, err := c.EmailAddresses(); err == nil && len(emails) > 0 {
		fmt.Fprintf(w, "Email:\t%s\n", strings.Join(emails, ", "))
	}
	if serial, err := c.SerialNumber(); err == nil {
		fmt.Fprintf(w, "Serial:\t%x\n", serial)
	}
	if x, err := c.X509(); err == nil {
		fmt.Fprintf(w, "Issuer:\t%s\n", x.Issuer)
		fmt.Fprintf(w, "Valid:\t%s to %s\n", x.NotBefore.Format(time.DateOnly), x.NotAfter.Format(time.DateOnly))
		if len(x.DNSNames) > 0 {
			fmt.Fprintf(w, "DNS names:\t%s\n", strings.Join(x.DNSNames, ", "))
		}
	}
	if k, err := c.PublicKey(); err == nil {
		fmt.Fprintf(w, "Key:\t%s %d\n", k.Type(), k.Bits())
		k.Close()
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	certImportCmd.Flags().StringVar(&importKeychain, "keychain", "", "keychain file (default from config)")
	certCmd.PersistentFlags().BoolVar(&askPassphrase, "passphrase", false, "prompt for a passphrase even for non-PKCS#12 files")

	certCmd.AddCommand(certImportCmd)
	certCmd.AddCommand(certShowCmd)
	rootCmd.AddCommand(certCmd)
}
