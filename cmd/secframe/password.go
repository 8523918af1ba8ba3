package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/audit"
	"github.com/benaskins/secframe/internal/config"
	"github.com/benaskins/secframe/internal/passwords"
)

var (
	passwordKeychain string
	rotateEvery      string
	rotateCommand    string
)

// openStore builds the audited password store for the configured backend.
// The returned function releases it.
func openStore() (*passwords.AuditedStore, func(), error) {
	var inner passwords.Store
	release := func() {}

	if cfg.Backend == config.BackendSystem {
		s, err := passwords.NewSystemStore(cfg.Service)
		if err != nil {
			slog.Warn("system password store unavailable, using software store", "error", err)
		} else {
			inner = s
		}
	}
	if inner == nil {
		kc, err := openUnlocked(passwordKeychain)
		if err != nil {
			return nil, nil, err
		}
		inner = passwords.NewKeychainStore(service(), cfg.Service, passwords.InKeychain(kc))
		release = func() { kc.Close() }
	}

	auditLog, err := audit.NewLogger(cfg.AuditLog)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	meta, err := passwords.NewMetadataStore(cfg.MetadataPath())
	if err != nil {
		auditLog.Close()
		release()
		return nil, nil, err
	}

	store := passwords.NewAuditedStore(inner, auditLog, meta, "cli", cfg.Service)
	return store, func() {
		auditLog.Close()
		release()
	}, nil
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage named passwords",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a password",
	Long:  "Store a password. If value is omitted, reads from stdin (useful for piping).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			b, err := readSecret("Enter password: ")
			if err != nil {
				return err
			}
			value = string(b)
		}

		store, release, err := openStore()
		if err != nil {
			return err
		}
		defer release()

		if err := store.Set(key, value); err != nil {
			return err
		}
		if rotateEvery != "" {
			if err := store.SetRotation(key, rotateEvery); err != nil {
				return err
			}
		}
		fmt.Printf("Password %q stored\n", key)
		return nil
	},
}

var passwordGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, release, err := openStore()
		if err != nil {
			return err
		}
		defer release()

		val, err := store.Get(args[0])
		if errors.Is(err, passwords.ErrNotFound) {
			return fmt.Errorf("no password named %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var passwordListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored passwords",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, release, err := openStore()
		if err != nil {
			return err
		}
		defer release()

		keys, err := store.List()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No passwords stored")
			return nil
		}

		due := store.Metadata().Due(time.Now())
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tROTATE EVERY\tLAST ROTATED\tDUE")
		for _, k := range keys {
			every, last := "-", "-"
			if meta := store.Metadata().Get(k); meta != nil {
				if meta.RotateEvery != "" {
					every = meta.RotateEvery
				}
				if !meta.LastRotated.IsZero() {
					last = meta.LastRotated.Local().Format(time.DateTime)
				}
			}
			dueMark := ""
			if slices.Contains(due, k) {
				dueMark = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k, every, last, dueMark)
		}
		return w.Flush()
	},
}

var passwordDeleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Short:   "Remove a password",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, release, err := openStore()
		if err != nil {
			return err
		}
		defer release()

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Password %q deleted\n", args[0])
		return nil
	},
}

var passwordRotateCmd = &cobra.Command{
	Use:   "rotate <key>",
	Short: "Replace a password with the output of a command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if rotateCommand == "" {
			return fmt.Errorf("--command is required")
		}
		store, release, err := openStore()
		if err != nil {
			return err
		}
		defer release()

		if err := store.Rotate(cmd.Context(), args[0], rotateCommand); err != nil {
			return err
		}
		if rotateEvery != "" {
			if err := store.SetRotation(args[0], rotateEvery); err != nil {
				return err
			}
		}
		fmt.Printf("Password %q rotated\n", args[0])
		return nil
	},
}

func init() {
	passwordCmd.PersistentFlags().StringVar(&passwordKeychain, "keychain", "", "keychain file (default from config)")
	passwordSetCmd.Flags().StringVar(&rotateEvery, "rotate-every", "", "rotation interval, e.g. 30d or 12h")
	passwordRotateCmd.Flags().StringVar(&rotateCommand, "command", "", "shell command whose output becomes the new password")
	passwordRotateCmd.Flags().StringVar(&rotateEvery, "every", "", "update the rotation interval")

	passwordCmd.AddCommand(passwordSetCmd)
	passwordCmd.AddCommand(passwordGetCmd)
	passwordCmd.AddCommand(passwordListCmd)
	passwordCmd.AddCommand(passwordDeleteCmd)
	passwordCmd.AddCommand(passwordRotateCmd)
	rootCmd.AddCommand(passwordCmd)
}
