package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
)

var keychainCmd = &cobra.Command{
	Use:   "keychain",
	Short: "Create, lock, unlock and delete keychain files",
}

var keychainCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a keychain protected by a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readNewSecret("New keychain password: ")
		if err != nil {
			return err
		}
		kc, err := keychain.Create(service(), args[0], password)
		if err != nil {
			return err
		}
		defer kc.Close()
		path, err := kc.Path()
		if err != nil {
			return err
		}
		fmt.Printf("Keychain created at %s\n", path)
		return nil
	},
}

var keychainLockCmd = &cobra.Command{
	Use:   "lock [path]",
	Short: "Lock a keychain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := openKeychain(firstArg(args))
		if err != nil {
			return err
		}
		defer kc.Close()
		if err := kc.Lock(); err != nil {
			return err
		}
		fmt.Println("Keychain locked")
		return nil
	},
}

var keychainUnlockCmd = &cobra.Command{
	Use:   "unlock [path]",
	Short: "Unlock a keychain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := openKeychain(firstArg(args))
		if err != nil {
			return err
		}
		defer kc.Close()

		password, err := readSecret("Keychain password: ")
		if err != nil {
			return err
		}
		if err := kc.Unlock(password); err != nil {
			return err
		}
		fmt.Println("Keychain unlocked")
		return nil
	},
}

var keychainDeleteCmd = &cobra.Command{
	Use:     "delete <path>",
	Short:   "Delete a keychain file",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := keychain.Open(service(), args[0])
		if err != nil {
			return err
		}
		defer kc.Close()
		if err := kc.Delete(); err != nil {
			return err
		}
		fmt.Printf("Keychain %s deleted\n", args[0])
		return nil
	},
}

var keychainPathCmd = &cobra.Command{
	Use:   "path [path]",
	Short: "Print the resolved path and status of a keychain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := openKeychain(firstArg(args))
		if err != nil {
			return err
		}
		defer kc.Close()

		path, err := kc.Path()
		if err != nil {
			return err
		}
		st, err := kc.Status()
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", path, describeStatus(st))
		return nil
	},
}

var keychainWatchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Print a line each time a keychain file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := openKeychain(firstArg(args))
		if err != nil {
			return err
		}
		defer kc.Close()
		path, err := kc.Path()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Printf("Watching %s\n", path)
		return keychain.Watch(ctx, kc, func(c keychain.Change) {
			fmt.Printf("%s\tchanged\t%s\n", time.Now().Format(time.TimeOnly), c.Path)
		})
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func describeStatus(st keychain.Status) string {
	if st&native.KeychainUnlocked == 0 {
		return "locked"
	}
	s := "unlocked"
	if st&native.KeychainWritable == 0 {
		s += ", read-only"
	}
	return s
}

func init() {
	keychainCmd.AddCommand(keychainCreateCmd)
	keychainCmd.AddCommand(keychainLockCmd)
	keychainCmd.AddCommand(keychainUnlockCmd)
	keychainCmd.AddCommand(keychainDeleteCmd)
	keychainCmd.AddCommand(keychainPathCmd)
	keychainCmd.AddCommand(keychainWatchCmd)
	rootCmd.AddCommand(keychainCmd)
}
