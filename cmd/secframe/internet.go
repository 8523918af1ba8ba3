package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/passwords"
)

var (
	inetPort     int
	inetProtocol string
	inetPath     string
	inetDomain   string
)

var protocols = map[string]string{
	"http":  native.ProtocolHTTP,
	"https": native.ProtocolHTTPS,
	"ftp":   native.ProtocolFTP,
	"ssh":   native.ProtocolSSH,
	"smtp":  native.ProtocolSMTP,
	"imap":  native.ProtocolIMAP,
	"ldap":  native.ProtocolLDAP,
}

func internetPassword(args []string) (passwords.InternetPassword, error) {
	p := passwords.InternetPassword{
		Server:         args[0],
		Account:        args[1],
		SecurityDomain: inetDomain,
		Path:           inetPath,
		Port:           inetPort,
	}
	if inetProtocol != "" {
		proto, ok := protocols[inetProtocol]
		if !ok {
			return p, fmt.Errorf("unknown protocol %q", inetProtocol)
		}
		p.Protocol = proto
	}
	return p, nil
}

// withInternetPassword opens the target keychain and resolves the flags.
func withInternetPassword(args []string, fn func(p passwords.InternetPassword, opt passwords.Option) error) error {
	p, err := internetPassword(args)
	if err != nil {
		return err
	}
	kc, err := openUnlocked(passwordKeychain)
	if err != nil {
		return err
	}
	defer kc.Close()
	return fn(p, passwords.InKeychain(kc))
}

var internetCmd = &cobra.Command{
	Use:   "internet",
	Short: "Manage internet passwords",
}

var internetSetCmd = &cobra.Command{
	Use:   "set <server> <account>",
	Short: "Store an internet password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret("Enter password: ")
		if err != nil {
			return err
		}
		return withInternetPassword(args, func(p passwords.InternetPassword, opt passwords.Option) error {
			if err := passwords.SetInternetPassword(service(), p, secret, opt); err != nil {
				return err
			}
			fmt.Printf("Password for %s@%s stored\n", p.Account, p.Server)
			return nil
		})
	},
}

var internetGetCmd = &cobra.Command{
	Use:   "get <server> <account>",
	Short: "Print an internet password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInternetPassword(args, func(p passwords.InternetPassword, opt passwords.Option) error {
			secret, err := passwords.FindInternetPassword(service(), p, opt)
			if err != nil {
				return err
			}
			fmt.Println(string(secret))
			return nil
		})
	},
}

var internetDeleteCmd = &cobra.Command{
	Use:     "delete <server> <account>",
	Short:   "Remove an internet password",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInternetPassword(args, func(p passwords.InternetPassword, opt passwords.Option) error {
			if err := passwords.DeleteInternetPassword(service(), p, opt); err != nil {
				return err
			}
			fmt.Printf("Password for %s@%s deleted\n", p.Account, p.Server)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{internetSetCmd, internetGetCmd, internetDeleteCmd} {
		c.Flags().IntVar(&inetPort, "port", 0, "port")
		c.Flags().StringVar(&inetProtocol, "protocol", "", "protocol: http, https, ftp, ssh, smtp, imap or ldap")
		c.Flags().StringVar(&inetPath, "path", "", "path on the server")
		c.Flags().StringVar(&inetDomain, "security-domain", "", "security domain (realm)")
		internetCmd.AddCommand(c)
	}
	passwordCmd.AddCommand(internetCmd)
}
