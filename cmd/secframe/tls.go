package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/securetransport"
)

var (
	tlsALPN       []string
	tlsAnchors    []string
	tlsIdentity   string
	tlsServerName string
	tlsInsecure   bool
	tlsNoSNI      bool
	tlsTimeout    time.Duration
	tlsSend       string
	tlsAddr       string
	tlsClientCA   []string
)

// identityFrom loads the first identity in path together with the rest of
// its certificates as the chain. The caller closes both.
func identityFrom(path string) (*certs.Identity, []*certs.Certificate, error) {
	passphrase, err := passphraseFor(path)
	if err != nil {
		return nil, nil, err
	}
	res, err := loadFile(path, passphrase, nil)
	if err != nil {
		return nil, nil, err
	}
	defer res.Close()
	if len(res.Identities) == 0 {
		return nil, nil, fmt.Errorf("%s holds no certificate with its private key", path)
	}
	chain := make([]*certs.Certificate, len(res.Certificates))
	for i, c := range res.Certificates {
		chain[i] = c.Clone()
	}
	return res.Identities[0].Clone(), chain, nil
}

func loadAnchors(paths []string) ([]*certs.Certificate, error) {
	var out []*certs.Certificate
	for _, path := range paths {
		list, err := loadCertificates(path)
		if err != nil {
			cf.CloseAll(out)
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// closeFailed releases the context a failed handshake leaves behind.
func closeFailed(err error) {
	var he *securetransport.HandshakeError
	if errors.As(err, &he) && he.Context != nil {
		he.Context.Close()
	}
}

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "Open TLS connections with the secure transport",
}

var tlsConnectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Handshake with a server and describe the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := args[0]
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return err
		}
		if tlsServerName != "" {
			host = tlsServerName
		}

		b := securetransport.NewClientBuilder(service()).
			ALPN(tlsALPN...).
			UseSNI(!tlsNoSNI).
			DangerAcceptInvalidCerts(tlsInsecure)
		anchors, err := loadAnchors(tlsAnchors)
		if err != nil {
			return err
		}
		defer cf.CloseAll(anchors)
		if len(anchors) > 0 {
			b.Anchors(anchors...)
		}
		if tlsIdentity != "" {
			id, chain, err := identityFrom(tlsIdentity)
			if err != nil {
				return err
			}
			defer id.Close()
			defer cf.CloseAll(chain)
			b.Identity(id, chain...)
		}

		conn, err := net.DialTimeout("tcp", addr, tlsTimeout)
		if err != nil {
			return err
		}
		conn.SetDeadline(time.Now().Add(tlsTimeout))

		s, err := b.Handshake(host, conn)
		if err != nil {
			closeFailed(err)
			conn.Close()
			return err
		}
		defer s.Close()

		if err := describeSession(s); err != nil {
			return err
		}
		if tlsSend == "" {
			return nil
		}
		if _, err := io.WriteString(s, strings.ReplaceAll(tlsSend, `\n`, "\n")); err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, s)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		return err
	},
}

func describeSession(s *securetransport.Stream) error {
	ctx := s.Context()
	version, err := ctx.NegotiatedProtocolVersion()
	if err != nil {
		return err
	}
	alpn, err := ctx.ALPNProtocols()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Protocol:\t%s\n", securetransport.VersionName(version))
	fmt.Fprintf(w, "ALPN:\t%s\n", orDash(strings.Join(alpn, ",")))
	if t, err := ctx.PeerTrust(); err == nil && t != nil {
		for i := 0; i < t.CertificateCount(); i++ {
			if c, ok := t.CertificateAt(i); ok {
				fmt.Fprintf(w, "Peer %d:\t%s\n", i, c.SubjectSummary())
			}
		}
		t.Close()
	}
	return w.Flush()
}

var tlsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept TLS connections and echo what clients send",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tlsIdentity == "" {
			return fmt.Errorf("--identity is required")
		}
		id, chain, err := identityFrom(tlsIdentity)
		if err != nil {
			return err
		}
		defer id.Close()
		defer cf.CloseAll(chain)

		b := securetransport.NewServerBuilder(id, chain...).ALPN(tlsALPN...)
		clientCAs, err := loadAnchors(tlsClientCA)
		if err != nil {
			return err
		}
		defer cf.CloseAll(clientCAs)
		if len(clientCAs) > 0 {
			b.ClientAuth(securetransport.AlwaysAuthenticate).ClientAnchors(clientCAs...)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ln, err := net.Listen("tcp", tlsAddr)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
		fmt.Fprintf(os.Stderr, "Listening on %s\n", ln.Addr())

		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			go echo(ctx, b, conn)
		}
	},
}

func echo(ctx context.Context, b *securetransport.ServerBuilder, conn net.Conn) {
	logger := slog.With("component", "tls-serve", "remote", conn.RemoteAddr().String())
	s, err := b.Handshake(conn)
	if err != nil {
		closeFailed(err)
		conn.Close()
		logger.Warn("handshake failed", "error", err)
		return
	}
	defer s.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	n, err := io.Copy(s, s)
	logger.Info("connection closed", "bytes", n, "error", err)
}

func init() {
	tlsCmd.PersistentFlags().StringSliceVar(&tlsALPN, "alpn", nil, "ALPN protocols to offer")
	tlsCmd.PersistentFlags().StringVar(&tlsIdentity, "identity", "", "PEM or PKCS#12 file with a certificate and private key")

	tlsConnectCmd.Flags().StringSliceVar(&tlsAnchors, "anchor", nil, "file of trusted root certificates (repeatable)")
	tlsConnectCmd.Flags().StringVar(&tlsServerName, "servername", "", "name to verify and send as SNI (default: host)")
	tlsConnectCmd.Flags().BoolVar(&tlsInsecure, "insecure", false, "accept any server certificate")
	tlsConnectCmd.Flags().BoolVar(&tlsNoSNI, "no-sni", false, "do not send a server name")
	tlsConnectCmd.Flags().DurationVar(&tlsTimeout, "timeout", 10*time.Second, "dial and I/O timeout")
	tlsConnectCmd.Flags().StringVar(&tlsSend, "send", "", `data to send after the handshake ("\n" is a newline); the reply is printed`)

	tlsServeCmd.Flags().StringVar(&tlsAddr, "addr", "127.0.0.1:8443", "listen address")
	tlsServeCmd.Flags().StringSliceVar(&tlsClientCA, "client-ca", nil, "require client certificates issued by these roots")

	tlsCmd.AddCommand(tlsConnectCmd)
	tlsCmd.AddCommand(tlsServeCmd)
	rootCmd.AddCommand(tlsCmd)
}
