package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/transform"
)

var (
	digestAlg     string
	digestHMACKey string
)

type digestParams struct {
	typ    transform.DigestType
	length int
}

var digestAlgs = map[string]digestParams{
	"md5":    {transform.MD5, 0},
	"sha1":   {transform.SHA1, 0},
	"sha224": {transform.SHA2, 224},
	"sha256": {transform.SHA2, 256},
	"sha384": {transform.SHA2, 384},
	"sha512": {transform.SHA2, 512},
}

var digestCmd = &cobra.Command{
	Use:   "digest [file...]",
	Short: "Print the digest or HMAC of files, or of stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, ok := digestAlgs[digestAlg]
		if !ok {
			return fmt.Errorf("unknown algorithm %q", digestAlg)
		}
		if !transform.Available(service()) {
			return fmt.Errorf("transforms are disabled for this service")
		}

		var key *certs.Key
		if digestHMACKey != "" {
			raw, err := hex.DecodeString(digestHMACKey)
			if err != nil {
				return fmt.Errorf("decoding --hmac-key: %w", err)
			}
			key, err = certs.KeyFromData(service(), raw, certs.KeyOptions{Type: certs.KeyTypeAES, Class: certs.KeyClassSymmetric})
			if err != nil {
				return fmt.Errorf("--hmac-key must be 16, 24 or 32 bytes: %w", err)
			}
			defer key.Close()
		}

		if len(args) == 0 {
			sum, err := digestOf(os.Stdin, params, key)
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", sum)
			return nil
		}
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			sum, err := digestOf(f, params, key)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Printf("%x  %s\n", sum, path)
		}
		return nil
	},
}

func digestOf(r io.Reader, params digestParams, key *certs.Key) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var t *transform.Transform
	if key != nil {
		t, err = transform.NewHMAC(params.typ, params.length, key)
	} else {
		t, err = transform.NewDigest(service(), params.typ, params.length)
	}
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.Execute(data)
}

func init() {
	digestCmd.Flags().StringVarP(&digestAlg, "algorithm", "a", "sha256", "md5, sha1, sha224, sha256, sha384 or sha512")
	digestCmd.Flags().StringVar(&digestHMACKey, "hmac-key", "", "hex key; prints an HMAC instead of a plain digest")
	rootCmd.AddCommand(digestCmd)
}
