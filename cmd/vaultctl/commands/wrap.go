package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/vault"
)

// wrappedBlob is the on-disk JSON shape of a wrapped key; fields line up
// with the stored identity record.
type wrappedBlob struct {
	Ciphertext []byte `json:"private_key"`
	Salt       []byte `json:"private_key_salt"`
	IV         []byte `json:"private_key_iv"`
	Tag        []byte `json:"private_key_tag"`
}

func wrapCmd() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Seal a PEM private key under a password-derived key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("password required (-p)")
			}
			plaintext, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			wrapped, err := vault.Wrap(plaintext, password)
			if err != nil {
				return err
			}
			vault.Zero(plaintext)

			data, err := json.MarshalIndent(wrappedBlob{
				Ciphertext: wrapped.Ciphertext,
				Salt:       wrapped.Salt,
				IV:         wrapped.IV,
				Tag:        wrapped.Tag,
			}, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrapped key written: %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "private.pem", "PEM private key to wrap")
	cmd.Flags().StringVar(&out, "out", "private.wrapped.json", "wrapped blob output path")
	return cmd
}

func unwrapCmd() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Open a wrapped blob back into a PEM private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("password required (-p)")
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var blob wrappedBlob
			if err := json.Unmarshal(data, &blob); err != nil {
				return err
			}
			plaintext, err := vault.Unwrap(domain.WrappedPrivateKey{
				Ciphertext: blob.Ciphertext,
				Salt:       blob.Salt,
				IV:         blob.IV,
				Tag:        blob.Tag,
			}, password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, plaintext, 0o600); err != nil {
				return err
			}
			fmt.Printf("Private key written: %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "private.wrapped.json", "wrapped blob to open")
	cmd.Flags().StringVar(&out, "out", "private.pem", "PEM output path")
	return cmd
}
