package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guidoasbun/chat-sec-1/keys"
)

func keygenCmd() *cobra.Command {
	var privateOut, publicOut string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a 2048-bit RSA identity keypair as PEM files",
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := keys.GenerateRSAKeyPair()
			if err != nil {
				return err
			}
			if err := os.WriteFile(privateOut, []byte(pair.PrivatePEM), 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(publicOut, []byte(pair.PublicPEM), 0o644); err != nil {
				return err
			}
			fmt.Printf("Keypair written: %s, %s\n", privateOut, publicOut)
			return nil
		},
	}

	cmd.Flags().StringVar(&privateOut, "private", "private.pem", "private key output path")
	cmd.Flags().StringVar(&publicOut, "public", "public.pem", "public key output path")
	return cmd
}
