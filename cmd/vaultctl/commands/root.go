// Package commands implements the vaultctl CLI: offline operator
// tooling for identity key material. It reuses the exact vault and keys
// primitives the server runs, so a blob wrapped here opens there and
// vice versa.
package commands

import (
	"github.com/spf13/cobra"
)

var password string

func Execute() error {
	root := &cobra.Command{
		Use:          "vaultctl",
		Short:        "Offline tooling for wrapped private key material",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&password, "password", "p", "", "password protecting the key")

	root.AddCommand(keygenCmd(), wrapCmd(), unwrapCmd())
	return root.Execute()
}
