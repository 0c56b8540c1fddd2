package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/authly/authly-go/internal/core/domain"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the contents of Authly trust material files",
}

var inspectCACmd = &cobra.Command{
	Use:   "ca <path>",
	Short: "Show the trust anchors in a CA certificate file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := domain.LoadTrustBundle(args[0])
		if err != nil {
			return err
		}

		for i, anchor := range bundle.Anchors() {
			fmt.Fprintf(cmd.OutOrStdout(), "anchor %d:\n", i)
			fmt.Fprintf(cmd.OutOrStdout(), "  subject:    %s\n", anchor.Subject)
			fmt.Fprintf(cmd.OutOrStdout(), "  issuer:     %s\n", anchor.Issuer)
			fmt.Fprintf(cmd.OutOrStdout(), "  serial:     %s\n", anchor.SerialNumber)
			fmt.Fprintf(cmd.OutOrStdout(), "  not before: %s\n", anchor.NotBefore.Format(time.RFC3339))
			fmt.Fprintf(cmd.OutOrStdout(), "  not after:  %s\n", anchor.NotAfter.Format(time.RFC3339))
			fmt.Fprintf(cmd.OutOrStdout(), "  is CA:      %t\n", anchor.IsCA)
		}
		return nil
	},
}

var inspectIdentityCmd = &cobra.Command{
	Use:   "identity <path>",
	Short: "Show the service identity in a credential PEM file",
	Long: `Show the service identity in a credential PEM file: the entity ID carried
in the certificate subject, the registration label, and the validity window.
Loading also checks that the private key matches the certificate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := domain.LoadCredential(args[0])
		if err != nil {
			return err
		}

		leaf := cred.Leaf()
		fmt.Fprintf(cmd.OutOrStdout(), "subject:    %s\n", leaf.Subject)
		if id := cred.Identity(); id != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "entity ID:  %s\n", id.EntityID())
			fmt.Fprintf(cmd.OutOrStdout(), "label:      %s\n", id.CommonName())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "entity ID:  (none)\n")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "not before: %s\n", leaf.NotBefore.Format(time.RFC3339))
		fmt.Fprintf(cmd.OutOrStdout(), "not after:  %s\n", leaf.NotAfter.Format(time.RFC3339))
		fmt.Fprintf(cmd.OutOrStdout(), "expires in: %s\n", time.Until(cred.Expiry()).Round(time.Minute))
		return nil
	},
}

func init() {
	inspectCmd.AddCommand(inspectCACmd)
	inspectCmd.AddCommand(inspectIdentityCmd)
	rootCmd.AddCommand(inspectCmd)
}
