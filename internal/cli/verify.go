package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/authly/authly-go/internal/config"
	apperrors "github.com/authly/authly-go/internal/core/errors"
	"github.com/authly/authly-go/pkg/authly"
)

var verifyFlags struct {
	url          string
	caPath       string
	identityPath string
	timeout      time.Duration
	expectedPeer string
	configFile   string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Establish a mutually authenticated connection and report the result",
	Long: `Establish a mutually authenticated connection to the Authly endpoint using
the given CA trust anchor and identity credential, then close it again.

The exit status is zero only for a fully verified, established session. On
failure the classified error kind is printed, which tells apart configuration
problems (trust material, credentials) from transient ones (transport,
timeout).`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(verifyFlags.configFile)
	if err != nil {
		return err
	}

	builder := authly.NewClient().FromConfig(cfg)
	if verifyFlags.url != "" {
		builder = builder.WithURL(verifyFlags.url)
	}
	if verifyFlags.caPath != "" {
		builder = builder.WithAuthlyCAPath(verifyFlags.caPath)
	}
	if verifyFlags.identityPath != "" {
		builder = builder.WithIdentityPath(verifyFlags.identityPath)
	}
	if verifyFlags.timeout > 0 {
		builder = builder.WithConnectTimeout(verifyFlags.timeout)
	}
	if verifyFlags.expectedPeer != "" {
		builder = builder.WithExpectedPeer(verifyFlags.expectedPeer)
	}

	start := time.Now()
	client, err := builder.Connect(cmd.Context())
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "verification failed\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  kind:  %s\n", apperrors.KindOf(err))
		fmt.Fprintf(cmd.OutOrStdout(), "  error: %v\n", err)
		if authly.Retriable(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "  hint:  transient failure, retrying may help\n")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  hint:  configuration problem, retrying will not help\n")
		}
		return err
	}
	defer func() { _ = client.Close() }()

	peer, _ := client.PeerIdentity()
	fmt.Fprintf(cmd.OutOrStdout(), "session established in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "  peer:              %s\n", peer)
	fmt.Fprintf(cmd.OutOrStdout(), "  local entity:      %s\n", client.EntityID())
	fmt.Fprintf(cmd.OutOrStdout(), "  credential expiry: %s\n", client.CredentialExpiry().Format(time.RFC3339))
	return nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlags.url, "url", "", "Authly endpoint URL (default from AUTHLY_URL)")
	verifyCmd.Flags().StringVar(&verifyFlags.caPath, "ca", "", "path to the CA trust anchor file")
	verifyCmd.Flags().StringVar(&verifyFlags.identityPath, "identity", "", "path to the identity credential PEM")
	verifyCmd.Flags().DurationVar(&verifyFlags.timeout, "timeout", 0, "handshake deadline (default 10s)")
	verifyCmd.Flags().StringVar(&verifyFlags.expectedPeer, "expect-peer", "", "pin the server to this entity ID")
	verifyCmd.Flags().StringVar(&verifyFlags.configFile, "config", "", "optional configuration file")
	rootCmd.AddCommand(verifyCmd)
}
