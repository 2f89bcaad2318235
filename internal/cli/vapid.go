package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dukerupert/niramay/internal/push"
)

type vapidKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// NewVAPIDKeysCommand creates the vapid-keys command.
func NewVAPIDKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Long: `Generate a new VAPID key pair. Text output is in .env form and can be
appended to the server's environment file.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return out.Fail(ExitFailure, "generate VAPID keys", err)
			}
			keys := vapidKeys{PublicKey: pub, PrivateKey: priv}
			return out.Emit("ok", keys, func(w io.Writer) {
				fmt.Fprintf(w, "NIRAMAY_VAPID_PUBLIC_KEY=%s\n", keys.PublicKey)
				fmt.Fprintf(w, "NIRAMAY_VAPID_PRIVATE_KEY=%s\n", keys.PrivateKey)
			})
		},
	}
}
