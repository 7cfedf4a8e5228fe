package cli

import (
	"fmt"

	"github.com/getmockd/reflector/internal/id"
	"github.com/getmockd/reflector/pkg/cli/internal/output"
	"github.com/getmockd/reflector/pkg/compiler"
	"github.com/getmockd/reflector/pkg/topology"
	"github.com/getmockd/reflector/pkg/tunnel"
	"github.com/spf13/cobra"
)

var (
	linksHost        string
	linksFingerprint string
	linksJSON        bool

	keygenShortID int
)

// LinkOutput is one entry of the --json form.
type LinkOutput struct {
	Inbound string `json:"inbound"`
	User    string `json:"user"`
	Link    string `json:"link"`
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Print client share links for every inbound user",
	Long: `Print a vless:// share link for each user of each inbound. Clients dial the
inbound's camouflage domain unless --host names another address. The REALITY
public key is derived from the inbound's private key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := topology.Load(configPath)
		if err != nil {
			return err
		}
		links, err := compiler.ShareLinks(spec, linksHost, linksFingerprint)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if linksJSON {
			out := make([]LinkOutput, 0, len(links))
			for _, l := range links {
				out = append(out, LinkOutput{Inbound: l.Inbound, User: l.User, Link: l.Link.String()})
			}
			return output.JSON(w, out)
		}
		tw := output.Table(w)
		for _, l := range links {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Inbound, l.User, l.Link)
		}
		return tw.Flush()
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a REALITY key pair and a new user's identifiers",
	Long: `Print a REALITY x25519 key pair for an inbound's private_key (and the public
key clients pin), plus a fresh UUID and short id for a new user entry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := tunnel.GenerateKeyPair()
		if err != nil {
			return err
		}
		sid, err := id.ShortID(keygenShortID)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "PrivateKey: %s\n", kp.PrivateKey)
		fmt.Fprintf(w, "PublicKey: %s\n", kp.PublicKey)
		fmt.Fprintf(w, "UUID: %s\n", id.UUID())
		fmt.Fprintf(w, "ShortID: %s\n", sid)
		return nil
	},
}

func init() {
	linksCmd.Flags().StringVar(&linksHost, "host", "", "address clients dial (default: the camouflage domain)")
	linksCmd.Flags().StringVar(&linksFingerprint, "fingerprint", compiler.DefaultFingerprint, "uTLS fingerprint to advertise")
	linksCmd.Flags().BoolVar(&linksJSON, "json", false, "print links as JSON")
	keygenCmd.Flags().IntVar(&keygenShortID, "short-id-bytes", 4, "short id length in bytes (1-8)")
	rootCmd.AddCommand(linksCmd, keygenCmd)
}
