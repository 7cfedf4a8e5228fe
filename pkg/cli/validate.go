package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/getmockd/reflector/pkg/cli/internal/output"
	"github.com/getmockd/reflector/pkg/logging"
	"github.com/getmockd/reflector/pkg/routing"
	"github.com/getmockd/reflector/pkg/topology"
	"github.com/spf13/cobra"
)

var validateJSON bool

// ValidateOutput is the --json form of the validate summary.
type ValidateOutput struct {
	Valid     bool           `json:"valid"`
	Inbounds  []string       `json:"inbounds"`
	Outbounds []string       `json:"outbounds"`
	Rules     []routing.Rule `json:"rules"`
	Dropped   []DroppedRoute `json:"dropped,omitempty"`
}

// DroppedRoute is a route the resolver discarded.
type DroppedRoute struct {
	User     string `json:"user"`
	Outbound string `json:"outbound"`
	Reason   string `json:"reason"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a topology document without starting anything",
	Long: `Load the topology, validate it against the schema and the semantic rules,
and resolve its routes. Routes the resolver drops are listed but do not make
the document invalid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := topology.Load(configPath)
		if err != nil {
			return err
		}
		log := logging.ForDebug(debug, logging.ParseFormat(logFormat))
		res := routing.New(log).Resolve(spec.Spec.Outbounds, spec.Spec.Routes)

		out := summarize(spec, res)
		if validateJSON {
			return output.JSON(cmd.OutOrStdout(), out)
		}
		printSummary(cmd.OutOrStdout(), spec, out)
		return nil
	},
}

func summarize(spec *topology.TopologySpec, res *routing.Result) ValidateOutput {
	out := ValidateOutput{Valid: true, Rules: res.Rules}
	for _, in := range spec.Spec.Inbounds {
		out.Inbounds = append(out.Inbounds, in.Name)
	}
	for _, ob := range spec.Spec.Outbounds {
		out.Outbounds = append(out.Outbounds, ob.Tag())
	}
	for _, d := range res.Dropped {
		out.Dropped = append(out.Dropped, DroppedRoute{User: d.Route.User, Outbound: d.Route.Outbound, Reason: d.Reason})
	}
	return out
}

func printSummary(w io.Writer, spec *topology.TopologySpec, out ValidateOutput) {
	fmt.Fprintf(w, "%s is valid\n\n", configPath)

	output.Section(w, "inbounds")
	tw := output.Table(w)
	for _, in := range spec.Spec.Inbounds {
		fmt.Fprintf(tw, "  %s\t%s\t:%d\t%s\t%s\t%d users\n",
			in.Name, in.Type, in.ListenPort, in.Camo.FQDN, in.Camo.Issuer.Type, len(in.Users))
	}
	_ = tw.Flush()

	output.Section(w, "outbounds")
	tw = output.Table(w)
	for _, ob := range spec.Spec.Outbounds {
		fmt.Fprintf(tw, "  %s\t%s\n", ob.Tag(), ob.Kind())
	}
	_ = tw.Flush()

	output.Section(w, "routes")
	tw = output.Table(w)
	for _, r := range out.Rules {
		fmt.Fprintf(tw, "  %s\t-> %s\n", strings.Join(r.Users, ","), r.Outbound)
	}
	_ = tw.Flush()

	if len(out.Dropped) > 0 {
		output.Section(w, "dropped routes")
		tw = output.Table(w)
		for _, d := range out.Dropped {
			fmt.Fprintf(tw, "  %s\t-> %s\t(%s)\n", d.User, d.Outbound, d.Reason)
		}
		_ = tw.Flush()
	}
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(validateCmd)
}
