package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/getmockd/reflector/pkg/logging"
	"github.com/getmockd/reflector/pkg/operator"
	"github.com/getmockd/reflector/pkg/pidfile"
	"github.com/spf13/cobra"
)

// Environment variables consulted when the matching flag is absent.
const (
	EnvConfig = "REFLECTOR_CONFIG"
	EnvTmp    = "REFLECTOR_TMP"
	EnvDebug  = "REFLECTOR_DEBUG"
)

// SignalReload is the only signal name --signal accepts.
const SignalReload = "reload"

var (
	// Persistent flags available to all subcommands
	configPath string
	tmpDir     string
	debug      bool
	logFormat  string

	// Operator flags
	pidFile    string
	nginxBin   string
	tunnelBin  string
	camoDir    string
	nginxUser  string
	signalName string

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd runs the operator, or signals a running one with --signal.
var rootCmd = &cobra.Command{
	Use:   "reflector",
	Short: "reflector runs nginx and sing-box from a declarative proxy topology",
	Long: `reflector compiles a topology document (users, inbounds, outbounds and routes)
into an nginx camouflage configuration and a sing-box VLESS + REALITY
configuration, then runs and supervises both processes.

Send SIGHUP, or run "reflector --signal reload", to reload the topology. An
invalid topology is rejected and the running configuration is kept.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Main()
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.ForDebug(debug, logging.ParseFormat(logFormat))

		if signalName != "" {
			return sendSignal(cmd.OutOrStdout(), signalName)
		}

		cfg := operator.DefaultConfig()
		cfg.TmpDir = tmpDir
		cfg.ConfigPath = configPath
		cfg.PIDFile = pidFile
		cfg.EdgeBin = nginxBin
		cfg.TunnelBin = tunnelBin
		cfg.CamoDir = camoDir
		cfg.EdgeUser = nginxUser
		cfg.Debug = debug
		cfg.Logger = log

		return operator.New(cfg).Run(cmd.Context())
	},
}

func sendSignal(w io.Writer, name string) error {
	switch name {
	case SignalReload:
		pid, err := pidfile.SignalReload(operator.PIDPath(tmpDir, pidFile))
		if err != nil {
			return fmt.Errorf("sending reload: %w", err)
		}
		fmt.Fprintf(w, "reload signal sent to %d\n", pid)
		return nil
	default:
		return fmt.Errorf("unrecognized signal %q (supported: %s)", name, SignalReload)
	}
}

// hinter is implemented by errors that can suggest a fix.
type hinter interface {
	Hint() string
}

// Main runs the command line and returns the process exit code.
func Main() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var h hinter
		if errors.As(err, &h) {
			if hint := h.Hint(); hint != "" {
				fmt.Fprintln(os.Stderr, "Hint:", hint)
			}
		}
		return 1
	}
	return 0
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	os.Exit(Main())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", envOr(EnvConfig, operator.DefaultConfigPath), "topology file (env "+EnvConfig+")")
	pf.StringVar(&tmpDir, "tmp", envOr(EnvTmp, operator.DefaultTmpDir), "directory for generated files (env "+EnvTmp+")")
	pf.BoolVarP(&debug, "debug", "d", envBool(EnvDebug), "debug logging (env "+EnvDebug+")")
	pf.StringVar(&logFormat, "log-format", string(logging.FormatText), "log format: text or json")

	f := rootCmd.Flags()
	f.StringVar(&pidFile, "pid-file", operator.DefaultPIDFile, "pid file, inside the tmp directory unless absolute")
	f.StringVar(&nginxBin, "nginx-bin", operator.DefaultEdgeBin, "nginx binary")
	f.StringVar(&tunnelBin, "xray-bin", operator.DefaultTunnelBin, "sing-box binary")
	f.StringVar(&camoDir, "camo-dir", operator.DefaultCamoDir, "camo templates dir")
	f.StringVar(&nginxUser, "nginx-user", operator.DefaultEdgeUser, "account nginx workers run as")
	f.StringVarP(&signalName, "signal", "s", "", "send a signal to the running operator (reload)")
}
