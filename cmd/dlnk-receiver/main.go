// Command dlnk-receiver runs the DualLink receiver: it advertises itself
// over mDNS, waits for a sender to pair, and presents incoming display
// streams while forwarding local input back to the sender.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duallink/duallink/internal/certs"
	"github.com/duallink/duallink/internal/config"
	"github.com/duallink/duallink/internal/discovery"
	"github.com/duallink/duallink/internal/logging"
	"github.com/duallink/duallink/internal/pairing"
	"github.com/duallink/duallink/internal/session"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "dlnk-receiver",
	Short: "DualLink receiver",
	Long:  "DualLink receiver - accepts screen-sharing streams from a paired sender",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the receiver",
	Run: func(cmd *cobra.Command, args []string) {
		runReceiver()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("DualLink Receiver v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/duallink/duallink.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

func runReceiver() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogging(cfg)

	lanIP, err := discovery.PrimaryLANIP()
	if err != nil {
		log.Error("failed to determine LAN IP", "error", err)
		os.Exit(1)
	}

	identity, err := certs.Generate(lanIP, 0)
	if err != nil {
		log.Error("failed to generate TLS identity", "error", err)
		os.Exit(1)
	}

	pin, err := pairing.Generate()
	if err != nil {
		log.Error("failed to generate pairing PIN", "error", err)
		os.Exit(1)
	}
	log.Info("pairing PIN ready", "pin", pin)

	displays := make([]session.DisplayReceiverConfig, 0, cfg.DisplayCount)
	for i := 0; i < cfg.DisplayCount; i++ {
		displays = append(displays, session.DisplayReceiverConfig{
			DisplayIndex: i,
			// FrameSink and InputSource are left nil here: they are the
			// pluggable window-presentation and local-input collaborators
			// described in §6, supplied by the GUI shell embedding this core.
		})
	}

	mgr, err := session.Listen(session.ReceiverConfig{
		PairingPIN: pin,
		Identity:   identity.ServerTLSConfig(),
		Displays:   displays,
	}, func(ev session.StatusEvent) {
		log.Info("pipeline status", "event", ev.String())
	})
	if err != nil {
		log.Error("failed to start session manager", "error", err)
		os.Exit(1)
	}

	advertiser, err := discovery.Advertise(discovery.Record{
		DeviceName:          hostnameOrDefault(),
		LANIP:               lanIP,
		SignalingPort:       cfg.SignalingPort,
		DisplayCount:        cfg.DisplayCount,
		FingerprintShortHex: identity.FingerprintShort(),
	})
	if err != nil {
		log.Error("failed to start discovery advertiser", "error", err)
		os.Exit(1)
	}
	defer advertiser.Close()

	log.Info("receiver running", "displays", cfg.DisplayCount, "fingerprint", identity.FingerprintShort())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	mgr.StopAll()
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil {
		return "duallink-receiver"
	}
	return name
}
