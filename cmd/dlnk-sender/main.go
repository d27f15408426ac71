// Command dlnk-sender runs the DualLink sender: it discovers a receiver on
// the LAN (or dials one directly), pairs with the PIN shown on the
// receiver, and streams one or more local displays to it.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/duallink/duallink/internal/config"
	"github.com/duallink/duallink/internal/discovery"
	"github.com/duallink/duallink/internal/logging"
	"github.com/duallink/duallink/internal/session"
)

var (
	version    = "0.1.0"
	cfgFile    string
	pairingPIN string
	peerHost   string
	peerPort   int
	peerFP     string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "dlnk-sender",
	Short: "DualLink sender",
	Long:  "DualLink sender - streams local displays to a paired receiver",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover a receiver (or dial one directly) and start streaming",
	Run: func(cmd *cobra.Command, args []string) {
		runSender()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("DualLink Sender v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/duallink/duallink.yaml)")
	runCmd.Flags().StringVar(&pairingPIN, "pin", "", "pairing PIN shown on the receiver")
	runCmd.Flags().StringVar(&peerHost, "peer-host", "", "receiver LAN IP (skips discovery if set)")
	runCmd.Flags().IntVar(&peerPort, "peer-port", 0, "receiver signaling base port")
	runCmd.Flags().StringVar(&peerFP, "peer-fingerprint", "", "receiver TLS fingerprint (from discovery or entered manually)")
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

func runSender() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogging(cfg)

	pin := pairingPIN
	if pin == "" {
		pin = cfg.PairingPIN
	}
	if pin == "" {
		log.Error("a pairing PIN is required (--pin or config pairing_pin)")
		os.Exit(1)
	}

	peer, err := resolvePeer(cfg)
	if err != nil {
		log.Error("failed to resolve receiver", "error", err)
		os.Exit(1)
	}

	displayCount := cfg.DisplayCount
	if peer.DisplayCount > 0 && peer.DisplayCount < displayCount {
		displayCount = peer.DisplayCount
	}

	displays := make([]session.DisplaySenderConfig, 0, displayCount)
	for i := 0; i < displayCount; i++ {
		displays = append(displays, session.DisplaySenderConfig{
			DisplayIndex: i,
			StreamConfig: cfg.StreamConfig(i),
			// FrameSource and InputSink are left nil here: they are the
			// pluggable capture/encode and input-injection collaborators
			// described in §6, supplied by the platform-specific shell
			// embedding this core.
		})
	}

	mgr, err := session.ConnectAndStream(session.SenderConfig{
		DeviceName:      hostnameOrDefault(),
		PeerIP:          net.ParseIP(peer.LANIP),
		PeerFingerprint: peer.FingerprintShortHex,
		PairingPIN:      pin,
		SessionID:       uuid.NewString(),
		Displays:        displays,
	}, func(ev session.StatusEvent) {
		log.Info("pipeline status", "event", ev.String())
	})
	if err != nil {
		log.Error("failed to start session manager", "error", err)
		os.Exit(1)
	}

	log.Info("sender running", "peer", peer.LANIP, "displays", displayCount)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	mgr.StopAll()
}

// resolvePeer returns a peer record either from explicit flags/config or
// from a brief discovery browse, auto-selecting when exactly one receiver
// is visible (§4.7).
func resolvePeer(cfg *config.Config) (discovery.Peer, error) {
	if host := firstNonEmpty(peerHost, cfg.PeerHost); host != "" {
		port := peerPort
		if port == 0 {
			port = cfg.PeerPort
		}
		if port == 0 {
			port = 7879
		}
		return discovery.Peer{
			LANIP:               host,
			SignalingPort:       port,
			DisplayCount:        cfg.DisplayCount,
			FingerprintShortHex: firstNonEmpty(peerFP, cfg.PeerFingerprint),
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	found := make(chan discovery.Peer, 1)
	err := discovery.Browse(ctx, func(p discovery.Peer) {
		select {
		case found <- p:
		default:
		}
	}, func(discovery.Peer) {})
	if err != nil {
		return discovery.Peer{}, err
	}

	select {
	case p := <-found:
		return p, nil
	case <-ctx.Done():
		return discovery.Peer{}, fmt.Errorf("no receiver found on the LAN within %s; pass --peer-host to dial directly", 3*time.Second)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil {
		return "duallink-sender"
	}
	return name
}
