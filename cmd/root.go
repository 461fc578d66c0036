package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wsramp/internal/analysis"
	"wsramp/internal/banner"
	"wsramp/internal/cli"
	"wsramp/internal/echo"
	"wsramp/internal/report"
	"wsramp/internal/runner"
	"wsramp/internal/tui"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wsramp",
	Short: "wsramp - progressive WebSocket connection capacity tester",
	Long: `
wsramp ramps up the number of concurrent WebSocket connections to a target,
keeps each batch alive with keepalive echoes, and reports the largest
connection count the path sustains.

Two admission modes are supported:
  independent (default): each batch opens a fresh set of connections
  cumulative (--cumulative): prior connections stay open while new ones are added`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTest()
	},
	SilenceUsage: true,
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(echoCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wsramp.yaml)")

	flags := rootCmd.Flags()
	flags.String("host", "127.0.0.1", "Target hostname")
	flags.Int("port", 7070, "Target port")
	flags.String("scheme", "ws", "Protocol: ws or wss")
	flags.String("path", "/", "Endpoint path")
	flags.Int("start", 1, "Starting number of connections")
	flags.Int("max", 10, "Maximum number of connections to test")
	flags.Int("increment", 1, "Connections added per batch")
	flags.Int("duration", 5, "Seconds each batch stays open once launched")
	flags.Float64("delay", 0, "Seconds between individual connection launches")
	flags.Float64("threshold", runner.DefaultThreshold, "Success rate (%) below which a batch is unstable")
	flags.Bool("cumulative", false, "Keep previous connections open when adding new ones")
	flags.BoolP("verbose", "v", false, "Debug logging plus system/network snapshots")
	flags.Bool("live", false, "Live dashboard instead of the plain progress line")
	flags.StringP("out", "o", "", "Output filename prefix for CSV/JSON export")

	viper.BindPFlags(flags)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".wsramp")
		}
	}
	viper.SetEnvPrefix("WSRAMP")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func buildConfig() runner.Config {
	return runner.Config{
		Scheme:             viper.GetString("scheme"),
		Host:               viper.GetString("host"),
		Port:               viper.GetInt("port"),
		Path:               viper.GetString("path"),
		StartConnections:   viper.GetInt("start"),
		MaxConnections:     viper.GetInt("max"),
		Increment:          viper.GetInt("increment"),
		HoldDuration:       time.Duration(viper.GetInt("duration")) * time.Second,
		ConnectionDelay:    time.Duration(viper.GetFloat64("delay") * float64(time.Second)),
		StabilityThreshold: viper.GetFloat64("threshold"),
		Cumulative:         viper.GetBool("cumulative"),
		Verbose:            viper.GetBool("verbose"),
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))
}

func runTest() error {
	cfg := buildConfig()
	log := newLogger(cfg.Verbose)
	out := viper.GetString("out")

	if !viper.GetBool("live") {
		fmt.Println(banner.GetString())
		return cli.Run(cfg, log, out)
	}

	// Live mode: logs would fight the dashboard for the terminal.
	log = slog.New(slog.DiscardHandler)

	updates := make(runner.SnapshotChan, 100)
	ctrl, err := runner.NewController(cfg, log, updates)
	if err != nil {
		return err
	}
	rep, runErr := tui.Run(ctrl.Config(), updates, ctrl.Run)
	if rep == nil {
		return runErr
	}

	effective := ctrl.Config()
	verdict := analysis.Classify(rep.History, effective.StabilityThreshold, effective.Increment)
	fmt.Println(report.Summary(rep, verdict))

	if out != "" {
		if err := report.ExportCSV(rep, out+".csv"); err != nil {
			return fmt.Errorf("csv export: %w", err)
		}
		if err := report.ExportJSON(rep, verdict, out+".json"); err != nil {
			return fmt.Errorf("json export: %w", err)
		}
		fmt.Printf("Reports saved to %s.{csv,json}\n", out)
	}
	return nil
}

// --- Echo Subcommand ---

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a local WebSocket echo server",
	Long: `Run a local echo server to test against. --max-conns caps how many
connections get echo replies, which produces a capacity boundary on demand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		delay, _ := cmd.Flags().GetDuration("delay")
		maxConns, _ := cmd.Flags().GetInt("max-conns")
		verbose, _ := cmd.Flags().GetBool("verbose")

		srv := echo.New(echo.Config{Port: port, Delay: delay, MaxConns: maxConns}, newLogger(verbose))
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	echoCmd.Flags().IntP("port", "p", 7070, "Port to listen on")
	echoCmd.Flags().Duration("delay", 0, "Artificial delay before each echo reply")
	echoCmd.Flags().Int("max-conns", 0, "Cap on echoed connections (0 = unlimited)")
	echoCmd.Flags().BoolP("verbose", "v", false, "Debug logging")
}
