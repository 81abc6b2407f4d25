/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/whoisnian/glb/ansi"
	"github.com/whoisnian/glb/logger"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/transport"
	"github.com/allbin/go-serialport/transport/host"
	"github.com/allbin/go-serialport/transport/loopback"
)

// closeTimeout bounds how long a command waits for its session to close.
const closeTimeout = 2 * time.Second

var (
	cfgFile string
	debug   bool

	LOG *logger.Logger
	tr  transport.Transport
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialport",
	Short: "Talk to serial devices from the command line",
	Long: `serialport lists, configures and talks to serial devices through a
session layer on top of an asynchronous transport.

Line settings come from flags, a YAML config file (--config) or
SERIALPORT_* environment variables, in that order of precedence.
The older option names (baudrate, databits, stopbits, buffersize,
flowcontrol) are accepted in config files.

Example usage:
  serialport list --table
  serialport listen /dev/ttyUSB0 --baud 115200
  serialport send "AT" /dev/ttyUSB0 --newline
  serialport connect /dev/ttyLOOP0 --loopback`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()
		if err := loadConfigFile(); err != nil {
			return err
		}
		setupTransport()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file with line settings (yaml)")
	pf.BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	pf.Bool("loopback", false, "Use the in-memory loopback transport instead of real devices")

	// Zero means "not set" so that legacy keys from a config file still apply.
	pf.IntP("baud", "b", 0, "Baud rate (default 9600)")
	pf.Int("data-bits", 0, "Data bits: 7 or 8 (default 8)")
	pf.Int("stop-bits", 0, "Stop bits: 1 or 2 (default 1)")
	pf.String("parity", "", "Parity: none, even, odd, mark, space (default none)")
	pf.Bool("rtscts", false, "Enable RTS/CTS hardware flow control")
	pf.StringSliceP("flow-control", "f", nil, "Flow control flags: rtscts, xon, xoff, xany, dtrdsr")
	pf.Int("buffer", 0, "Receive buffer size in bytes (default 256)")

	for key, flag := range map[string]string{
		"loopback":     "loopback",
		"baud_rate":    "baud",
		"data_bits":    "data-bits",
		"stop_bits":    "stop-bits",
		"parity":       "parity",
		"rtscts":       "rtscts",
		"flow_control": "flow-control",
		"buffer_size":  "buffer",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("SERIALPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupLogger() {
	level := logger.LevelInfo
	if debug {
		level = logger.LevelDebug
	}
	LOG = logger.New(logger.NewNanoHandler(os.Stderr, logger.Options{
		Level:     level,
		Colorful:  ansi.IsSupported(os.Stderr.Fd()),
		AddSource: debug,
	}))
}

func loadConfigFile() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}
	LOG.Debugf(context.Background(), "using config file %s", viper.ConfigFileUsed())
	return nil
}

func setupTransport() {
	if viper.GetBool("loopback") {
		tr = loopback.New()
		LOG.Debugf(context.Background(), "using loopback transport, device %s", loopback.DefaultDevice.Path)
		return
	}
	tr = host.New(host.WithLogger(LOG))
}

// loadOptions decodes the merged flag, file and environment settings.
func loadOptions() (serialport.Options, error) {
	var opts serialport.Options
	if err := viper.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("failed to decode options: %w", err)
	}
	opts.Transport = tr
	opts.Logger = LOG
	return opts, nil
}

// openSession creates a session for path and waits for it to open.
// configure may set callbacks before the session is created.
func openSession(ctx context.Context, path string, configure func(*serialport.Options)) (*serialport.Session, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}
	autoOpen := false
	opts.AutoOpen = &autoOpen
	if configure != nil {
		configure(&opts)
	}

	s, err := serialport.New(path, opts, nil)
	if err != nil {
		return nil, err
	}
	info, err := s.OpenContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	LOG.Debugf(ctx, "session %s: connection %d open at %d baud", s.ID(), info.ConnectionID, info.Bitrate)
	return s, nil
}

func closeSession(s *serialport.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if _, err := s.CloseContext(ctx); err != nil && !errors.Is(err, serialport.ErrNotOpen) {
		LOG.Warn(ctx, "close failed", logger.Error(err))
	}
}

// interruptContext is cancelled on Ctrl+C or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// fail prints err and exits, the way every command reports fatal errors.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
