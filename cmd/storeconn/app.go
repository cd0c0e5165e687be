package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/pslog"

	"pkt.systems/storeconn"
	"pkt.systems/storeconn/internal/loggingutil"
	"pkt.systems/storeconn/internal/pathutil"
	"pkt.systems/storeconn/location"
	"pkt.systems/storeconn/store"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("STORECONN_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "storeconn")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// cli carries state shared by all subcommands of one root command.
type cli struct {
	v          *viper.Viper
	baseLogger pslog.Logger
	logger     pslog.Logger
}

func (c *cli) subsystem(name string) pslog.Logger {
	return loggingutil.WithSubsystem(c.logger, loggingutil.Subsystem("cli", name))
}

// prepare loads the config file and applies the log level. Runs before every
// subcommand.
func (c *cli) prepare() error {
	path, err := loadConfigFile(c.v)
	if err != nil {
		return err
	}
	c.logger = c.baseLogger
	if lvl := strings.TrimSpace(c.v.GetString("log-level")); lvl != "" {
		level, ok := pslog.ParseLevel(lvl)
		if !ok {
			return fmt.Errorf("invalid --log-level %q", lvl)
		}
		c.logger = c.logger.LogLevel(level)
	}
	if path != "" {
		c.subsystem("root").Debug("loaded config file", "path", path)
	}
	return nil
}

// registryConfig maps flags, environment and config file onto
// storeconn.Config.
func (c *cli) registryConfig() (storeconn.Config, error) {
	cfg := storeconn.Config{
		DisableProcessLock: c.v.GetBool("disable-process-lock"),
		ChannelCacheSize:   c.v.GetInt("channel-cache-size"),
	}
	params, err := paramsFromViper(c.v, "default-params.")
	if err != nil {
		return cfg, err
	}
	cfg.DefaultParams = params
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newRegistry builds a Registry whose teardown warnings are also printed to
// stderr.
func (c *cli) newRegistry(stderr io.Writer) (*storeconn.Registry, error) {
	cfg, err := c.registryConfig()
	if err != nil {
		return nil, err
	}
	return storeconn.NewRegistry(cfg,
		storeconn.WithLogger(c.logger),
		storeconn.WithWarningHandler(func(w storeconn.Warning) {
			fmt.Fprintf(stderr, "warning: %s\n", w)
		}),
	)
}

// paramsFromViper reads store parameters under prefix. block-size accepts
// humanized sizes such as "16KiB".
func paramsFromViper(v *viper.Viper, prefix string) (store.Params, error) {
	var p store.Params
	if raw := strings.TrimSpace(v.GetString(prefix + "block-size")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return p, fmt.Errorf("parse %sblock-size: %w", prefix, err)
		}
		p.BlockSize = int(size)
	}
	p.ReadCacheSize = v.GetInt(prefix + "read-cache-size")
	p.WriteCacheSize = v.GetInt(prefix + "write-cache-size")
	p.FileMode = strings.TrimSpace(v.GetString(prefix + "file-mode"))
	return p, nil
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	explicit := cfgPath != ""
	if cfgPath == "" {
		candidate, err := storeconn.DefaultConfigPath()
		if err != nil {
			return "", nil
		}
		cfgPath = candidate
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return pathutil.Canonical(p)
}

func parseLocation(raw string) (location.Location, error) {
	loc, err := location.Parse(raw)
	if err != nil {
		return location.Location{}, fmt.Errorf("location %q: %w", raw, err)
	}
	return loc, nil
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	state := &cli{
		v:          viper.New(),
		baseLogger: baseLogger,
		logger:     baseLogger,
	}
	cmd := &cobra.Command{
		Use:           "storeconn",
		Short:         "storeconn opens storage locations through a process-wide connection registry",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Open a disk location, print its effective parameters and release it
  storeconn open /var/lib/store-a --block-size 16KiB

  # Hold two locations until interrupted, exposing Prometheus metrics
  storeconn hold /var/lib/store-a disk:///var/lib/store-b --metrics-listen :9464

  # Inspect who holds a location
  storeconn lock status /var/lib/store-a
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.prepare()
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.storeconn/"+storeconn.DefaultConfigFileName+")")
	persistentFlags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	persistentFlags.Bool("disable-process-lock", false, "do not take the sentinel lock file for disk locations")
	persistentFlags.Int("channel-cache-size", storeconn.DefaultChannelCacheSize, "idle file channels kept open")

	v := state.v
	v.SetEnvPrefix("STORECONN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	bindFlags(v, persistentFlags, "config", "log-level", "disable-process-lock", "channel-cache-size")

	cmd.AddCommand(newOpenCommand(state))
	cmd.AddCommand(newHoldCommand(state))
	cmd.AddCommand(newLockCommand(state))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
