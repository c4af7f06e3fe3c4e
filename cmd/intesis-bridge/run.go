package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/config"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/logging"
	"github.com/muurk/intesis/internal/mqtt"
	"github.com/muurk/intesis/internal/server"
)

const shutdownTimeout = 5 * time.Second

var probeDevices bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	RunE:  runBridge,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print it with secrets redacted",
	Example: `  intesis-bridge check-config --config bridge.yaml
  intesis-bridge check-config --probe`,
	RunE: runCheckConfig,
}

func init() {
	checkConfigCmd.Flags().BoolVar(&probeDevices, "probe", false, "Also log in to every device")
}

func loadConfig() (*config.BridgeConfig, error) {
	cfg, err := config.LoadBridgeConfig(config.NewBridgeViper(), cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config errors: %w", err)
	}
	return cfg, nil
}

func newClient(d config.BridgeDevice, logger *zap.Logger) *deviceapi.Client {
	return deviceapi.NewClient(d.Credentials(),
		deviceapi.WithPort(d.Port),
		deviceapi.WithTimeout(d.Timeout),
		deviceapi.WithLogger(logger.Named("deviceapi")),
	)
}

// startControllers starts one controller per device, concurrently. Every
// device must answer; the supervisor restarts the bridge otherwise.
func startControllers(ctx context.Context, cfg *config.BridgeConfig, logger *zap.Logger) ([]*climate.Controller, error) {
	controllers := make([]*climate.Controller, len(cfg.Devices))
	for i, d := range cfg.Devices {
		opts := d.ClimateOptions()
		opts.Name = d.Name
		opts.Logger = logger.Named("climate")
		controllers[i] = climate.NewController(newClient(d, logger), opts)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range controllers {
		d := cfg.Devices[i]
		g.Go(func() error {
			// gctx ends with g.Wait; it bounds start-up only, polling runs until Close
			if err := c.Start(gctx); err != nil {
				return fmt.Errorf("device %s: %s", d.Host, deviceapi.GetShortErrorMessage(err))
			}
			status := c.Status()
			logger.Info("Device ready",
				zap.String("host", d.Host),
				zap.String("serial", status.Serial),
				zap.String("model", status.DeviceInfo.Model),
				zap.String("firmware", status.DeviceInfo.FWVersion),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range controllers {
			c.Close()
		}
		return nil, err
	}

	seen := make(map[string]string, len(controllers))
	for i, c := range controllers {
		serial := c.Status().Serial
		if host, dup := seen[serial]; dup {
			for _, c := range controllers {
				c.Close()
			}
			return nil, fmt.Errorf("devices %s and %s are the same adapter (serial %s)", host, cfg.Devices[i].Host, serial)
		}
		seen[serial] = cfg.Devices[i].Host
	}
	return controllers, nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.InitializeWithFormat(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	logger := logging.GetLogger()
	cfg.LogSafe(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controllers, err := startControllers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range controllers {
			c.Close()
		}
	}()

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqtt.NewBridge(cfg.MQTT, controllers, logger.Named("mqtt"))
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	var srv *server.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		srv = server.New(server.Config{Listen: cfg.HTTP.Listen, HTTPLog: cfg.HTTP.Log}, controllers, logger.Named("server"))
		go func() {
			serverErr <- srv.Start()
		}()
	}

	logger.Info("Bridge running", zap.Int("devices", len(controllers)))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully, press Ctrl+C again to force")
	case runErr = <-serverErr:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}
	}
	if bridge != nil {
		bridge.Stop()
	}

	logger.Info("Bridge stopped")
	return runErr
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(out))

	if !probeDevices {
		return nil
	}

	fmt.Println()
	var failed []error
	for _, d := range cfg.Devices {
		ctx, cancel := context.WithTimeout(cmd.Context(), d.Timeout+5*time.Second)
		info, err := newClient(d, zap.NewNop()).Validate(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stdout, "✗ %s: %s (%s)\n", d.Host, deviceapi.SetupErrorCode(err), deviceapi.GetShortErrorMessage(err))
			failed = append(failed, fmt.Errorf("%s: %w", d.Host, err))
			continue
		}
		fmt.Printf("✓ %s: %s %s\n", d.Host, info.DisplayName(), info.Serial())
	}
	return errors.Join(failed...)
}
