package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomiku/nomiku-go/internal/client"
	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
	"github.com/nomiku/nomiku-go/internal/infrastructure/logging"
	"github.com/nomiku/nomiku-go/internal/infrastructure/mqtt"
	"github.com/nomiku/nomiku-go/internal/session"
	"github.com/nomiku/nomiku-go/internal/tender"
)

// loadConfig reads the config file (if any) and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if f.email != "" {
		cfg.Tender.Email = f.email
	}
	if f.password != "" {
		cfg.Tender.Password = f.password
	}
	return cfg, nil
}

// sessionDeps builds a client's collaborators. Tests replace it.
var sessionDeps = func(cfg *config.Config, log *logging.Logger) client.Deps {
	transport := mqtt.New(cfg.MQTT)
	transport.SetLogger(log)
	return client.Deps{
		Transport: transport,
		Directory: tender.New(cfg.Tender),
		Config:    session.ConfigFrom(cfg.MQTT, cfg.Session),
		Logger:    log,
	}
}

// credentials returns stored credentials or signs in.
func credentials(ctx context.Context, dir *tender.Client, cfg *config.Config) (tender.Credentials, error) {
	creds := tender.Credentials{UserID: cfg.Tender.UserID, APIToken: cfg.Tender.APIToken}
	if creds.Valid() {
		return creds, nil
	}
	return dir.Authenticate(ctx, cfg.Tender.Email, cfg.Tender.Password)
}

// ===== devices =====

func newDevicesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the cookers on the account",
		Example: `  # List cookers
  nomiku devices --email cook@example.com --password secret

  # JSON output for scripting
  nomiku devices --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			dir := tender.New(cfg.Tender)

			creds, err := credentials(cmd.Context(), dir, cfg)
			if err != nil {
				return err
			}
			devices, err := dir.ListDevices(cmd.Context(), creds)
			if err != nil {
				return err
			}
			defaultID, err := dir.DefaultDeviceID(cmd.Context(), creds)
			if err != nil && !errors.Is(err, tender.ErrNoDefaultDevice) {
				return err
			}
			return printDevices(cmd.OutOrStdout(), flags.format, devices, defaultID)
		},
	}
}

func printDevices(w io.Writer, format string, devices []device.Info, defaultID device.ID) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"devices": devices, "default_device": defaultID})
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHARDWARE ID\tNAME\tDEFAULT")
	for _, d := range devices {
		mark := ""
		if d.ID == defaultID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.HardwareID, d.Name, mark)
	}
	return tw.Flush()
}

// ===== watch =====

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "watch [device-id]",
		Short: "Stream live state as JSON lines",
		Long: `Connect to the broker and print one JSON line per state change.

Without a device ID the account's default cooker is watched.`,
		Example: `  # Watch the default cooker
  nomiku watch

  # Watch a specific cooker, printing every message
  nomiku watch 1234 --verbose`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			log := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
			c := client.New(sessionDeps(cfg, log))
			defer c.Close()

			out := json.NewEncoder(cmd.OutOrStdout())
			c.OnState(func(snap device.Snapshot) {
				out.Encode(snap) //nolint:errcheck // best-effort stream to stdout
			})
			c.OnError(func(err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			})

			opts := session.OptionsFrom(cfg.Tender, cfg.Session)
			opts.VerboseState = opts.VerboseState || verbose
			if err := c.Connect(cmd.Context(), opts); err != nil && !tender.IsRetryable(err) {
				return err
			}
			if len(args) == 1 {
				if err := c.Listen(device.ID(args[0])); err != nil {
					return err
				}
			}

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print every message, not only complete changes")
	return cmd
}

// ===== set =====

type setFlags struct {
	on         bool
	off        bool
	setpoint   float64
	units      string
	timerStart bool
	timerStop  bool
	timerSet   time.Duration
	wait       time.Duration
}

func newSetCmd(flags *globalFlags) *cobra.Command {
	sf := &setFlags{}

	cmd := &cobra.Command{
		Use:   "set [device-id]",
		Short: "Change a cooker's state",
		Long: `Send one or more changes to a cooker.

Changes are applied in flag order: power, setpoint, units, timer. Starting
or stopping the timer needs the current timer state, so the command waits
(up to --wait) for the cooker to report it first.`,
		Example: `  # Heat the default cooker to 57.5 degrees
  nomiku set --on --setpoint 57.5

  # Set a 90 minute timer and start it
  nomiku set 1234 --timer-set 90m --timer-start`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sf.on && sf.off {
				return errors.New("--on and --off are mutually exclusive")
			}
			if sf.timerStart && sf.timerStop {
				return errors.New("--timer-start and --timer-stop are mutually exclusive")
			}
			if sf.units != "" && sf.units != "C" && sf.units != "F" {
				return fmt.Errorf(`--units must be "C" or "F", got %q`, sf.units)
			}

			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			log := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
			c := client.New(sessionDeps(cfg, log))
			defer c.Close()

			if err := c.Connect(cmd.Context(), session.OptionsFrom(cfg.Tender, cfg.Session)); err != nil {
				return err
			}

			var id device.ID
			if len(args) == 1 {
				id = device.ID(args[0])
				if err := c.Listen(id); err != nil {
					return err
				}
			}
			set, err := c.Set(id)
			if err != nil {
				return err
			}

			if sf.timerStart || sf.timerStop {
				if err := waitValid(cmd.Context(), c, set.DeviceID(), sf.wait); err != nil {
					return err
				}
			}

			snap, err := applySet(cmd, set, sf)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(snap)
		},
	}

	cmd.Flags().BoolVar(&sf.on, "on", false, "Turn the heater on")
	cmd.Flags().BoolVar(&sf.off, "off", false, "Turn the heater off")
	cmd.Flags().Float64Var(&sf.setpoint, "setpoint", 0, "Target temperature")
	cmd.Flags().StringVar(&sf.units, "units", "", `Display unit ("C" or "F")`)
	cmd.Flags().BoolVar(&sf.timerStart, "timer-start", false, "Start the countdown")
	cmd.Flags().BoolVar(&sf.timerStop, "timer-stop", false, "Pause the countdown")
	cmd.Flags().DurationVar(&sf.timerSet, "timer-set", 0, "Set a stopped countdown (e.g. 90m)")
	cmd.Flags().DurationVar(&sf.wait, "wait", 10*time.Second, "How long to wait for the timer state")
	return cmd
}

// applySet sends each requested change in turn and returns the last snapshot.
func applySet(cmd *cobra.Command, set *session.Command, sf *setFlags) (device.Snapshot, error) {
	ctx := cmd.Context()
	var (
		snap    device.Snapshot
		err     error
		changed bool
	)
	step := func(fn func() (device.Snapshot, error)) {
		if err != nil {
			return
		}
		snap, err = fn()
		changed = true
	}

	if sf.on {
		step(func() (device.Snapshot, error) { return set.TurnOn(ctx) })
	}
	if sf.off {
		step(func() (device.Snapshot, error) { return set.TurnOff(ctx) })
	}
	if cmd.Flags().Changed("setpoint") {
		step(func() (device.Snapshot, error) { return set.SetSetpoint(ctx, sf.setpoint) })
	}
	if sf.units != "" {
		step(func() (device.Snapshot, error) { return set.SetUnits(ctx, sf.units) })
	}
	if cmd.Flags().Changed("timer-set") {
		step(func() (device.Snapshot, error) { return set.SetTimer(ctx, int64(sf.timerSet/time.Second)) })
	}
	if sf.timerStart {
		step(func() (device.Snapshot, error) { return set.StartTimer(ctx) })
	}
	if sf.timerStop {
		step(func() (device.Snapshot, error) { return set.StopTimer(ctx) })
	}

	if err != nil {
		return device.Snapshot{}, err
	}
	if !changed {
		return device.Snapshot{}, errors.New("nothing to set; see 'nomiku set --help'")
	}
	return snap, nil
}

// waitValid polls until the device has reported a complete state.
func waitValid(ctx context.Context, c *client.Client, id device.ID, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap, err := c.Snapshot(id)
		if err != nil {
			return err
		}
		if snap.Valid {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("device %s did not report its state within %s", id, timeout)
		case <-ticker.C:
		}
	}
}
