// Package cli implements the ovpn3 command-line interface. It manages
// OpenVPN 3 configuration profiles and sessions from the terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/config"
	"github.com/yllada/openvpn3-go/journal"
	"github.com/yllada/openvpn3-go/keyring"
	"github.com/yllada/openvpn3-go/notify"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

// BuildInfo carries build-time variables injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// app holds the state shared by all commands of one invocation.
type app struct {
	opts struct {
		verbose    bool
		configPath string
		bus        string
	}
	cfg    *config.Config
	client *vpn.Client

	// mu guards journal. Stream feeds record from their own goroutines.
	mu      sync.Mutex
	journal *journal.Journal

	creds      common.CredentialStore
	notifier   *notify.Notifier
	notifyConn proxy.Conn

	dial        func(bus proxy.Bus) (*vpn.Client, error)
	openJournal func(path string) (*journal.Journal, error)
	dialNotify  func() (proxy.Conn, error)
}

func newApp() *app {
	return &app{
		dial: func(bus proxy.Bus) (*vpn.Client, error) {
			return vpn.Dial(bus, vpn.WithLogger(common.GetLogger()))
		},
		openJournal: journal.Open,
		dialNotify: func() (proxy.Conn, error) {
			return proxy.Connect(proxy.SessionBus)
		},
	}
}

// connect returns the bus client, dialing on first use.
func (a *app) connect() (*vpn.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	bus := a.cfg.BusKind()
	if a.opts.bus != "" {
		var err error
		if bus, err = proxy.ParseBus(a.opts.bus); err != nil {
			return nil, err
		}
	}
	client, err := a.dial(bus)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// events returns the journal, or nil when journaling is disabled or the
// database cannot be opened.
func (a *app) events() *journal.Journal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eventsLocked()
}

func (a *app) eventsLocked() *journal.Journal {
	if a.journal != nil || !a.cfg.Journal.Enabled {
		return a.journal
	}
	path, err := a.cfg.JournalPath()
	if err != nil {
		common.LogWarn("Journal disabled: %v", err)
		return nil
	}
	j, err := a.openJournal(path)
	if err != nil {
		common.LogWarn("Journal disabled: %v", err)
		return nil
	}
	a.journal = j
	return j
}

// record writes to the journal if it is enabled. Failures are logged.
func (a *app) record(fn func(j *journal.Journal) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j := a.eventsLocked()
	if j == nil {
		return
	}
	if err := fn(j); err != nil {
		common.LogWarn("Journal write failed: %v", err)
	}
}

func (a *app) credentialStore() common.CredentialStore {
	if a.creds == nil {
		a.creds = keyring.New()
	}
	return a.creds
}

// notifications returns the desktop notifier, or nil when the session
// bus cannot be reached.
func (a *app) notifications() *notify.Notifier {
	if a.notifier != nil {
		return a.notifier
	}
	conn, err := a.dialNotify()
	if err != nil {
		common.LogWarn("Desktop notifications disabled: %v", err)
		return nil
	}
	a.notifyConn = conn
	a.notifier = notify.New(conn, common.AppName)
	return a.notifier
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.notifyConn != nil {
		a.notifyConn.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
}

// keepLogRotated checks the log file size periodically until the
// returned stop function is called. Commands that follow signals use it.
func keepLogRotated(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go common.GetLogger().WatchRotation(ctx, common.RotationCheckInterval)
	return cancel
}

func newRootCmd(a *app, info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "ovpn3",
		Short: "Manage OpenVPN 3 configuration profiles and sessions",
		Long: `ovpn3 talks to the OpenVPN 3 Linux services over D-Bus.

It imports configuration profiles, starts VPN sessions and answers their
credential requests, and shows session status, statistics and logs.
Session events are kept in a local journal.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg

			lc := cfg.LogConfig()
			if a.opts.verbose {
				lc.Level = common.LevelDebug
			}
			if err := common.InitLogger(lc); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not initialize file logging: %v\n", err)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&a.opts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	root.PersistentFlags().StringVar(&a.opts.configPath, "config", "",
		"Path to config file (default: ~/.config/ovpn3/config.yaml)")
	root.PersistentFlags().StringVar(&a.opts.bus, "bus", "",
		"Message bus to use: system or session (default from config)")

	root.AddCommand(
		newConfigCmd(a),
		newSessionCmd(a),
		newInterfacesCmd(a),
		newJournalCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute(info BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer common.CloseLogger()

	a := newApp()
	defer a.close()

	return run(ctx, newRootCmd(a, info), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		common.LogInfo("Operation cancelled")
		return 130
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
