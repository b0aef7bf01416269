package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/journal"
	"github.com/yllada/openvpn3-go/keyring"
	"github.com/yllada/openvpn3-go/notify"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions", "s"},
		Short:   "Start and manage VPN sessions",
		Long: `Start and manage VPN sessions.

S arguments accept a session object path, a profile name or a tun device name.`,
	}
	cmd.AddCommand(
		newSessionStartCmd(a),
		newSessionListCmd(a),
		newSessionStatusCmd(a),
		newSessionStatsCmd(a),
		newSessionPauseCmd(a),
		newSessionActionCmd(a, "resume", "Resume a paused session", (*vpn.Session).Resume),
		newSessionActionCmd(a, "restart", "Reconnect a session", (*vpn.Session).Restart),
		newSessionActionCmd(a, "disconnect", "Disconnect and remove a session", (*vpn.Session).Disconnect),
		newSessionLogCmd(a),
		newSessionEventsCmd(a),
		newSessionWatchCmd(a),
		newSessionHealthCmd(a),
	)
	return cmd
}

// resolveSession finds the session named by ref.
func (a *app) resolveSession(cmd *cobra.Command, ref string) (*vpn.Session, error) {
	client, err := a.connect()
	if err != nil {
		return nil, err
	}
	return client.ResolveSession(cmd.Context(), ref)
}

// credentialProvider answers credential requests from the keyring when
// enabled and prompts for the rest.
func (a *app) credentialProvider(cmd *cobra.Command, profile string) vpn.CredentialProvider {
	prompt := newTerminalPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
	if !a.cfg.Credentials.UseKeyring {
		return prompt
	}
	return &keyring.Provider{
		Store:      a.credentialStore(),
		Profile:    profile,
		Next:       prompt,
		Save:       a.cfg.Credentials.Save,
		SaveMasked: a.cfg.Credentials.Save,
	}
}

func newSessionStartCmd(a *app) *cobra.Command {
	var wait, notifyUser bool
	cmd := &cobra.Command{
		Use:   "start CFG",
		Short: "Start a VPN session from a configuration profile",
		Long: `Start a VPN session from a configuration profile.

Credential requests are answered from the keyring when enabled, otherwise
the user is prompted. Passwords are read without echo. With --wait,
attention requests are shown and journaled, and credential requests
raised while connecting, such as dynamic challenges, are answered too.

Examples:
  ovpn3 session start office
  ovpn3 session start office --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			name, err := cfg.Name(ctx)
			if err != nil {
				return err
			}

			sess, err := cfg.NewTunnel(ctx)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			common.LogInfo("Session %s created from %s", short(sess.Path()), name)

			provider := a.credentialProvider(cmd, name)
			if err := sess.WaitReady(ctx, provider, a.cfg.ReadyPolicy()); err != nil {
				abandon(sess)
				return err
			}

			var (
				status    *proxy.Stream[proxy.Status]
				attention *proxy.Stream[proxy.AttentionRequired]
			)
			if wait {
				// subscribe before connecting so no transition is missed
				if status, err = sess.StatusChange(); err != nil {
					abandon(sess)
					return err
				}
				defer status.Close()
				if attention, err = sess.AttentionRequired(); err != nil {
					abandon(sess)
					return err
				}
				defer attention.Close()
			}
			if err := sess.Connect(ctx); err != nil {
				abandon(sess)
				return fmt.Errorf("connect: %w", err)
			}
			fmt.Fprintf(out, "Session started: %s\n", sess.Path())
			if !wait {
				return nil
			}
			var n *notify.Notifier
			if notifyUser {
				n = a.notifications()
			}

			// Credential requests raised while connecting, such as dynamic
			// challenges, are answered and the connection is retried.
			reconnect := func(ctx context.Context) error {
				if err := sess.WaitReady(ctx, provider, a.cfg.ReadyPolicy()); err != nil {
					return err
				}
				return sess.Connect(ctx)
			}
			actx, cancel := context.WithCancel(ctx)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.followAttention(actx, out, sess.Path(), attention, reconnect)
			}()
			defer wg.Wait()
			defer cancel()
			return a.awaitConnected(ctx, out, sess.Path(), name, status, n)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the tunnel is up or has failed")
	cmd.Flags().BoolVar(&notifyUser, "notify", false, "Show a desktop notification when --wait finishes")
	return cmd
}

// abandon disconnects a session that could not be started.
func abandon(sess *vpn.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), common.CallTimeout)
	defer cancel()
	if err := sess.Disconnect(ctx); err != nil {
		common.LogDebug("Cleanup of session %s failed: %v", short(sess.Path()), err)
	}
}

// awaitConnected prints status changes until the tunnel is up or a
// terminal failure is reported. n may be nil.
func (a *app) awaitConnected(ctx context.Context, out io.Writer, path dbus.ObjectPath, name string,
	status *proxy.Stream[proxy.Status], n *notify.Notifier) error {
	for st, err := range status.All(ctx) {
		if errors.Is(err, common.ErrDecode) {
			common.LogWarn("%v", err)
			continue
		}
		if err != nil {
			return err
		}
		a.record(func(j *journal.Journal) error { return j.RecordStatus(ctx, path, st) })
		fmt.Fprintf(out, "  %s\n", st)

		switch {
		case st.Is(proxy.StatusMajorConnection, proxy.StatusMinorConnConnected):
			fmt.Fprintln(out, "Connected.")
			if n != nil {
				n.Send(ctx, notify.Connected(name))
			}
			return nil
		case failedStatus(st):
			if n != nil {
				n.Send(ctx, notify.Failed(name, st))
			}
			return fmt.Errorf("session failed: %s", st)
		}
	}
	return fmt.Errorf("session %s: %w", short(path), common.ErrStreamClosed)
}

// followAttention prints and journals the attention requests of a
// session until ctx is done. respond, if not nil, is called for each
// credential request.
func (a *app) followAttention(ctx context.Context, out io.Writer, path dbus.ObjectPath,
	attention *proxy.Stream[proxy.AttentionRequired], respond func(context.Context) error) {
	for req, err := range attention.All(ctx) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				common.LogWarn("%v", err)
			}
			continue
		}
		a.record(func(j *journal.Journal) error { return j.RecordAttention(ctx, path, req) })
		fmt.Fprintf(out, "[attention] %s\n", formatAttention(req))
		if respond == nil || req.Type != proxy.AttentionTypeCredentials {
			continue
		}
		if err := respond(ctx); err != nil && ctx.Err() == nil {
			common.LogWarn("Answering credential request for %s failed: %v", short(path), err)
		}
	}
}

// failedStatus reports whether st ends a connection attempt.
func failedStatus(st proxy.Status) bool {
	switch st.Minor {
	case proxy.StatusMinorConnFailed,
		proxy.StatusMinorConnAuthFailed,
		proxy.StatusMinorConnDisconnected,
		proxy.StatusMinorConnDone,
		proxy.StatusMinorProcStopped,
		proxy.StatusMinorProcKilled,
		proxy.StatusMinorCfgError,
		proxy.StatusMinorCfgInlineMissing:
		return true
	}
	return false
}

func newSessionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List running sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			sessions, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := vpn.SessionInfos(cmd.Context(), sessions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No sessions running.")
				return nil
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Created.Before(infos[j].Created) })

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					short(info.Path),
					info.ConfigName,
					orDash(info.Device),
					formatTime(info.Created),
					info.Status.String(),
				})
			}
			printTable(out, []string{"SESSION", "CONFIG", "DEVICE", "CREATED", "STATUS"}, rows)
			return nil
		},
	}
}

func newSessionStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status S",
		Short: "Show the details of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.resolveSession(cmd, args[0])
			if err != nil {
				return err
			}
			info, err := sess.Info(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, info)
			}

			uptime := "-"
			if info.Connected() && !info.Created.IsZero() {
				uptime = formatDuration(time.Since(info.Created))
			}
			pid := "-"
			if info.BackendPID != 0 {
				pid = strconv.FormatUint(uint64(info.BackendPID), 10)
			}
			printTable(out, []string{"FIELD", "VALUE"}, [][]string{
				{"Session", string(info.Path)},
				{"Name", orDash(info.SessionName)},
				{"Config", info.ConfigName},
				{"Config path", string(info.ConfigPath)},
				{"Device", orDash(info.Device)},
				{"Owner", strconv.FormatUint(uint64(info.Owner), 10)},
				{"Backend PID", pid},
				{"Created", formatTime(info.Created)},
				{"Uptime", uptime},
				{"Status", info.Status.String()},
				{"Connected", yesNo(info.Connected())},
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")
	return cmd
}

func newSessionStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats S",
		Short: "Show tunnel statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.resolveSession(cmd, args[0])
			if err != nil {
				return err
			}
			stats, err := sess.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "No statistics available.")
				return nil
			}
			printTable(out, []string{"COUNTER", "VALUE"}, statRows(stats), alignLeft, alignRight)
			return nil
		},
	}
}

func statRows(stats proxy.Statistics) [][]string {
	names := make([]string, 0, len(stats))
	for k := range stats {
		names = append(names, k)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, k := range names {
		rows = append(rows, []string{k, formatStat(k, stats[k])})
	}
	return rows
}

func newSessionPauseCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "pause S",
		Short: "Pause a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.resolveSession(cmd, args[0])
			if err != nil {
				return err
			}
			if err := sess.Pause(cmd.Context(), reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session paused: %s\n", sess.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "user request", "Reason passed to the backend")
	return cmd
}

func newSessionActionCmd(a *app, use, desc string, action func(*vpn.Session, context.Context) error) *cobra.Command {
	done := map[string]string{"resume": "resumed", "restart": "restarted", "disconnect": "disconnected"}[use]
	return &cobra.Command{
		Use:   use + " S",
		Short: desc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.resolveSession(cmd, args[0])
			if err != nil {
				return err
			}
			if err := action(sess, cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s: %s\n", done, sess.Path())
			return nil
		},
	}
}

func newSessionLogCmd(a *app) *cobra.Command {
	var last bool
	cmd := &cobra.Command{
		Use:   "log S",
		Short: "Follow the log of a session",
		Long: `Follow the log of a session until interrupted. Status changes and
attention requests are shown between the log lines, and all of them are
written to the journal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			sess, err := a.resolveSession(cmd, args[0])
			if err != nil {
				return err
			}
			if last {
				ev, err := sess.LastLog(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ev)
				return nil
			}

			logs, err := sess.Log(ctx)
			if err != nil {
				return err
			}
			defer logs.Close()
			status, err := sess.StatusChange()
			if err != nil {
				return err
			}
			defer status.Close()
			attention, err := sess.AttentionRequired()
			if err != nil {
				return err
			}
			defer attention.Close()
			defer keepLogRotated(ctx)()

			ctx, cancel := context.WithCancel(ctx)
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				for st, err := range status.All(ctx) {
					if err != nil {
						continue
					}
					a.record(func(j *journal.Journal) error { return j.RecordStatus(ctx, sess.Path(), st) })
					fmt.Fprintf(out, "[status] %s\n", st)
				}
			}()
			go func() {
				defer wg.Done()
				a.followAttention(ctx, out, sess.Path(), attention, nil)
			}()
			defer wg.Wait()
			defer cancel()

			for ev, err := range logs.All(ctx) {
				if errors.Is(err, common.ErrDecode) {
					common.LogWarn("%v", err)
					continue
				}
				if err != nil {
					return err
				}
				a.record(func(j *journal.Journal) error { return j.RecordLog(ctx, ev) })
				fmt.Fprintln(out, ev)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "Print the last log line and exit")
	return cmd
}

func newSessionEventsCmd(a *app) *cobra.Command {
	var notifyUser bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow session creation and removal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			client, err := a.connect()
			if err != nil {
				return err
			}
			events, err := client.SessionEvents()
			if err != nil {
				return err
			}
			defer events.Close()
			defer keepLogRotated(ctx)()
			var n *notify.Notifier
			if notifyUser {
				n = a.notifications()
			}

			for ev, err := range events.All(ctx) {
				if errors.Is(err, common.ErrDecode) {
					common.LogWarn("%v", err)
					continue
				}
				if err != nil {
					return err
				}
				a.record(func(j *journal.Journal) error { return j.RecordSessionEvent(ctx, ev) })
				fmt.Fprintf(out, "%s %s %s (owner %d)\n",
					time.Now().Format("15:04:05"), ev.Type, ev.Path, ev.Owner)
				if n != nil && ev.Type == proxy.EventDestroyed {
					n.Send(ctx, notify.Disconnected(short(ev.Path)))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notifyUser, "notify", false, "Show a desktop notification when a session goes away")
	return cmd
}

func newSessionWatchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch S",
		Short: "Show a live view of a session",
		Long: `Show a live view of a session with its status, traffic counters and
recent log lines. Press p to pause, r to resume and q to quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.resolveSession(cmd, args[0])
			if err != nil {
				return err
			}
			return a.watch(cmd, sess, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Statistics refresh interval")
	return cmd
}

func newSessionHealthCmd(a *app) *cobra.Command {
	var monitor, notifyUser bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report the health of every session",
		Long: `Report the health of every session. With --monitor the sessions are
checked periodically until interrupted, state changes are printed and
journaled, and failing sessions are restarted when health.auto_restart
is enabled in the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			client, err := a.connect()
			if err != nil {
				return err
			}
			hc := vpn.NewHealthChecker(client, a.cfg.HealthConfig(), common.GetLogger())

			if !monitor {
				report, err := hc.CheckNow(ctx)
				if err != nil {
					return err
				}
				if len(report) == 0 {
					fmt.Fprintln(out, "No sessions running.")
					return nil
				}
				printTable(out, []string{"SESSION", "CONFIG", "HEALTH", "STATUS"}, healthRows(report))
				return nil
			}

			var n *notify.Notifier
			if notifyUser {
				n = a.notifications()
			}
			hc.SetOnHealthChange(func(path dbus.ObjectPath, from, to vpn.HealthState) {
				a.record(func(j *journal.Journal) error { return j.RecordHealth(context.Background(), path, from, to) })
				fmt.Fprintf(out, "%s %s: %s -> %s\n", time.Now().Format("15:04:05"), short(path), from, to)
				if n != nil && from != vpn.HealthUnknown {
					name := short(path)
					if h, ok := hc.GetHealth(path); ok && h.ConfigName != "" {
						name = h.ConfigName
					}
					n.Send(context.Background(), notify.HealthChanged(name, from, to))
				}
			})
			hc.SetOnRestarting(func(path dbus.ObjectPath, attempt int) {
				fmt.Fprintf(out, "%s %s: restarting (attempt %d)\n", time.Now().Format("15:04:05"), short(path), attempt)
			})
			hc.SetOnRestartFailed(func(path dbus.ObjectPath, err error) {
				fmt.Fprintf(out, "%s %s: restart failed: %v\n", time.Now().Format("15:04:05"), short(path), err)
			})
			hc.Start()
			defer hc.Stop()
			defer keepLogRotated(ctx)()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&monitor, "monitor", false, "Keep checking until interrupted")
	cmd.Flags().BoolVar(&notifyUser, "notify", false, "Show desktop notifications for state changes (with --monitor)")
	return cmd
}

func healthRows(report []vpn.SessionHealth) [][]string {
	rows := make([][]string, 0, len(report))
	for _, h := range report {
		status := h.Status.String()
		if h.LastError != nil {
			status = h.LastError.Error()
		}
		rows = append(rows, []string{short(h.Path), orDash(h.ConfigName), h.State.String(), status})
	}
	return rows
}
