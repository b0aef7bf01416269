package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yllada/openvpn3-go/vpn"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"configs", "cfg"},
		Short:   "Manage configuration profiles",
		Long: `Manage configuration profiles stored by the OpenVPN 3 configuration service.

CFG arguments accept a profile object path or a profile name.`,
	}
	cmd.AddCommand(
		newConfigImportCmd(a),
		newConfigListCmd(a),
		newConfigShowCmd(a),
		newConfigRemoveCmd(a),
		newConfigSealCmd(a),
		newConfigSetCmd(a),
		newConfigOverrideCmd(a),
		newConfigACLCmd(a),
	)
	return cmd
}

func newConfigImportCmd(a *app) *cobra.Command {
	var opts struct {
		name       string
		persistent bool
		singleUse  bool
	}
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a configuration profile",
		Long: `Import an OpenVPN configuration file. Use - to read from standard input.

Examples:
  ovpn3 config import office.ovpn --persistent
  cat office.ovpn | ovpn3 config import - --name office`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read configuration: %w", err)
			}

			name := opts.name
			if name == "" && args[0] != "-" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			client, err := a.connect()
			if err != nil {
				return err
			}
			cfg, err := client.Import(cmd.Context(), name, string(data), vpn.ImportOptions{
				SingleUse:  opts.singleUse,
				Persistent: opts.persistent,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration imported: %s\n", cfg.Path())
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Profile name (default: file name without extension)")
	cmd.Flags().BoolVar(&opts.persistent, "persistent", false, "Keep the profile across service restarts")
	cmd.Flags().BoolVar(&opts.singleUse, "single-use", false, "Remove the profile once a session is started from it")
	return cmd
}

func newConfigListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List available configuration profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			configs, err := client.Configurations(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := vpn.ConfigurationInfos(cmd.Context(), configs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No configuration profiles available.")
				return nil
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Name,
					short(info.Path),
					formatTime(info.Imported),
					formatTime(info.LastUsed),
					strconv.FormatUint(uint64(info.UsedCount), 10),
					configFlags(info),
				})
			}
			printTable(out, []string{"NAME", "ID", "IMPORTED", "LAST USED", "USED", "FLAGS"}, rows,
				alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft)
			return nil
		},
	}
}

func configFlags(info vpn.ConfigurationInfo) string {
	var flags []string
	if info.Persistent {
		flags = append(flags, "persistent")
	}
	if info.SingleUse {
		flags = append(flags, "single-use")
	}
	if info.LockedDown {
		flags = append(flags, "locked")
	}
	if info.Readonly {
		flags = append(flags, "sealed")
	}
	if info.PublicAccess {
		flags = append(flags, "public")
	}
	if info.DCO {
		flags = append(flags, "dco")
	}
	if !info.Valid {
		flags = append(flags, "invalid")
	}
	return orDash(strings.Join(flags, ","))
}

func newConfigShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show CFG",
		Short: "Print a configuration profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				doc, err := cfg.FetchJSON(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(out, doc)
			}
			text, err := cfg.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(out, text)
			if !strings.HasSuffix(text, "\n") {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the profile as JSON")
	return cmd
}

func newConfigRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove CFG",
		Aliases: []string{"rm"},
		Short:   "Remove a configuration profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			if err := cfg.Remove(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration removed: %s\n", cfg.Path())
			return nil
		},
	}
}

func newConfigSealCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seal CFG",
		Short: "Make a configuration profile permanently read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			if err := cfg.Seal(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration sealed: %s\n", cfg.Path())
			return nil
		},
	}
}

// settableProperties lists the profile properties config set accepts.
var settableProperties = []string{"name", "locked_down", "public_access", "dco", "transfer_owner_session"}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set CFG PROPERTY VALUE",
		Short: "Change a configuration profile property",
		Long: "Change a configuration profile property. Settable properties: " +
			strings.Join(settableProperties, ", ") + ".",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := propertyValue(args[1], args[2])
			if err != nil {
				return err
			}
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			if err := setProperty(cmd.Context(), cfg, args[1], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[1], value)
			return nil
		},
	}
}

// propertyValue converts a command-line value to the property's type.
func propertyValue(property, raw string) (interface{}, error) {
	switch property {
	case "name":
		if raw == "" {
			return nil, fmt.Errorf("name cannot be empty")
		}
		return raw, nil
	case "locked_down", "public_access", "dco", "transfer_owner_session":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s takes true or false, got %q", property, raw)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown property %q (settable: %s)", property, strings.Join(settableProperties, ", "))
}

func setProperty(ctx context.Context, cfg *vpn.Configuration, property string, value interface{}) error {
	switch property {
	case "name":
		return cfg.SetName(ctx, value.(string))
	case "locked_down":
		return cfg.SetLockedDown(ctx, value.(bool))
	case "public_access":
		return cfg.SetPublicAccess(ctx, value.(bool))
	case "dco":
		return cfg.SetDCO(ctx, value.(bool))
	case "transfer_owner_session":
		return cfg.SetTransferOwnerSession(ctx, value.(bool))
	}
	return fmt.Errorf("unknown property %q", property)
}

func newConfigOverrideCmd(a *app) *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   "override CFG [NAME [VALUE]]",
		Short: "Show, set or remove runtime overrides",
		Long: `Show, set or remove runtime overrides of a configuration profile.

Values "true" and "false" are sent as booleans, anything else as text.

Examples:
  ovpn3 config override office
  ovpn3 config override office server-override vpn2.example.com
  ovpn3 config override office ipv6 false
  ovpn3 config override office server-override --unset`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			switch {
			case unset:
				if len(args) != 2 {
					return fmt.Errorf("--unset takes exactly one override name")
				}
				return cfg.UnsetOverride(ctx, args[1])
			case len(args) == 3:
				var value interface{} = args[2]
				if b, err := strconv.ParseBool(args[2]); err == nil {
					value = b
				}
				return cfg.SetOverride(ctx, args[1], value)
			case len(args) == 2:
				return fmt.Errorf("missing value for override %s", args[1])
			}

			overrides, err := cfg.OverrideValues(ctx)
			if err != nil {
				return err
			}
			if len(overrides) == 0 {
				fmt.Fprintln(out, "No overrides set.")
				return nil
			}
			names := make([]string, 0, len(overrides))
			for k := range overrides {
				names = append(names, k)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, k := range names {
				rows = append(rows, []string{k, fmt.Sprint(overrides[k])})
			}
			printTable(out, []string{"OVERRIDE", "VALUE"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unset, "unset", false, "Remove the named override")
	return cmd
}

func newConfigACLCmd(a *app) *cobra.Command {
	var opts struct {
		grant  []uint
		revoke []uint
		public string
	}
	cmd := &cobra.Command{
		Use:   "acl CFG",
		Short: "Show or change who may use a configuration profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			for _, uid := range opts.grant {
				if err := cfg.AccessGrant(ctx, uint32(uid)); err != nil {
					return fmt.Errorf("grant %d: %w", uid, err)
				}
			}
			for _, uid := range opts.revoke {
				if err := cfg.AccessRevoke(ctx, uint32(uid)); err != nil {
					return fmt.Errorf("revoke %d: %w", uid, err)
				}
			}
			if opts.public != "" {
				public, err := strconv.ParseBool(opts.public)
				if err != nil {
					return fmt.Errorf("--public takes true or false")
				}
				if err := cfg.SetPublicAccess(ctx, public); err != nil {
					return err
				}
			}

			owner, err := cfg.Owner(ctx)
			if err != nil {
				return err
			}
			acl, err := cfg.ACL(ctx)
			if err != nil {
				return err
			}
			public, err := cfg.PublicAccess(ctx)
			if err != nil {
				return err
			}
			uids := make([]string, 0, len(acl))
			for _, uid := range acl {
				uids = append(uids, strconv.FormatUint(uint64(uid), 10))
			}
			printTable(out, []string{"OWNER", "PUBLIC", "GRANTED UIDS"}, [][]string{{
				strconv.FormatUint(uint64(owner), 10), yesNo(public), orDash(strings.Join(uids, ", ")),
			}})
			return nil
		},
	}
	cmd.Flags().UintSliceVar(&opts.grant, "grant", nil, "Give a user ID access (repeatable)")
	cmd.Flags().UintSliceVar(&opts.revoke, "revoke", nil, "Withdraw access from a user ID (repeatable)")
	cmd.Flags().StringVar(&opts.public, "public", "", "Allow every user to start sessions (true or false)")
	return cmd
}

// resolveConfiguration finds the profile named by ref.
func (a *app) resolveConfiguration(cmd *cobra.Command, ref string) (*vpn.Configuration, error) {
	client, err := a.connect()
	if err != nil {
		return nil, err
	}
	return client.ResolveConfiguration(cmd.Context(), ref)
}
