package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
)

func newInterfacesCmd(a *app) *cobra.Command {
	var watch, details bool
	cmd := &cobra.Command{
		Use:     "interfaces",
		Aliases: []string{"ifaces"},
		Short:   "List tun devices managed by VPN sessions",
		Long: `List tun devices managed by VPN sessions and the session owning each.

With --details, the network configuration service is asked for every
virtual interface it manages, including its MTU and DNS settings.

With --watch, network configuration changes are printed as they happen
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return a.watchNetwork(cmd)
			}
			if details {
				return a.listNetworkDevices(cmd)
			}

			ctx, out := cmd.Context(), cmd.OutOrStdout()
			client, err := a.connect()
			if err != nil {
				return err
			}
			devices, err := client.ManagedInterfaces(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(out, "No managed interfaces.")
				return nil
			}
			sort.Strings(devices)

			rows := make([][]string, 0, len(devices))
			for _, dev := range devices {
				row := []string{dev, "-", "-"}
				sess, err := client.LookupInterface(ctx, dev)
				if err != nil {
					common.LogDebug("Lookup of %s failed: %v", dev, err)
					rows = append(rows, row)
					continue
				}
				row[1] = short(sess.Path())
				if name, err := sess.ConfigName(ctx); err == nil {
					row[2] = name
				}
				rows = append(rows, row)
			}
			printTable(out, []string{"DEVICE", "SESSION", "CONFIG"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow network configuration changes")
	cmd.Flags().BoolVarP(&details, "details", "d", false, "Show device settings from the network configuration service")
	return cmd
}

// listNetworkDevices prints the interfaces known to the network
// configuration service. Devices that vanish while listing are skipped.
func (a *app) listNetworkDevices(cmd *cobra.Command) error {
	ctx, out := cmd.Context(), cmd.OutOrStdout()
	client, err := a.connect()
	if err != nil {
		return err
	}
	paths, err := client.NetCfg().FetchInterfaceList(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(paths))
	for _, path := range paths {
		row, err := netDeviceRow(ctx, proxy.NewNetCfgNode(client.Conn(), path))
		if err != nil {
			common.LogDebug("Skipping interface %s: %v", path, err)
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No managed interfaces.")
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	printTable(out, []string{"DEVICE", "ACTIVE", "LAYER", "MTU", "DNS SERVERS", "SEARCH DOMAINS"}, rows,
		alignLeft, alignLeft, alignRight, alignRight)
	return nil
}

func netDeviceRow(ctx context.Context, node *proxy.NetCfgNode) ([]string, error) {
	name, err := node.DeviceName(ctx)
	if err != nil {
		return nil, err
	}
	active, err := node.Active(ctx)
	if err != nil {
		return nil, err
	}
	layer, err := node.Layer(ctx)
	if err != nil {
		return nil, err
	}
	mtu, err := node.MTU(ctx)
	if err != nil {
		return nil, err
	}
	servers, err := node.DNSNameServers(ctx)
	if err != nil {
		return nil, err
	}
	domains, err := node.DNSSearchDomains(ctx)
	if err != nil {
		return nil, err
	}
	return []string{
		orDash(name),
		yesNo(active),
		strconv.FormatUint(uint64(layer), 10),
		strconv.FormatUint(uint64(mtu), 10),
		orDash(strings.Join(servers, ", ")),
		orDash(strings.Join(domains, ", ")),
	}, nil
}

func (a *app) watchNetwork(cmd *cobra.Command) error {
	ctx, out := cmd.Context(), cmd.OutOrStdout()
	client, err := a.connect()
	if err != nil {
		return err
	}
	changes, err := client.NetworkChanges(ctx, proxy.NetCfgAll)
	if err != nil {
		return err
	}
	defer func() {
		changes.Close()
		unsub, cancel := context.WithTimeout(context.Background(), common.CallTimeout)
		defer cancel()
		if err := client.NetCfg().NotificationUnsubscribe(unsub, ""); err != nil {
			common.LogDebug("Network change unsubscribe failed: %v", err)
		}
	}()
	defer keepLogRotated(ctx)()

	for ch, err := range changes.All(ctx) {
		if errors.Is(err, common.ErrDecode) {
			common.LogWarn("%v", err)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %-8s %s%s\n", time.Now().Format("15:04:05"), orDash(ch.Device), ch.Type, formatDetails(ch.Details))
	}
	return nil
}

func formatDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return " " + strings.Join(parts, " ")
}
