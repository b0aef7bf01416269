package vpn

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"
)

// maxInfoFetches bounds concurrent snapshot reads.
const maxInfoFetches = 8

// snapshots reads the info of every object concurrently, keeping the
// input order. Objects that disappear while being read are skipped.
func snapshots[T interface{ Path() dbus.ObjectPath }, I any](ctx context.Context, objs []T, info func(T, context.Context) (I, error)) ([]I, error) {
	infos := make([]I, len(objs))
	found := make([]bool, len(objs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInfoFetches)
	for i, obj := range objs {
		g.Go(func() error {
			v, err := info(obj, gctx)
			if isUnknownObject(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", obj.Path(), err)
			}
			infos[i], found[i] = v, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := infos[:0]
	for i, v := range infos {
		if found[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

// SessionInfos reads snapshots of several sessions concurrently.
func SessionInfos(ctx context.Context, sessions []*Session) ([]SessionInfo, error) {
	return snapshots(ctx, sessions, (*Session).Info)
}

// ConfigurationInfos reads snapshots of several profiles concurrently.
func ConfigurationInfos(ctx context.Context, configs []*Configuration) ([]ConfigurationInfo, error) {
	return snapshots(ctx, configs, (*Configuration).Info)
}
