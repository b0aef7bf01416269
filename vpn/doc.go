// Package vpn is the high-level client for the OpenVPN 3 Linux
// services.
//
// A Client owns a bus connection and hands out Configuration and Session
// values bound to it. The typical flow imports a profile, starts a
// tunnel, negotiates credentials and connects:
//
//	client, err := vpn.Dial(proxy.SystemBus)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	cfg, err := client.Import(ctx, "office", profileText, vpn.ImportOptions{SingleUse: true})
//	if err != nil {
//		return err
//	}
//	session, err := cfg.NewTunnel(ctx)
//	if err != nil {
//		return err
//	}
//	creds := vpn.StaticCredentials{"username": user, "password": pass}
//	if err := session.WaitReady(ctx, creds, vpn.DefaultReadyPolicy()); err != nil {
//		return err
//	}
//	return session.Connect(ctx)
//
// HealthChecker samples session status periodically and can restart
// sessions whose tunnel keeps failing.
package vpn
