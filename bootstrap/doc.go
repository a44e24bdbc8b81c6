// Package bootstrap assembles a ready-to-use HTTP client from configuration.
//
// It loads Settings from file and environment, initializes the logger,
// registers the telemetry and transport components, and manages their
// startup and shutdown:
//
//	settings, err := bootstrap.LoadSettings()
//	client, err := bootstrap.New(settings)
//	err = client.RunTask(ctx, func(ctx context.Context, c *bootstrap.Client) error {
//	    b := c.NewBuilder()
//	    b.SetURL("https://api.example.com/v2/owners")
//	    _, err := b.Send(ctx, false)
//	    return err
//	})
package bootstrap
