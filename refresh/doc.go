// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package refresh drives periodic reloads from a single shared ticker.

Views that display remote data register a callback under a key:

	reg := refresh.New(30 * time.Second)
	reg.Register("candidates", func(ctx context.Context) error {
		_, err := reader.Refresh(ctx, "candidates", nil, collections.FindOptions{})
		return err
	})
	defer reg.Unregister("candidates")

However many callbacks are registered there is at most one ticker. It starts
with the first registration and stops when the last key is removed.
Registering an existing key replaces its callback.

Each tick runs every callback with bounded parallelism. A callback that fails
or panics is logged and does not affect the others. RefreshAll and Refresh run
callbacks on demand without waiting for the ticker.
*/
package refresh
