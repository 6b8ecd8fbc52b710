// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package notify is the client's notification log.

A Store sits on two Backends:

  - RemoteBackend keeps notifications in the service's "notifications"
    collection so they follow the user between devices.
  - LocalBackend keeps a copy in the client's SQLite file (see localdb).

Add assigns a ULID, stamps the time and writes remote first. The local copy is
written regardless, so a notification raised while the service is down is
still listed. Add fails only when neither backend accepted the write.

	store, err := notify.New(
		notify.NewRemoteBackend(client),
		notify.NewLocalBackend(conn),
		notify.WithToaster(notify.ToasterFunc(show)),
	)
	n, err := store.Add(ctx, models.Notification{
		Title:    "Voting ended",
		Message:  "Voting is now closed",
		Type:     models.NotificationStatus,
		Priority: models.PriorityHigh,
	})

List merges both backends by id, preferring the remote copy. Read state only
moves from unread to read, so a copy marked read in either backend is read.
Both backends are trimmed to the newest DefaultRetention entries after each
add; older entries are dropped.
*/
package notify
