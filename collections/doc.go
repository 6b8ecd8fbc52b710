// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package collections is a typed client for the collection service.

	client := collections.New(dispatcher, creds)
	votes, err := client.Find(ctx, "votes",
		collections.Where{"category": "president"},
		collections.FindOptions{Sort: []string{"-createdAt"}, Limit: 50})
	n, err := client.Count(ctx, "votes", nil)

Find, FindOne, Get, Create, Update, Delete and Count map onto
/collections/{name}[/{id}]. Errors from the dispatcher are returned unchanged.
Records come back as models.Record. Decode converts one to a struct:

	state, err := collections.Decode[models.VoteControlState](rec)

SignUp and SignIn store the returned session token in the credential store.
SignOut revokes the session on the server when it can and always clears the
local token.
*/
package collections
