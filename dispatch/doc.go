// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package dispatch sends every request the client makes to the collection service.

# Requests

A Dispatcher is built once per process and shared:

	d := dispatch.New(dispatch.Config{
		BaseURL:       "http://localhost:3318",
		ApplicationID: appID,
	}, creds)
	body, err := d.Do(ctx, "/collections/candidates", dispatch.Options{})

Do returns the raw JSON body, or nil for a 204.

# Credentials

When creds holds a session token it is sent as "Authorization: Bearer".
Otherwise the application id is sent as X-Application-Id. /login and /signup
always use the application id. A configured master key is added to every
request as X-Master-Key.

A response whose message says the session is invalid clears the stored token,
so the next request falls back to the application id.

# Retries

Each attempt is bounded by Config.Timeout (timeouts.Request by default). 5xx
responses, network errors and timeouts are retried up to Config.Retries times.
The wait before retry n is BaseDelay*2^n plus a random jitter below MaxJitter.
4xx responses fail at once with an *APIError carrying the status and the
server's message:

	if dispatch.StatusOf(err) == http.StatusNotFound { ... }

A canceled context is an abort rather than a failure. It is never retried,
and IsAborted reports it so callers can stay silent.
*/
package dispatch
