// Package api exposes the hub over HTTP.
//
// Routes relay core results rather than reinterpreting them: a failed login
// or a remote API error comes back as a 200 with success=false, while 401 is
// reserved for the shared-secret header and 404 for unknown accounts and
// events. A websocket endpoint streams recorded events live.
package api
