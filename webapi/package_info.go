// Package webapi connects to a lab server and manages its test sessions.
//
// Connect discovers the API version, obtains an API key and returns a Connection whose
// convention scope carries the key on every request. Sessions are child scopes of the
// connection that attach the session's error notifications to failed requests.
package webapi
