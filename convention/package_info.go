// Package convention implements the layered request conventions used to talk to the lab
// server.
//
// A Chain is one scope in a parent/child hierarchy: the root holds the API base URL and the
// shared HTTP client, a child such as a session holds its own relative URL, headers, query
// parameters and transport options. Every request resolves these from the root down to the
// scope that makes it, with more specific scopes overriding their ancestors key by key.
//
// The package also knows the server's long-running operation convention (202 Accepted plus a
// status resource that is polled to completion) and how to stream binary results.
package convention
