// Package labtest provides an in-process stand-in for the lab server, for use in tests.
//
// A Server routes requests by method and exact path to canned handlers and records every
// request it receives, so tests can assert on how many calls were made and what they carried.
// Helpers build the server's long-running operation and stats conventions out of
// httphelpers handlers.
package labtest
