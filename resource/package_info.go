// Package resource is the client-side model of hypermedia resources returned by the lab server.
//
// A parsed JSON object becomes an *Object: an ordered set of fields that is locked against
// accidental creation of new fields, remembers the Location it was fetched from, and can
// expand any relation in its "links" list into a field on first access. JSON arrays become
// *List values. Both can be written back to, refreshed from, or deleted at their source.
package resource
