// Package prefetch provides a unit-of-work lookup cache for keyed fetches.
//
// # Overview
//
// A Store sits in front of repeated primary key lookups (database rows by id)
// and remembers what it has seen for the lifetime of one request or task. It
// holds two kinds of slot per key:
//
//   - Present: the row was loaded and is returned by later fetches
//   - Absent: the row was asked for and the source confirmed it does not exist
//
// A key with no slot is unknown and must be loaded from the source.
//
// # Fetch / Collect cycle
//
// The store never queries the source of truth. Callers drive it:
//
//	remainder, users, err := prefetch.FetchAs[int64, User](store, "users", ids)
//	if len(remainder) > 0 {
//		loaded, err := db.LoadUsers(ctx, remainder)
//		// ...
//		prefetch.CollectAs(store, "users", func(u User) int64 { return u.ID }, loaded, remainder...)
//	}
//
// Passing the requested ids to Collect is what turns a missing row into an
// Absent slot, so the next fetch for it is answered without a query.
//
// # Keys
//
// Keys are normalized before indexing. Integers of any width and their decimal
// string address the same slot, fmt.Stringer values (uuid.UUID) use their
// String form, and composite keys are hashed from their msgpack encoding.
//
// # Size accounting
//
// Size reports an approximate byte count, grown on every Collect from the
// msgpack length of each item plus a fixed per-slot overhead. It never
// decreases until Reset. Treat it as a hint for callers that want to cap or
// drop a store, not as a precise memory budget.
//
// # Request scoping
//
// WithStore and FromContext carry a Store through a context. Registry creates
// one Store per unit of work, keyed by a generated id, and logs its footprint
// when the unit ends.
//
// # Configuration
//
// Config holds the Heuristics and Training flags as atomics, so one Config can
// be shared by concurrent units of work. NewConfig builds one from Flags, the
// plain struct loaded from the environment. The store only stores and toggles
// them; callers (see the repositorycache package) read them to decide
// when to collect opportunistically and whether to keep statistics.
package prefetch
