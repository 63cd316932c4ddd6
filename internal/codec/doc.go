// Package codec encodes store dumps and actions as canonical JSON and
// derives content hashes from them.
//
// Two dumps that are equal as plain data always encode to the same bytes,
// whatever Go types produced them, so hashes can deduplicate snapshots.
package codec
