// Package entity defines the records routed by the query layer: their store
// address (Locator), their typed field set, their indexed tags and the
// schema that describes which fields are keys, native-filterable, or
// mapped onto tags.
//
// Two key shapes are supported:
//
//	table: PartitionKey + RowKey
//	blob:  Name, with up to MaxTags indexed string tags
//
// Bodies are stored as RFC 8785 canonical JSON (see ir.MarshalCanonical) so
// that ETags are stable across stores.
package entity
