// Package output renders clinvault-cli results as a table, JSON or YAML.
//
// Table rendering reflects over structs, slices of structs and maps. Struct
// fields are controlled with a `table` tag:
//
//	table:"-"      never shown
//	table:"wide"   shown only with --wide
//	table:"millis" int64 Unix milliseconds rendered as a UTC timestamp
package output
