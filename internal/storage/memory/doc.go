// Package memory provides the ephemeral backend.
//
// Rows live in sharded maps from pkg/cmap with secondary indexes by owner,
// session and patient. Nothing survives a restart; the backend exists for
// deployments without a writable disk and as the failover target when the
// durable backend cannot start.
package memory
