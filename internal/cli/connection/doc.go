// Package connection is the clinvault-cli client of the clinvault-server
// admin listener. It unwraps the JSON response envelope and turns error
// envelopes into *APIError.
package connection
