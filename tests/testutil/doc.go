// Package testutil provides shared fixture builders for apksigner tests:
// throwaway keys and certificates, serialized keystores, encrypted key
// envelopes, signing profiles, and output assertions.
package testutil
