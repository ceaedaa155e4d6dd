// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for the transport.
//
// Provides concurrent-safe state handling primitives including:
//   - the transport Config with defaults, validation and file/env loading
//   - a hot-reload ConfigStore decoding snapshots into Config
//   - counters and gauges consumed by the transport core
//   - debug probe registration and state export
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
