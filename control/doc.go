// Package control
// Author: momentics <momentics@gmail.com>
//
// Session policy, its TOML configuration and hot reload, and the
// Prometheus counters the reassembly core reports to.
//
// Policies are plain values: every connection clones the one it starts
// with, so later edits or reloads never change a running session.
package control
