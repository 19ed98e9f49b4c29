// File: internal/session/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package session tracks live connections so a process can terminate all
// of them at once, for example on shutdown.
package session
