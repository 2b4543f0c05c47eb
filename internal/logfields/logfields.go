// Package logfields provides canonical log field names and helpers for structured logging across the engine.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
// These are used for structured logging with slog.
const (
	KeyTaskID     = "task_id"
	KeyTaskKind   = "task_kind"
	KeyTaskState  = "task_state"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyRepo       = "repository"
	KeyError      = "error"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyWorker     = "worker"
	KeyRemoteAddr = "remote_addr"
	KeyStatus     = "status"
	KeyName       = "name"
	KeyURL        = "url"
	KeyHost       = "host"
	KeyPort       = "port"
	KeyIPAddress  = "ip_address"
	KeyIPSource   = "ip_source"
	KeyProxyState = "proxy_state"
	KeyCategory   = "category"
	KeyAttempt    = "attempt"
)

// The following helpers return slog.Attr for common log fields, allowing composable structured logging.

func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }      // TaskID returns a slog.Attr for a task registry task ID.
func TaskKind(k string) slog.Attr     { return slog.String(KeyTaskKind, k) }     // TaskKind returns a slog.Attr for a task kind.
func TaskState(s string) slog.Attr    { return slog.String(KeyTaskState, s) }    // TaskState returns a slog.Attr for a task lifecycle state.
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }     // Stage returns a slog.Attr for a fallback stage name.
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) } // DurationMS returns a slog.Attr for duration in ms.
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }         // Repository returns a slog.Attr for a repository name.

// Path returns a slog.Attr for a file path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// File returns a slog.Attr for a file name.
func File(f string) slog.Attr { return slog.String(KeyFile, f) }

// Worker returns a slog.Attr for a worker ID.
func Worker(id string) slog.Attr { return slog.String(KeyWorker, id) }

// RemoteAddr returns a slog.Attr for a remote (proxy or peer) address.
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }

// Status returns a slog.Attr for an HTTP status code.
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// Name returns a slog.Attr for a generic name field.
func Name(n string) slog.Attr { return slog.String(KeyName, n) }

// URL returns a slog.Attr for a URL field, sanitized by the caller.
func URL(u string) slog.Attr { return slog.String(KeyURL, u) }

// Host returns a slog.Attr for a target host name.
func Host(h string) slog.Attr { return slog.String(KeyHost, h) }

// Port returns a slog.Attr for a target port.
func Port(p int) slog.Attr { return slog.Int(KeyPort, p) }

// IPAddress returns a slog.Attr for an IP address, masked per the active
// metrics redaction mode before it reaches this call.
func IPAddress(ip string) slog.Attr { return slog.String(KeyIPAddress, ip) }

// IPSource returns a slog.Attr for an IP candidate's source.
func IPSource(s string) slog.Attr { return slog.String(KeyIPSource, s) }

// ProxyState returns a slog.Attr for the proxy manager's current state.
func ProxyState(s string) slog.Attr { return slog.String(KeyProxyState, s) }

// Category returns a slog.Attr for a classerr.TaskCategory value.
func Category(c string) slog.Attr { return slog.String(KeyCategory, c) }

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// Error returns a slog.Attr for an error, or an empty string if nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
