// Package admintools implements the operator tool dispatcher behind the
// admin system-tools endpoint. Every tool runs a bounded, named operation
// and reports back a uniform ToolResult envelope so the dashboard renders
// all of them the same way.
//
// The bulk operation path is permanently disabled. The dispatcher only ever
// holds a disabled BulkMode; there is no configuration flag, env var, or
// request parameter that enables it.
package admintools
