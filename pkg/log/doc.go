// Package log wraps zerolog with burrow's global logger and the child
// loggers components attach their identifying fields with (component, pool,
// lease, backend, gateway pair).
package log
