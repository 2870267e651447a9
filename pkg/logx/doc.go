// Package logx is cronkeep's structured logger: a thin value type over
// zerolog whose output can be swapped at runtime.
//
// Console output uses a short timestamp and a file:line caller; the optional
// file sink is JSON. Loggers derived from a Service follow Service.Apply, so
// a config reload changes level and sinks without re-plumbing components.
package logx
