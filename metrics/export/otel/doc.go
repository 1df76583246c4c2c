// Package otel exports engine metrics through an OpenTelemetry meter using
// observable instruments and a single snapshot callback.
package otel
