/*
Package log provides structured logging for the control plane using zerolog.

Init(cfg Config) sets the global level and output format (JSON for
production, console for local development) once at process start. Every
component derives a child logger scoped with a "component" field via
WithComponent, plus WithNodeID/WithVolumeID/WithPoolName where applicable, so
log lines can be filtered per entity without passing loggers through every
call site.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	nodeLog := log.WithNodeID("node-1")
	nodeLog.Info().Str("sync_state", "online").Msg("node sync complete")
*/
package log
