/*
Package log provides structured logging for booster components using zerolog.

The package keeps one global zerolog.Logger that is a no-op until Init is
called, so libraries embedding the pipeline stay silent unless the host
configures logging.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Level filters messages below the threshold (debug, info, warn, error).
JSONOutput switches between JSON lines and the human console writer.

# Context Loggers

Every long-lived component derives a child logger once at construction:

	logger := log.WithComponent("ingest")
	logger.Debug().Str("booster_id", id).Int64("sequence", seq).Msg("event buffered")

WithBoosterID and WithBatchID attach the identifiers used across the
execution pipeline so log lines can be grepped per booster or per batch.
*/
package log
