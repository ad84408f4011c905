// Package logger provides the structured logging interface used across igprofiler.
//
// It wraps zerolog behind a small Logger interface so packages can take a
// logger as a dependency and tests can swap in NewTestLogger or NewNopLogger.
//
//	err := logger.Initialize(&cfg.Logging)
//	ctx = logger.ContextWithSession(ctx, id)
//	logger.GetLogger().WithContext(ctx).Info("Analysis started")
//
//	log := logger.GetLogger().WithField("component", "fetcher")
//	log.InfoWithFields("Batch fetched", map[string]interface{}{
//	    "urls":   12,
//	    "failed": 1,
//	})
package logger
