// Package logger provides structured logging for httpreq using zerolog.
//
// The request builder and transport log through component-scoped
// loggers; applications configure the global logger once.
//
// # Usage
//
//	logger.Init(logger.Config{Level: "debug", Format: "json"})
//	log := logger.Get("httpclient")
//	log.Info("Status Code: 200", logger.Fields(logger.FieldStatusCode, 200))
package logger
