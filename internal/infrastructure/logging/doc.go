// Package logging builds the process zap logger.
//
// Production mode writes JSON, development mode writes colored console
// output. The level is atomic and can be changed at runtime with SetLevel,
// which the server does when its config file changes.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", ":8000"))
//	logger.Error("Failed to export spans", zap.Error(err))
package logging
