// Package logging provides structured logging configuration for reflector.
//
// This package wraps log/slog so that the operator, the compiler and the
// supervisor log the same way. The operator logs to stdout next to the
// output of the nginx and sing-box children it supervises.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	log := logging.Component(logger, "operator")
//	log.Info("serving", "ports", "443")
//
// Components accept a *slog.Logger in their constructor. If none is given
// they fall back to logging.Nop().
package logging
