// Package log is the logging facade shared by every esdb component.
//
// Components receive a Logger at construction and derive scoped children
// with With, WithComponent or WithContext. There is no package-level default
// logger.
//
//	l, err := log.ApplyConfig(&log.Config{Level: "debug", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	l = l.WithComponent("streams")
//	l.Info("append accepted", log.Str("stream", "orders"), log.Int64("revision", 4))
//
// Records flow through a log/slog handler, so slog groups and attributes are
// accepted as well; groups become dotted key prefixes. The handler applies
// key redaction and per-message sampling configured through Config before
// the entry reaches the Formatter and the Outputs.
//
// Request-scoped values such as the request id travel in a context.Context
// via ContextWithField and are attached with Logger.WithContext.
//
// ToStdLogger and RedirectStdLog adapt a Logger for code that expects the
// standard library *log.Logger.
package log
