package mnists

import "net/http"

// Option configures a Dataset.
type Option func(*config)

// config holds Dataset construction settings.
type config struct {
	// root overrides the cache root directory.
	root string

	// download controls whether missing files are fetched from mirrors.
	download bool

	// force causes re-download even when a valid cached copy exists.
	force bool

	// progressFn is called with progress updates during downloads.
	progressFn func(Progress)

	// httpClient is used for all mirror requests.
	httpClient HTTPClient

	// logger receives diagnostic log messages.
	logger Logger
}

// newConfig returns a config with default values.
func newConfig() *config {
	return &config{
		download:   true,
		httpClient: http.DefaultClient,
	}
}

// WithRoot overrides the cache root directory.
// Resolution order: WithRoot, then the MNISTS_DIR environment variable,
// then the default <temp dir>/mnists.
func WithRoot(dir string) Option {
	return func(c *config) {
		c.root = dir
	}
}

// WithDownload enables or disables downloading. When disabled, accessors
// return ErrNotCached for files absent from the cache and never touch the
// network. Downloading is enabled by default.
func WithDownload(enabled bool) Option {
	return func(c *config) {
		c.download = enabled
	}
}

// WithForce re-downloads files even when a valid cached copy exists.
func WithForce() Option {
	return func(c *config) {
		c.force = true
	}
}

// WithProgress sets a callback for progress updates during downloads.
// The callback is invoked from the goroutine performing the download.
func WithProgress(fn func(Progress)) Option {
	return func(c *config) {
		c.progressFn = fn
	}
}

// WithHTTPClient sets a custom HTTP client for mirror requests.
// Useful for testing with mock servers or customizing timeouts.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
