package mnists

import (
	"net/http"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := newConfig()

	t.Run("download enabled by default", func(t *testing.T) {
		if !cfg.download {
			t.Error("default download should be true")
		}
	})

	t.Run("force disabled by default", func(t *testing.T) {
		if cfg.force {
			t.Error("default force should be false")
		}
	})

	t.Run("default httpClient is http.DefaultClient", func(t *testing.T) {
		if cfg.httpClient != http.DefaultClient {
			t.Error("default httpClient should be http.DefaultClient")
		}
	})

	t.Run("default logger is nil", func(t *testing.T) {
		if cfg.logger != nil {
			t.Error("default logger should be nil")
		}
	})

	t.Run("default progressFn is nil", func(t *testing.T) {
		if cfg.progressFn != nil {
			t.Error("default progressFn should be nil")
		}
	})

	t.Run("default root is empty", func(t *testing.T) {
		if cfg.root != "" {
			t.Errorf("default root = %q, want empty", cfg.root)
		}
	})
}

func TestWithRoot(t *testing.T) {
	cfg := newConfig()
	WithRoot("/data/mnists")(cfg)

	if cfg.root != "/data/mnists" {
		t.Errorf("root = %q, want %q", cfg.root, "/data/mnists")
	}
}

func TestWithDownload(t *testing.T) {
	cfg := newConfig()
	WithDownload(false)(cfg)

	if cfg.download {
		t.Error("download should be false after WithDownload(false)")
	}

	WithDownload(true)(cfg)
	if !cfg.download {
		t.Error("download should be true after WithDownload(true)")
	}
}

func TestWithForce(t *testing.T) {
	cfg := newConfig()
	WithForce()(cfg)

	if !cfg.force {
		t.Error("force should be true after WithForce()")
	}
}

func TestWithProgress(t *testing.T) {
	cfg := newConfig()

	called := false
	WithProgress(func(p Progress) {
		called = true
	})(cfg)

	if cfg.progressFn == nil {
		t.Fatal("progressFn should not be nil after WithProgress()")
	}

	cfg.progressFn(Progress{Filename: "test"})
	if !called {
		t.Error("progressFn was not invoked")
	}
}

func TestWithHTTPClient(t *testing.T) {
	cfg := newConfig()
	customClient := &http.Client{}

	WithHTTPClient(customClient)(cfg)

	if cfg.httpClient != customClient {
		t.Error("httpClient should be the custom client")
	}
}

func TestWithLogger(t *testing.T) {
	cfg := newConfig()
	logger := &testLogger{}

	WithLogger(logger)(cfg)

	if cfg.logger != logger {
		t.Error("logger should be set")
	}
}

// testLogger is a simple Logger implementation for testing.
type testLogger struct {
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.messages = append(l.messages, "DEBUG: "+msg)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.messages = append(l.messages, "INFO: "+msg)
}

func (l *testLogger) Warn(msg string, keysAndValues ...any) {
	l.messages = append(l.messages, "WARN: "+msg)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.messages = append(l.messages, "ERROR: "+msg)
}
