package mnists

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "ErrFormat",
			err:     ErrFormat,
			wantMsg: "mnists: invalid IDX data",
		},
		{
			name:    "ErrDownload",
			err:     ErrDownload,
			wantMsg: "mnists: download failed",
		},
		{
			name:    "ErrIntegrity",
			err:     ErrIntegrity,
			wantMsg: "mnists: checksum verification failed",
		},
		{
			name:    "ErrStorage",
			err:     ErrStorage,
			wantMsg: "mnists: storage error",
		},
		{
			name:    "ErrNotCached",
			err:     ErrNotCached,
			wantMsg: "mnists: file not cached",
		},
		{
			name:    "ErrUnknownDataset",
			err:     ErrUnknownDataset,
			wantMsg: "mnists: unknown dataset",
		},
		{
			name:    "ErrDescriptor",
			err:     ErrDescriptor,
			wantMsg: "mnists: invalid descriptor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()

			if !strings.HasPrefix(got, "mnists: ") {
				t.Errorf("%s: message %q does not have 'mnists: ' prefix", tt.name, got)
			}

			if got != tt.wantMsg {
				t.Errorf("%s: got %q, want %q", tt.name, got, tt.wantMsg)
			}
		})
	}
}

func TestErrorsIs(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrFormat", ErrFormat},
		{"ErrDownload", ErrDownload},
		{"ErrIntegrity", ErrIntegrity},
		{"ErrStorage", ErrStorage},
		{"ErrNotCached", ErrNotCached},
		{"ErrUnknownDataset", ErrUnknownDataset},
		{"ErrDescriptor", ErrDescriptor},
	}

	for _, tt := range sentinels {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("operation failed: %w", tt.err)

			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) = false, want true", tt.name)
			}

			doubleWrapped := fmt.Errorf("outer context: %w", wrapped)
			if !errors.Is(doubleWrapped, tt.err) {
				t.Errorf("errors.Is(doubleWrapped, %s) = false, want true", tt.name)
			}
		})
	}

	t.Run("sentinels are distinct", func(t *testing.T) {
		for i, a := range sentinels {
			for j, b := range sentinels {
				if i != j && errors.Is(a.err, b.err) {
					t.Errorf("errors.Is(%s, %s) = true, want false", a.name, b.name)
				}
			}
		}
	})
}
