package mnists

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// mirrorClient handles HTTP communication with upstream dataset mirrors.
type mirrorClient struct {
	// httpClient is used for HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages. May be nil.
	logger Logger
}

// newMirrorClient creates a new mirror client.
func newMirrorClient(client HTTPClient, logger Logger) *mirrorClient {
	return &mirrorClient{
		httpClient: client,
		logger:     logger,
	}
}

// get fetches one published file, trying each mirror base URL in order and
// returning the body of the first success along with the reported content
// length (-1 when the server did not send one). Mirror base URLs end with
// "/" so the request URL is the base plus the file name. The caller must
// close the body; read failures on it surface as ErrDownload.
//
// Every mirror failing yields the last failure wrapped in ErrDownload.
// There are no retries beyond the single pass over the mirror list.
func (m *mirrorClient) get(ctx context.Context, mirrors []string, filename string) (io.ReadCloser, int64, error) {
	var lastErr error
	for _, mirror := range mirrors {
		url := mirror + filename

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = fmt.Errorf("%w: creating request for %s: %v", ErrDownload, url, err)
			continue
		}

		resp, err := m.httpClient.Do(req)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("mirror failed", "url", url, "error", err)
			}
			lastErr = fmt.Errorf("%w: %s: %v", ErrDownload, url, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if m.logger != nil {
				m.logger.Warn("mirror failed", "url", url, "status", resp.StatusCode)
			}
			lastErr = fmt.Errorf("%w: %s: status %d", ErrDownload, url, resp.StatusCode)
			continue
		}

		if m.logger != nil {
			m.logger.Debug("downloading", "url", url, "size", resp.ContentLength)
		}
		return &downloadBody{ReadCloser: resp.Body, url: url}, resp.ContentLength, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s: no mirrors configured", ErrDownload, filename)
	}
	return nil, 0, lastErr
}

// downloadBody wraps a response body so mid-transfer read failures carry
// ErrDownload and the URL they came from.
type downloadBody struct {
	io.ReadCloser
	url string
}

func (b *downloadBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %s: %v", ErrDownload, b.url, err)
	}
	return n, err
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
