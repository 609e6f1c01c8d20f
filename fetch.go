package mnists

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fetcher resolves descriptor resources to verified local cache files,
// downloading or extracting them on demand.
type fetcher struct {
	// desc is the dataset being fetched.
	desc *Descriptor

	// storage handles cache filesystem operations.
	storage *storage

	// client talks to the upstream mirrors.
	client *mirrorClient

	// cfg carries download, force, progress and logging settings.
	cfg *config

	// mu protects archiveForced.
	mu sync.Mutex

	// archiveForced records that a forced refresh of the shared archive
	// already happened for this fetcher.
	archiveForced bool
}

// newFetcher creates a fetcher for one dataset.
func newFetcher(desc *Descriptor, st *storage, client *mirrorClient, cfg *config) *fetcher {
	return &fetcher{
		desc:    desc,
		storage: st,
		client:  client,
		cfg:     cfg,
	}
}

// ensure returns the local path of one resource, downloading it from the
// mirrors or extracting it from the dataset's archive when needed. The
// returned path is only valid when the error is nil.
func (f *fetcher) ensure(ctx context.Context, res Resource) (string, error) {
	path := f.storage.filePath(f.desc.Dir, res.Filename)

	fill := func(ctx context.Context) error {
		if f.desc.Archive != nil {
			archivePath, err := f.ensureArchive(ctx)
			if err != nil {
				return err
			}
			return f.extractMember(archivePath, res, path)
		}
		return f.fetchFile(ctx, res, path)
	}

	if err := f.ensureFile(ctx, res, path, f.cfg.force, fill); err != nil {
		return "", err
	}
	return path, nil
}

// ensureFile makes sure one cached file exists and passes verification,
// invoking fill under the file's advisory lock when it does not. The cache
// is rechecked after acquiring the lock since another process may have
// completed the file while this one waited.
func (f *fetcher) ensureFile(ctx context.Context, res Resource, path string, force bool, fill func(context.Context) error) error {
	if !force {
		ok, err := f.storage.verifyFile(path, res.MD5)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	if err := f.storage.ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	lock, err := newFileLock(lockFilePath(path), f.storage.lockTimeout)
	if err != nil {
		return fmt.Errorf("%w: failed to create lock: %v", ErrStorage, err)
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: failed to acquire lock: %v", ErrStorage, err)
	}
	defer lock.Unlock()

	if !force {
		ok, err := f.storage.verifyFile(path, res.MD5)
		if err != nil {
			return err
		}
		if ok {
			if f.cfg.logger != nil {
				f.cfg.logger.Debug("cache populated by concurrent process", "file", res.Filename)
			}
			return nil
		}
	}

	return fill(ctx)
}

// ensureArchive returns the local path of the descriptor's archive,
// downloading it when absent. A forced fetcher refreshes the shared archive
// once, not once per member resource.
func (f *fetcher) ensureArchive(ctx context.Context) (string, error) {
	a := f.desc.Archive
	res := Resource{Filename: a.Filename, MD5: a.MD5}
	path := f.storage.filePath(f.desc.Dir, a.Filename)

	fill := func(ctx context.Context) error {
		return f.fetchFile(ctx, res, path)
	}
	if err := f.ensureFile(ctx, res, path, f.takeArchiveForce(), fill); err != nil {
		return "", err
	}
	return path, nil
}

// takeArchiveForce consumes the one forced archive refresh. The flag is
// consumed on the attempt, not on success: a failed forced download installs
// nothing, so the next ensure re-downloads the missing file anyway.
func (f *fetcher) takeArchiveForce() bool {
	if !f.cfg.force {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archiveForced {
		return false
	}
	f.archiveForced = true
	return true
}

// fetchFile downloads one published file into path, verifying the checksum
// in-flight and installing atomically. Nothing is left at path on failure.
// When downloading is disabled it reports the cache state instead.
func (f *fetcher) fetchFile(ctx context.Context, res Resource, path string) error {
	if !f.cfg.download {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotCached, res.Filename)
		}
		return fmt.Errorf("%w: %s: cached copy is corrupt and downloading is disabled", ErrIntegrity, res.Filename)
	}

	body, size, err := f.client.get(ctx, f.desc.Mirrors, res.Filename)
	if err != nil {
		return err
	}
	defer body.Close()

	var r io.Reader = body
	if f.cfg.progressFn != nil {
		fn := f.cfg.progressFn
		var fetched int64
		r = &progressReader{reader: r, onProgress: func(delta int64) {
			fetched += delta
			fn(Progress{Filename: res.Filename, Total: size, Fetched: fetched})
		}}
	}
	r = newIntegrityReader(r, res.MD5, res.Filename)

	n, err := f.storage.installStream(path, r)
	if err != nil {
		return err
	}
	if f.cfg.logger != nil {
		f.cfg.logger.Info("downloaded", "file", res.Filename, "bytes", n)
	}
	return nil
}

// integrityReader verifies an MD5 checksum over everything read through it,
// failing the read that reaches EOF when the sum does not match. Verifying
// in-flight means a bad download never gets installed.
type integrityReader struct {
	r    io.Reader
	hash hash.Hash
	want string
	name string
}

// newIntegrityReader wraps r with in-flight MD5 verification.
// An empty expected sum returns r unchanged.
func newIntegrityReader(r io.Reader, wantMD5, name string) io.Reader {
	if wantMD5 == "" {
		return r
	}
	return &integrityReader{r: r, hash: md5.New(), want: wantMD5, name: name}
}

func (ir *integrityReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.hash.Write(p[:n])
	}
	if err == io.EOF {
		got := hex.EncodeToString(ir.hash.Sum(nil))
		if !strings.EqualFold(got, ir.want) {
			return n, fmt.Errorf("%w: %s: md5 %s, want %s", ErrIntegrity, ir.name, got, ir.want)
		}
	}
	return n, err
}

// gzipMagic is the two-byte gzip stream prefix.
var gzipMagic = []byte{0x1f, 0x8b}

// openPayload opens a cached file for reading, transparently decompressing
// gzip streams. Compression is detected by the .gz extension, with a magic
// byte check as fallback for files published without one. The second return
// reports whether decompression is active.
func openPayload(path string) (io.ReadCloser, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to open %s: %v", ErrStorage, path, err)
	}

	br := bufio.NewReader(f)
	compressed := strings.HasSuffix(path, ".gz")
	if !compressed {
		if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
			compressed = true
		}
	}
	if !compressed {
		return &payloadReader{r: br, f: f}, false, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, true, fmt.Errorf("%w: %s: %v", ErrFormat, filepath.Base(path), err)
	}
	return &payloadReader{r: gz, f: f, gz: gz}, true, nil
}

// readPayload reads a cached file fully, decompressed.
func readPayload(path string) ([]byte, error) {
	rc, compressed, err := openPayload(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if compressed {
			return nil, fmt.Errorf("%w: %s: %v", ErrFormat, filepath.Base(path), err)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrStorage, path, err)
	}
	return data, nil
}

// payloadReader reads a possibly compressed cache file and closes both the
// decompressor and the underlying file.
type payloadReader struct {
	r  io.Reader
	f  *os.File
	gz *gzip.Reader
}

func (p *payloadReader) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *payloadReader) Close() error {
	var gzErr error
	if p.gz != nil {
		gzErr = p.gz.Close()
	}
	if err := p.f.Close(); err != nil {
		return err
	}
	return gzErr
}
