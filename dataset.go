package mnists

import (
	"context"
	"fmt"
	"sync"
)

// resourceKind identifies one of a dataset's four arrays.
type resourceKind int

const (
	kindTrainImages resourceKind = iota
	kindTrainLabels
	kindTestImages
	kindTestLabels
)

// isImages reports whether k is an image array.
func (k resourceKind) isImages() bool {
	return k == kindTrainImages || k == kindTestImages
}

// counterpart returns the other half of k's split.
func (k resourceKind) counterpart() resourceKind {
	switch k {
	case kindTrainImages:
		return kindTrainLabels
	case kindTrainLabels:
		return kindTrainImages
	case kindTestImages:
		return kindTestLabels
	default:
		return kindTestImages
	}
}

// Dataset provides access to one MNIST-family variant. Files are fetched and
// decoded lazily: the first call to an accessor downloads (or finds cached)
// the underlying file, decodes it and memoizes the array for the dataset's
// lifetime. A failed array load leaves the other arrays untouched.
//
// Dataset is safe for concurrent use.
type Dataset struct {
	// desc describes the variant.
	desc Descriptor

	// cfg carries the construction settings.
	cfg *config

	// storage handles cache filesystem operations.
	storage *storage

	// fetcher resolves resources to verified local files.
	fetcher *fetcher

	// mu guards the memoized arrays.
	mu          sync.Mutex
	trainImages *Tensor
	trainLabels *Tensor
	testImages  *Tensor
	testLabels  *Tensor
}

// New creates a Dataset for desc. Construction validates the descriptor and
// resolves the cache root; nothing is downloaded, read or created on disk
// until an accessor, Load or Fetch is called.
func New(desc Descriptor, opts ...Option) (*Dataset, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	d := &Dataset{
		desc:    desc,
		cfg:     cfg,
		storage: newStorage(cfg.root),
	}
	d.fetcher = newFetcher(&d.desc, d.storage, newMirrorClient(cfg.httpClient, cfg.logger), cfg)
	return d, nil
}

// Open looks up a built-in variant by name and creates its Dataset.
func Open(name string, opts ...Option) (*Dataset, error) {
	desc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(desc, opts...)
}

// Name returns the dataset's canonical name.
func (d *Dataset) Name() string { return d.desc.Name }

// Dir returns the dataset's cache directory.
func (d *Dataset) Dir() string { return d.storage.dirPath(d.desc.Dir) }

// Root returns the resolved cache root directory.
func (d *Dataset) Root() string { return d.storage.root }

// Classes returns a copy of the class names. A label value is the index of
// its class name.
func (d *Dataset) Classes() []string {
	return append([]string(nil), d.desc.Classes...)
}

// Descriptor returns a copy of the dataset's descriptor.
func (d *Dataset) Descriptor() Descriptor {
	desc := d.desc
	desc.Mirrors = append([]string(nil), d.desc.Mirrors...)
	desc.Classes = append([]string(nil), d.desc.Classes...)
	if d.desc.Archive != nil {
		a := *d.desc.Archive
		desc.Archive = &a
	}
	return desc
}

// TrainImages returns the training images as a uint8 tensor, typically of
// shape (n, 28, 28), fetching and decoding the file on first use.
func (d *Dataset) TrainImages() (*Tensor, error) {
	return d.array(context.Background(), kindTrainImages)
}

// TrainLabels returns the training labels as a rank-1 uint8 tensor,
// fetching and decoding the file on first use.
func (d *Dataset) TrainLabels() (*Tensor, error) {
	return d.array(context.Background(), kindTrainLabels)
}

// TestImages returns the test images as a uint8 tensor, typically of shape
// (n, 28, 28), fetching and decoding the file on first use.
func (d *Dataset) TestImages() (*Tensor, error) {
	return d.array(context.Background(), kindTestImages)
}

// TestLabels returns the test labels as a rank-1 uint8 tensor, fetching and
// decoding the file on first use.
func (d *Dataset) TestLabels() (*Tensor, error) {
	return d.array(context.Background(), kindTestLabels)
}

// Load eagerly fetches and decodes all four arrays. Already loaded arrays
// are kept; the first failure stops the load and is returned.
func (d *Dataset) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kinds := []resourceKind{kindTrainImages, kindTrainLabels, kindTestImages, kindTestLabels}
	for _, k := range kinds {
		if _, err := d.arrayLocked(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Fetch ensures every dataset file is cached and verified without decoding
// anything. Fetching an archive-backed dataset downloads the shared archive
// once and extracts all member files.
func (d *Dataset) Fetch(ctx context.Context) error {
	for _, res := range d.desc.resources() {
		if _, err := d.fetcher.ensure(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the dataset's cache directory and everything in it. Arrays
// already decoded in memory remain usable; the next load after Remove
// fetches the files again. EMNIST splits share one directory, so removing
// one split removes the files of all of them.
func (d *Dataset) Remove() error {
	return d.storage.removeDir(d.desc.Dir)
}

// array returns the memoized tensor for kind k, loading it if needed.
func (d *Dataset) array(ctx context.Context, k resourceKind) (*Tensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.arrayLocked(ctx, k)
}

// arrayLocked implements array. Callers must hold d.mu.
func (d *Dataset) arrayLocked(ctx context.Context, k resourceKind) (*Tensor, error) {
	if t := *d.slot(k); t != nil {
		return t, nil
	}

	res := d.resource(k)
	path, err := d.fetcher.ensure(ctx, res)
	if err != nil {
		return nil, err
	}
	data, err := readPayload(path)
	if err != nil {
		return nil, err
	}
	t, err := DecodeIDX(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", res.Filename, err)
	}

	if k.isImages() {
		t, err = d.checkImages(t, res.Filename)
	} else {
		t, err = d.checkLabels(t, res.Filename)
	}
	if err != nil {
		return nil, err
	}
	if err := d.checkPair(k, t, res.Filename); err != nil {
		return nil, err
	}

	*d.slot(k) = t
	if d.cfg.logger != nil {
		d.cfg.logger.Debug("array loaded", "dataset", d.desc.Name, "file", res.Filename, "shape", t.Shape())
	}
	return t, nil
}

// slot returns the memoization field for kind k.
func (d *Dataset) slot(k resourceKind) **Tensor {
	switch k {
	case kindTrainImages:
		return &d.trainImages
	case kindTrainLabels:
		return &d.trainLabels
	case kindTestImages:
		return &d.testImages
	default:
		return &d.testLabels
	}
}

// resource returns the descriptor resource for kind k.
func (d *Dataset) resource(k resourceKind) Resource {
	switch k {
	case kindTrainImages:
		return d.desc.Train.Images
	case kindTrainLabels:
		return d.desc.Train.Labels
	case kindTestImages:
		return d.desc.Test.Images
	default:
		return d.desc.Test.Labels
	}
}

// checkImages validates an image array: uint8 with rank 2 or higher,
// applying the descriptor's transpose.
func (d *Dataset) checkImages(t *Tensor, filename string) (*Tensor, error) {
	if t.Kind() != U8 {
		return nil, fmt.Errorf("%w: %s: images must be uint8, got %s", ErrFormat, filename, t.Kind())
	}
	if t.Rank() < 2 {
		return nil, fmt.Errorf("%w: %s: images must have rank >= 2, got rank %d", ErrFormat, filename, t.Rank())
	}
	if d.desc.Transpose {
		t = t.Transpose()
	}
	return t, nil
}

// checkLabels validates a label array and verifies every label names a
// class. Labels are rank-1 uint8, with one decoded exception: QMNIST
// publishes rank-2 int32 records whose first column holds the class label.
func (d *Dataset) checkLabels(t *Tensor, filename string) (*Tensor, error) {
	switch {
	case t.Kind() == U8 && t.Rank() == 1:
	case t.Kind() == I32 && t.Rank() == 2 && t.Shape()[1] >= 1:
		var err error
		t, err = projectLabelColumn(t, filename)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s: labels must be rank-1 uint8, got rank-%d %s", ErrFormat, filename, t.Rank(), t.Kind())
	}

	classes := len(d.desc.Classes)
	for i, b := range t.U8() {
		if int(b) >= classes {
			return nil, fmt.Errorf("%w: %s: label %d at index %d exceeds %d classes", ErrFormat, filename, b, i, classes)
		}
	}
	return t, nil
}

// projectLabelColumn reduces an (n, k) int32 label record to its first
// column as uint8 labels.
func projectLabelColumn(t *Tensor, filename string) (*Tensor, error) {
	shape := t.Shape()
	rows, cols := shape[0], shape[1]
	vals := t.Int32s()

	out := make([]byte, rows)
	for i := 0; i < rows; i++ {
		v := vals[i*cols]
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: %s: label %d at index %d does not fit uint8", ErrFormat, filename, v, i)
		}
		out[i] = byte(v)
	}
	return &Tensor{kind: U8, dims: []int{rows}, data: out}, nil
}

// checkPair verifies sample-count parity between the two halves of a split
// once both are resident. The load completing the pair fails on mismatch.
func (d *Dataset) checkPair(k resourceKind, t *Tensor, filename string) error {
	other := *d.slot(k.counterpart())
	if other == nil {
		return nil
	}

	images, labels := t, other
	if !k.isImages() {
		images, labels = other, t
	}
	if images.Shape()[0] != labels.Len() {
		return fmt.Errorf("%w: %s: %d images but %d labels", ErrFormat, filename, images.Shape()[0], labels.Len())
	}
	return nil
}
