package mnists

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// tinyFiles builds a complete fake variant published the way the real ones
// are: gzipped IDX files. Three 2x2 training images with labels {0,1,0} and
// two test images with labels {1,0}.
func tinyFiles(t *testing.T) map[string][]byte {
	t.Helper()

	return map[string][]byte{
		"train-images.gz": gzBytes(t, idxBytes(U8, []int{3, 2, 2}, []byte{
			10, 20, 30, 40,
			50, 60, 70, 80,
			90, 100, 110, 120,
		})),
		"train-labels.gz": gzBytes(t, idxBytes(U8, []int{3}, []byte{0, 1, 0})),
		"test-images.gz":  gzBytes(t, idxBytes(U8, []int{2, 2, 2}, []byte{1, 2, 3, 4, 5, 6, 7, 8})),
		"test-labels.gz":  gzBytes(t, idxBytes(U8, []int{2}, []byte{1, 0})),
	}
}

// tinyDescriptor wires the given published files into a descriptor with
// checksums computed from their contents.
func tinyDescriptor(files map[string][]byte, mirror string) Descriptor {
	res := func(name string) Resource {
		return Resource{Filename: name, MD5: md5Hex(files[name])}
	}
	return Descriptor{
		Name:    "Tiny",
		Dir:     "Tiny",
		Mirrors: []string{mirror + "/"},
		Classes: []string{"circle", "square"},
		Train:   Split{Images: res("train-images.gz"), Labels: res("train-labels.gz")},
		Test:    Split{Images: res("test-images.gz"), Labels: res("test-labels.gz")},
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	files := tinyFiles(t)
	srv, counter := serveFiles(t, files)
	desc := tinyDescriptor(files, srv.URL)

	ds, err := New(desc, WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	trainImages, err := ds.TrainImages()
	if err != nil {
		t.Fatalf("TrainImages() error = %v", err)
	}
	if got := trainImages.Shape(); len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 2 {
		t.Errorf("TrainImages().Shape() = %v, want [3 2 2]", got)
	}
	if got := trainImages.U8At(2, 1, 1); got != 120 {
		t.Errorf("TrainImages().U8At(2,1,1) = %d, want 120", got)
	}

	trainLabels, err := ds.TrainLabels()
	if err != nil {
		t.Fatalf("TrainLabels() error = %v", err)
	}
	if got := trainLabels.U8(); len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 0 {
		t.Errorf("TrainLabels().U8() = %v, want [0 1 0]", got)
	}

	classes := ds.Classes()
	for i, label := range trainLabels.U8() {
		if int(label) >= len(classes) {
			t.Fatalf("label %d at index %d has no class name", label, i)
		}
	}
	if got := classes[trainLabels.U8()[1]]; got != "square" {
		t.Errorf("class of second sample = %q, want %q", got, "square")
	}

	testImages, err := ds.TestImages()
	if err != nil {
		t.Fatalf("TestImages() error = %v", err)
	}
	if got := testImages.Shape(); got[0] != 2 {
		t.Errorf("TestImages().Shape() = %v, want first axis 2", got)
	}

	testLabels, err := ds.TestLabels()
	if err != nil {
		t.Fatalf("TestLabels() error = %v", err)
	}
	if got := testLabels.Len(); got != 2 {
		t.Errorf("TestLabels().Len() = %d, want 2", got)
	}

	t.Run("arrays are memoized", func(t *testing.T) {
		again, err := ds.TrainImages()
		if err != nil {
			t.Fatalf("TrainImages() error = %v", err)
		}
		if again != trainImages {
			t.Error("second TrainImages() returned a different tensor")
		}

		for _, name := range []string{"train-images.gz", "train-labels.gz", "test-images.gz", "test-labels.gz"} {
			if hits := counter.get(name); hits != 1 {
				t.Errorf("%s hits = %d, want 1", name, hits)
			}
		}
	})
}

func TestDatasetConstructionHasNoSideEffects(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	desc := tinyDescriptor(tinyFiles(t), "http://unreachable.invalid")

	if _, err := New(desc, WithRoot(root)); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("New() should not create the cache root")
	}
}

func TestDatasetLoad(t *testing.T) {
	t.Run("loads all four arrays", func(t *testing.T) {
		files := tinyFiles(t)
		srv, counter := serveFiles(t, files)

		ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := ds.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		for _, name := range []string{"train-images.gz", "train-labels.gz", "test-images.gz", "test-labels.gz"} {
			if hits := counter.get(name); hits != 1 {
				t.Errorf("%s hits = %d, want 1", name, hits)
			}
		}
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		desc := tinyDescriptor(tinyFiles(t), "http://unreachable.invalid")

		ds, err := New(desc, WithRoot(t.TempDir()), WithDownload(false))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := ds.Load(context.Background()); !errors.Is(err, ErrNotCached) {
			t.Errorf("Load() error = %v, want ErrNotCached", err)
		}
	})
}

func TestDatasetFetch(t *testing.T) {
	files := tinyFiles(t)
	srv, counter := serveFiles(t, files)

	root := t.TempDir()
	ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ds.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	for name := range files {
		if _, err := os.Stat(filepath.Join(root, "Tiny", name)); err != nil {
			t.Errorf("%s not cached after Fetch(): %v", name, err)
		}
	}

	// A fresh offline dataset must now work entirely from the cache.
	offline, err := New(tinyDescriptor(files, srv.URL), WithRoot(root), WithDownload(false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := offline.TrainImages(); err != nil {
		t.Errorf("offline TrainImages() error = %v", err)
	}
	for _, name := range []string{"train-images.gz", "train-labels.gz", "test-images.gz", "test-labels.gz"} {
		if hits := counter.get(name); hits != 1 {
			t.Errorf("%s hits = %d, want 1", name, hits)
		}
	}
}

func TestDatasetLabelValidation(t *testing.T) {
	files := tinyFiles(t)
	// Label 7 has no class name in the two-class descriptor.
	files["train-labels.gz"] = gzBytes(t, idxBytes(U8, []int{3}, []byte{0, 7, 0}))
	srv, _ := serveFiles(t, files)

	ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := ds.TrainLabels(); !errors.Is(err, ErrFormat) {
		t.Errorf("TrainLabels() error = %v, want ErrFormat", err)
	}

	// The failed array must not poison the others.
	if _, err := ds.TrainImages(); err != nil {
		t.Errorf("TrainImages() error = %v, want nil", err)
	}
	if _, err := ds.TestLabels(); err != nil {
		t.Errorf("TestLabels() error = %v, want nil", err)
	}
}

func TestDatasetPairParity(t *testing.T) {
	files := tinyFiles(t)
	// Four labels for three images.
	files["train-labels.gz"] = gzBytes(t, idxBytes(U8, []int{4}, []byte{0, 1, 0, 1}))
	srv, _ := serveFiles(t, files)

	ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := ds.TrainImages(); err != nil {
		t.Fatalf("TrainImages() error = %v", err)
	}
	if _, err := ds.TrainLabels(); !errors.Is(err, ErrFormat) {
		t.Errorf("TrainLabels() error = %v, want ErrFormat for count mismatch", err)
	}

	// The untouched split still loads.
	if _, err := ds.TestImages(); err != nil {
		t.Errorf("TestImages() error = %v, want nil", err)
	}
	if _, err := ds.TestLabels(); err != nil {
		t.Errorf("TestLabels() error = %v, want nil", err)
	}
}

func TestDatasetTranspose(t *testing.T) {
	files := tinyFiles(t)
	// One 2x2 image [[1,2],[3,4]] published column-major: {1,3,2,4}.
	files["train-images.gz"] = gzBytes(t, idxBytes(U8, []int{1, 2, 2}, []byte{1, 3, 2, 4}))
	files["train-labels.gz"] = gzBytes(t, idxBytes(U8, []int{1}, []byte{0}))
	srv, _ := serveFiles(t, files)

	desc := tinyDescriptor(files, srv.URL)
	desc.Transpose = true

	ds, err := New(desc, WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	images, err := ds.TrainImages()
	if err != nil {
		t.Fatalf("TrainImages() error = %v", err)
	}

	want := []byte{1, 2, 3, 4}
	for i, w := range want {
		if got := images.U8()[i]; got != w {
			t.Errorf("U8()[%d] = %d, want %d (image should be row-major after load)", i, got, w)
		}
	}
}

func TestDatasetInt32LabelRecords(t *testing.T) {
	// Label files of (n, k) int32 records carry the class in column 0,
	// like QMNIST's idx2-int files.
	records := func(rows ...[3]int32) []byte {
		var out []byte
		for _, row := range rows {
			for _, v := range row {
				out = binary.BigEndian.AppendUint32(out, uint32(v))
			}
		}
		return out
	}

	t.Run("projects the first column", func(t *testing.T) {
		files := tinyFiles(t)
		files["train-labels.gz"] = gzBytes(t, idxBytes(I32, []int{3, 3}, records(
			[3]int32{0, 60000, 7},
			[3]int32{1, 60001, 8},
			[3]int32{0, 60002, 9},
		)))
		srv, _ := serveFiles(t, files)

		ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		labels, err := ds.TrainLabels()
		if err != nil {
			t.Fatalf("TrainLabels() error = %v", err)
		}
		if labels.Kind() != U8 || labels.Rank() != 1 {
			t.Fatalf("labels = rank-%d %s, want rank-1 uint8", labels.Rank(), labels.Kind())
		}
		if got := labels.U8(); got[0] != 0 || got[1] != 1 || got[2] != 0 {
			t.Errorf("labels = %v, want [0 1 0]", got)
		}
	})

	t.Run("rejects labels that do not fit uint8", func(t *testing.T) {
		files := tinyFiles(t)
		files["train-labels.gz"] = gzBytes(t, idxBytes(I32, []int{3, 3}, records(
			[3]int32{0, 0, 0},
			[3]int32{300, 0, 0},
			[3]int32{0, 0, 0},
		)))
		srv, _ := serveFiles(t, files)

		ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := ds.TrainLabels(); !errors.Is(err, ErrFormat) {
			t.Errorf("TrainLabels() error = %v, want ErrFormat", err)
		}
	})

	t.Run("rejects non-label shapes", func(t *testing.T) {
		files := tinyFiles(t)
		// Rank-2 uint8 is not a valid label array.
		files["train-labels.gz"] = gzBytes(t, idxBytes(U8, []int{3, 1}, []byte{0, 1, 0}))
		srv, _ := serveFiles(t, files)

		ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := ds.TrainLabels(); !errors.Is(err, ErrFormat) {
			t.Errorf("TrainLabels() error = %v, want ErrFormat", err)
		}
	})
}

func TestDatasetImageValidation(t *testing.T) {
	files := tinyFiles(t)
	// Rank-1 cannot be an image array.
	files["train-images.gz"] = gzBytes(t, idxBytes(U8, []int{4}, []byte{1, 2, 3, 4}))
	srv, _ := serveFiles(t, files)

	ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := ds.TrainImages(); !errors.Is(err, ErrFormat) {
		t.Errorf("TrainImages() error = %v, want ErrFormat", err)
	}
}

func TestDatasetAccessors(t *testing.T) {
	root := t.TempDir()
	desc := tinyDescriptor(tinyFiles(t), "http://unreachable.invalid")

	ds, err := New(desc, WithRoot(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := ds.Name(); got != "Tiny" {
		t.Errorf("Name() = %q, want Tiny", got)
	}
	if got, want := ds.Dir(), filepath.Join(root, "Tiny"); got != want {
		t.Errorf("Dir() = %q, want %q", got, want)
	}
	if got := ds.Root(); got != root {
		t.Errorf("Root() = %q, want %q", got, root)
	}

	t.Run("Classes returns a copy", func(t *testing.T) {
		classes := ds.Classes()
		classes[0] = "tampered"
		if got := ds.Classes()[0]; got != "circle" {
			t.Errorf("Classes()[0] = %q after mutating a copy, want circle", got)
		}
	})

	t.Run("Descriptor returns a deep copy", func(t *testing.T) {
		copied := ds.Descriptor()
		copied.Mirrors[0] = "https://tampered.invalid/"
		copied.Classes[0] = "tampered"

		fresh := ds.Descriptor()
		if fresh.Mirrors[0] != "http://unreachable.invalid/" {
			t.Error("mutating a returned descriptor's mirrors leaked into the dataset")
		}
		if fresh.Classes[0] != "circle" {
			t.Error("mutating a returned descriptor's classes leaked into the dataset")
		}
	})
}

func TestDatasetRemove(t *testing.T) {
	files := tinyFiles(t)
	srv, _ := serveFiles(t, files)

	root := t.TempDir()
	ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ds.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if err := ds.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(ds.Dir()); !os.IsNotExist(err) {
		t.Error("cache dir should not exist after Remove()")
	}
}

func TestDatasetConcurrentAccess(t *testing.T) {
	files := tinyFiles(t)
	srv, counter := serveFiles(t, files)

	ds, err := New(tinyDescriptor(files, srv.URL), WithRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, errs[i] = ds.TrainImages()
			case 1:
				_, errs[i] = ds.TrainLabels()
			case 2:
				_, errs[i] = ds.TestImages()
			default:
				_, errs[i] = ds.TestLabels()
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("accessor #%d error = %v", i, err)
		}
	}
	for _, name := range []string{"train-images.gz", "train-labels.gz", "test-images.gz", "test-labels.gz"} {
		if hits := counter.get(name); hits != 1 {
			t.Errorf("%s hits = %d, want 1", name, hits)
		}
	}
}

func TestOpen(t *testing.T) {
	t.Run("builtin variant", func(t *testing.T) {
		ds, err := Open("fmnist", WithRoot(t.TempDir()))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if got := ds.Name(); got != "FashionMNIST" {
			t.Errorf("Name() = %q, want FashionMNIST", got)
		}
	})

	t.Run("unknown variant", func(t *testing.T) {
		_, err := Open("nonsense")
		if !errors.Is(err, ErrUnknownDataset) {
			t.Errorf("Open() error = %v, want ErrUnknownDataset", err)
		}
	})

	t.Run("invalid custom descriptor", func(t *testing.T) {
		_, err := New(Descriptor{Name: "Broken"})
		if !errors.Is(err, ErrDescriptor) {
			t.Errorf("New() error = %v, want ErrDescriptor", err)
		}
	})
}
