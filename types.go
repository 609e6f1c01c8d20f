package mnists

import (
	"fmt"
	"strings"
)

// Resource identifies one downloadable file of a dataset.
type Resource struct {
	// Filename is the file name exactly as published upstream,
	// e.g. "train-images-idx3-ubyte.gz".
	Filename string `yaml:"filename"`

	// MD5 is the hex MD5 checksum of the published file.
	// If empty, integrity verification is skipped for this resource.
	MD5 string `yaml:"md5,omitempty"`
}

// Split holds the image and label resources of one dataset split.
type Split struct {
	Images Resource `yaml:"images"`
	Labels Resource `yaml:"labels"`
}

// Archive describes a single upstream file that bundles all of a dataset's
// resources. When set, resources are extracted from the locally cached
// archive instead of being downloaded individually. The archive itself is
// fetched through the descriptor's mirrors.
type Archive struct {
	// Filename is the archive file name as published upstream.
	Filename string `yaml:"filename"`

	// MD5 is the hex MD5 checksum of the archive. Optional.
	MD5 string `yaml:"md5,omitempty"`
}

// Descriptor describes an MNIST-family dataset variant: where to fetch it,
// what its files are called, and what the label values mean.
//
// Built-in descriptors are available from Lookup and Variants. Custom
// descriptors can be constructed directly or loaded with LoadDescriptor.
type Descriptor struct {
	// Name is the canonical variant name, e.g. "MNIST" or "EMNIST-Balanced".
	Name string `yaml:"name"`

	// Dir is the subdirectory of the cache root holding this variant's
	// files. Variants may share a Dir: the EMNIST splits all use "EMNIST"
	// so the shared archive is fetched once.
	Dir string `yaml:"dir"`

	// Mirrors are base URLs tried in order until one succeeds.
	// Each must end with "/".
	Mirrors []string `yaml:"mirrors"`

	// Classes maps label values to human-readable class names:
	// Classes[label] names that label. Every label occurring in the
	// dataset must be a valid index into Classes.
	Classes []string `yaml:"classes"`

	// Train and Test are the two splits of the dataset.
	Train Split `yaml:"train"`
	Test  Split `yaml:"test"`

	// Archive, if non-nil, bundles every resource in one upstream file.
	Archive *Archive `yaml:"archive,omitempty"`

	// Transpose indicates images are stored column-major and must have
	// their last two axes swapped after decoding (EMNIST).
	Transpose bool `yaml:"transpose,omitempty"`
}

// resources returns all four resources in a fixed order:
// train images, train labels, test images, test labels.
func (d *Descriptor) resources() []Resource {
	return []Resource{d.Train.Images, d.Train.Labels, d.Test.Images, d.Test.Labels}
}

// validate checks the descriptor is complete enough to fetch and decode.
// Returns an error wrapping ErrDescriptor describing the first problem found.
func (d *Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrDescriptor)
	}
	if d.Dir == "" {
		return fmt.Errorf("%w: %s: dir is empty", ErrDescriptor, d.Name)
	}
	if strings.Contains(d.Dir, "/") || strings.Contains(d.Dir, "\\") || d.Dir == "." || d.Dir == ".." {
		return fmt.Errorf("%w: %s: dir %q must be a single path element", ErrDescriptor, d.Name, d.Dir)
	}
	if len(d.Mirrors) == 0 {
		return fmt.Errorf("%w: %s: no mirrors", ErrDescriptor, d.Name)
	}
	for _, m := range d.Mirrors {
		if !strings.HasSuffix(m, "/") {
			return fmt.Errorf("%w: %s: mirror %q must end with /", ErrDescriptor, d.Name, m)
		}
	}
	if len(d.Classes) == 0 {
		return fmt.Errorf("%w: %s: no classes", ErrDescriptor, d.Name)
	}
	for _, r := range d.resources() {
		if r.Filename == "" {
			return fmt.Errorf("%w: %s: resource filename is empty", ErrDescriptor, d.Name)
		}
	}
	if d.Archive != nil && d.Archive.Filename == "" {
		return fmt.Errorf("%w: %s: archive filename is empty", ErrDescriptor, d.Name)
	}
	return nil
}

// Progress reports download progress for one file.
type Progress struct {
	// Filename is the file being downloaded.
	Filename string

	// Total is the expected size in bytes, or -1 when the server did not
	// report a Content-Length.
	Total int64

	// Fetched is the number of bytes received so far.
	Fetched int64
}
