package mnists

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// mnistClasses name the ten digit labels. QMNIST reuses MNIST's label set.
var mnistClasses = []string{
	"0 - zero",
	"1 - one",
	"2 - two",
	"3 - three",
	"4 - four",
	"5 - five",
	"6 - six",
	"7 - seven",
	"8 - eight",
	"9 - nine",
}

var fashionClasses = []string{
	"T-shirt/top",
	"Trouser",
	"Pullover",
	"Dress",
	"Coat",
	"Sandal",
	"Shirt",
	"Sneaker",
	"Bag",
	"Ankle boot",
}

var kmnistClasses = []string{
	"お - o",
	"き - ki",
	"す - su",
	"つ - tsu",
	"な - na",
	"は - ha",
	"ま - ma",
	"や - ya",
	"れ - re",
	"を - wo",
}

// emnistBalancedClasses are the 47 merged classes of the Balanced split.
// Entries like "C - c" mark letters whose upper and lower case forms were
// merged into one class. The ByMerge split uses the same label set.
var emnistBalancedClasses = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"A", "B", "C - c", "D", "E", "F", "G", "H", "I - i", "J - j",
	"K - k", "L - l", "M - m", "N", "O - o", "P - p", "Q", "R", "S - s", "T",
	"U - u", "V - v", "W - w", "X - x", "Y - y", "Z - z",
	"a", "b", "d", "e", "f", "g", "h", "n", "q", "r", "t",
}

var emnistByClassClasses = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
}

var emnistDigitsClasses = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
}

// emnistLettersClasses start with a placeholder because the Letters split
// publishes 1-indexed labels: label 1 is "a" and label 0 never occurs.
var emnistLettersClasses = []string{
	"N/A",
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
}

// emnistMirrors host the single zip archive bundling every EMNIST split.
var emnistMirrors = []string{
	"https://biometrics.nist.gov/cs_links/EMNIST/",
}

// emnistArchive is shared by all EMNIST splits; they use the same cache dir
// so the 560 MB download happens once.
var emnistArchive = Archive{
	Filename: "gzip.zip",
	MD5:      "58c8d27c78d21e728a6bc7b3cc06412e",
}

// MNIST returns the descriptor for the MNIST handwritten digits dataset
// (http://yann.lecun.com/exdb/mnist).
func MNIST() Descriptor {
	return Descriptor{
		Name: "MNIST",
		Dir:  "MNIST",
		Mirrors: []string{
			"https://storage.googleapis.com/cvdf-datasets/mnist/",
			"https://ossci-datasets.s3.amazonaws.com/mnist/",
			"http://yann.lecun.com/exdb/mnist/",
		},
		Classes: append([]string(nil), mnistClasses...),
		Train: Split{
			Images: Resource{"train-images-idx3-ubyte.gz", "f68b3c2dcbeaaa9fbdd348bbdeb94873"},
			Labels: Resource{"train-labels-idx1-ubyte.gz", "d53e105ee54ea40749a09fcbcd1e9432"},
		},
		Test: Split{
			Images: Resource{"t10k-images-idx3-ubyte.gz", "9fb629c4189551a2d022fa330f9573f3"},
			Labels: Resource{"t10k-labels-idx1-ubyte.gz", "ec29112dd5afa0611ce80d1b7f02629c"},
		},
	}
}

// FashionMNIST returns the descriptor for Zalando's Fashion-MNIST dataset
// (https://github.com/zalandoresearch/fashion-mnist).
func FashionMNIST() Descriptor {
	return Descriptor{
		Name: "FashionMNIST",
		Dir:  "FashionMNIST",
		Mirrors: []string{
			"http://fashion-mnist.s3-website.eu-central-1.amazonaws.com/",
		},
		Classes: append([]string(nil), fashionClasses...),
		Train: Split{
			Images: Resource{"train-images-idx3-ubyte.gz", "8d4fb7e6c68d591d4c3dfef9ec88bf0d"},
			Labels: Resource{"train-labels-idx1-ubyte.gz", "25c81989df183df01b3e8a0aad5dffbe"},
		},
		Test: Split{
			Images: Resource{"t10k-images-idx3-ubyte.gz", "bef4ecab320f06d8554ea6380940ec79"},
			Labels: Resource{"t10k-labels-idx1-ubyte.gz", "bb300cfdad3c16e7a12a480ee83cd310"},
		},
	}
}

// KMNIST returns the descriptor for the Kuzushiji-MNIST dataset
// (https://github.com/rois-codh/kmnist).
func KMNIST() Descriptor {
	return Descriptor{
		Name: "KMNIST",
		Dir:  "KMNIST",
		Mirrors: []string{
			"http://codh.rois.ac.jp/kmnist/dataset/kmnist/",
		},
		Classes: append([]string(nil), kmnistClasses...),
		Train: Split{
			Images: Resource{"train-images-idx3-ubyte.gz", "bdb82020997e1d708af4cf47b453dcf7"},
			Labels: Resource{"train-labels-idx1-ubyte.gz", "e144d726b3acfaa3e44228e80efcd344"},
		},
		Test: Split{
			Images: Resource{"t10k-images-idx3-ubyte.gz", "5c965bf0a639b31b8f53240b1b52f4d7"},
			Labels: Resource{"t10k-labels-idx1-ubyte.gz", "7320c461ea6c1c855c0b718fb2a4b134"},
		},
	}
}

// emnistSplit builds one EMNIST split descriptor. All splits share a cache
// dir, the archive and the transposed image orientation
// (https://www.westernsydney.edu.au/bens/home/reproducible_research/emnist).
func emnistSplit(name string, classes []string, train, test Split) Descriptor {
	archive := emnistArchive
	return Descriptor{
		Name:      "EMNIST-" + name,
		Dir:       "EMNIST",
		Mirrors:   append([]string(nil), emnistMirrors...),
		Classes:   append([]string(nil), classes...),
		Train:     train,
		Test:      test,
		Archive:   &archive,
		Transpose: true,
	}
}

// EMNISTBalanced returns the descriptor for the EMNIST Balanced split.
func EMNISTBalanced() Descriptor {
	return emnistSplit("Balanced", emnistBalancedClasses,
		Split{
			Images: Resource{"emnist-balanced-train-images-idx3-ubyte.gz", "4041b0d6f15785d3fa35263901b5496b"},
			Labels: Resource{"emnist-balanced-train-labels-idx1-ubyte.gz", "7a35cc7b2b7ee7671eddf028570fbd20"},
		},
		Split{
			Images: Resource{"emnist-balanced-test-images-idx3-ubyte.gz", "6818d20fe2ce1880476f747bbc80b22b"},
			Labels: Resource{"emnist-balanced-test-labels-idx1-ubyte.gz", "acd3694070dcbf620e36670519d4b32f"},
		})
}

// EMNISTByClass returns the descriptor for the EMNIST ByClass split.
func EMNISTByClass() Descriptor {
	return emnistSplit("ByClass", emnistByClassClasses,
		Split{
			Images: Resource{"emnist-byclass-train-images-idx3-ubyte.gz", "712dda0bd6f00690f32236ae4325c377"},
			Labels: Resource{"emnist-byclass-train-labels-idx1-ubyte.gz", "ee299a3ee5faf5c31e9406763eae7e43"},
		},
		Split{
			Images: Resource{"emnist-byclass-test-images-idx3-ubyte.gz", "1435209e34070a9002867a9ab50160d7"},
			Labels: Resource{"emnist-byclass-test-labels-idx1-ubyte.gz", "7a0f934bd176c798ecba96b36fda6657"},
		})
}

// EMNISTByMerge returns the descriptor for the EMNIST ByMerge split.
// ByMerge merges the same case pairs as Balanced, so it shares that label set.
func EMNISTByMerge() Descriptor {
	return emnistSplit("ByMerge", emnistBalancedClasses,
		Split{
			Images: Resource{"emnist-bymerge-train-images-idx3-ubyte.gz", "4a792d4df261d7e1ba27979573bf53f3"},
			Labels: Resource{"emnist-bymerge-train-labels-idx1-ubyte.gz", "491be69ef99e1ab1f5b7f9ccc908bb26"},
		},
		Split{
			Images: Resource{"emnist-bymerge-test-images-idx3-ubyte.gz", "8eb5d34c91f1759a55831c37ec2a283f"},
			Labels: Resource{"emnist-bymerge-test-labels-idx1-ubyte.gz", "c13f4cd5211cdba1b8fa992dae2be992"},
		})
}

// EMNISTDigits returns the descriptor for the EMNIST Digits split.
func EMNISTDigits() Descriptor {
	return emnistSplit("Digits", emnistDigitsClasses,
		Split{
			Images: Resource{"emnist-digits-train-images-idx3-ubyte.gz", "d2662ecdc47895a6bbfce25de9e9a677"},
			Labels: Resource{"emnist-digits-train-labels-idx1-ubyte.gz", "2223fcfee618ac9c89ef20b6e48bcf9e"},
		},
		Split{
			Images: Resource{"emnist-digits-test-images-idx3-ubyte.gz", "a159b8b3bd6ab4ed4793c1cb71a2f5cc"},
			Labels: Resource{"emnist-digits-test-labels-idx1-ubyte.gz", "8afde66ea51d865689083ba6bb779fac"},
		})
}

// EMNISTLetters returns the descriptor for the EMNIST Letters split.
// Its labels are 1-indexed upstream; Classes[0] is a placeholder.
func EMNISTLetters() Descriptor {
	return emnistSplit("Letters", emnistLettersClasses,
		Split{
			Images: Resource{"emnist-letters-train-images-idx3-ubyte.gz", "8795078f199c478165fe18db82625747"},
			Labels: Resource{"emnist-letters-train-labels-idx1-ubyte.gz", "c16de4f1848ddcdddd39ab65d2a7be52"},
		},
		Split{
			Images: Resource{"emnist-letters-test-images-idx3-ubyte.gz", "382093a19703f68edac6d01b8dfdfcad"},
			Labels: Resource{"emnist-letters-test-labels-idx1-ubyte.gz", "d4108920cd86601ec7689a97f2de7f59"},
		})
}

// QMNIST returns the descriptor for the QMNIST reconstruction of the MNIST
// test set (https://github.com/facebookresearch/qmnist). Its label files are
// rank-2 int32 records whose first column is the class label; the accessors
// project that column out.
func QMNIST() Descriptor {
	return Descriptor{
		Name: "QMNIST",
		Dir:  "QMNIST",
		Mirrors: []string{
			"https://raw.githubusercontent.com/facebookresearch/qmnist/master/",
		},
		Classes: append([]string(nil), mnistClasses...),
		Train: Split{
			Images: Resource{"qmnist-train-images-idx3-ubyte.gz", "ed72d4157d28c017586c42bc6afe6370"},
			Labels: Resource{"qmnist-train-labels-idx2-int.gz", "0058f8dd561b90ffdd0f734c6a30e5e4"},
		},
		Test: Split{
			Images: Resource{"qmnist-test-images-idx3-ubyte.gz", "1394631089c404de565df7b7aeaf9412"},
			Labels: Resource{"qmnist-test-labels-idx2-int.gz", "5b5b05890a5e13444e108efe57b788aa"},
		},
	}
}

// Variants returns the built-in dataset descriptors in a stable order.
func Variants() []Descriptor {
	return []Descriptor{
		MNIST(),
		FashionMNIST(),
		KMNIST(),
		EMNISTBalanced(),
		EMNISTByClass(),
		EMNISTByMerge(),
		EMNISTDigits(),
		EMNISTLetters(),
		QMNIST(),
	}
}

// variantAliases maps normalized alternate names to canonical variant names.
var variantAliases = map[string]string{
	"fmnist":         "FashionMNIST",
	"kuzushijimnist": "KMNIST",
}

// Lookup finds a built-in variant by name. Matching ignores case and
// punctuation, so "emnist-balanced", "EMNIST Balanced" and "EMNISTBalanced"
// are all accepted, as are the FMNIST and KuzushijiMNIST aliases.
// Returns ErrUnknownDataset when nothing matches.
func Lookup(name string) (Descriptor, error) {
	want := normalizeName(name)
	if canonical, ok := variantAliases[want]; ok {
		want = normalizeName(canonical)
	}
	for _, d := range Variants() {
		if normalizeName(d.Name) == want {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
}

// normalizeName lowercases and strips everything but letters and digits.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseDescriptor parses a YAML dataset descriptor. The document mirrors the
// Descriptor fields:
//
//	name: MyDigits
//	dir: mydigits
//	mirrors:
//	  - https://example.com/data/
//	classes: ["0", "1", "2"]
//	train:
//	  images: {filename: train-images-idx3-ubyte.gz, md5: 0123abcd...}
//	  labels: {filename: train-labels-idx1-ubyte.gz}
//	test:
//	  images: {filename: t10k-images-idx3-ubyte.gz}
//	  labels: {filename: t10k-labels-idx1-ubyte.gz}
//
// Optional keys: archive ({filename, md5}) and transpose (bool).
// The descriptor is validated before being returned.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrDescriptor, err)
	}
	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// LoadDescriptor reads and parses a YAML dataset descriptor file.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: failed to read %s: %v", ErrStorage, path, err)
	}
	return ParseDescriptor(data)
}
