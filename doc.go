// Package mnists downloads, caches and decodes the MNIST family of
// handwritten-character datasets: MNIST, FashionMNIST, KMNIST, the five
// EMNIST splits and QMNIST.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via the Dataset type - Applications call Open (or
//     New with a custom Descriptor) and read the four arrays through
//     TrainImages, TrainLabels, TestImages and TestLabels. Files are
//     fetched and decoded lazily on first access and memoized.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach a
//     complete "mnists" subcommand tree to their Cobra root command,
//     providing commands like "mytool mnists pull", "mytool mnists list",
//     etc.
//
// # Content Verification
//
// Every file carries a published MD5 checksum. Downloads are hashed in
// flight and a mismatch discards the file; cached files are re-verified
// before use and silently re-downloaded when corrupt.
//
// # Storage
//
// Files are cached compressed, exactly as published, under one directory
// per variant (the five EMNIST splits share a directory and one source
// archive). The cache root is, in order of precedence:
//
//   - the WithRoot option
//   - the MNISTS_DIR environment variable
//   - <system temp dir>/mnists
//
// Concurrent processes coordinate through lock files, so two programs
// fetching the same dataset download it once.
package mnists
