package storage

// Compression selects how record payloads are stored.
type Compression uint8

const (
	// CompressionNone stores payloads as-is.
	CompressionNone Compression = iota
	// CompressionSnappy stores payloads snappy-compressed when that saves space.
	CompressionSnappy
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// ParseCompression maps a configuration value to a Compression.
// Unknown values yield CompressionNone and false.
func ParseCompression(s string) (Compression, bool) {
	switch s {
	case "", "none":
		return CompressionNone, true
	case "snappy":
		return CompressionSnappy, true
	default:
		return CompressionNone, false
	}
}

// Options configures a PageManager and the FileStore on top of it.
type Options struct {
	// PageSize is the size of each page in bytes. Default: 4096.
	PageSize int

	// InitialPages is the number of pages a new file starts with. Default: 16.
	InitialPages int

	// CreateIfMissing creates the file if it doesn't exist. Default: true.
	CreateIfMissing bool

	// ReadOnly opens the file in read-only mode.
	ReadOnly bool

	// SyncOnWrite forces fsync after each page write.
	SyncOnWrite bool

	// Compression applies to record payloads written by a FileStore.
	Compression Compression
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		PageSize:        PageSize,
		InitialPages:    DefaultInitialPages,
		CreateIfMissing: true,
	}
}

// WithPageSize returns a copy with the page size set.
func (o Options) WithPageSize(size int) Options {
	o.PageSize = size
	return o
}

// WithReadOnly returns a copy with read-only mode set.
func (o Options) WithReadOnly(readOnly bool) Options {
	o.ReadOnly = readOnly
	return o
}

// WithSyncOnWrite returns a copy with sync-on-write set.
func (o Options) WithSyncOnWrite(sync bool) Options {
	o.SyncOnWrite = sync
	return o
}

// WithCompression returns a copy with the payload compression set.
func (o Options) WithCompression(c Compression) Options {
	o.Compression = c
	return o
}
