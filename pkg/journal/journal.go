package journal

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
	"github.com/dd0wney/cluso-waternet/pkg/pools"
)

// FileName is the journal file inside its directory
const FileName = "journal.log"

// Journal is an append-only log of control-plane operations replayed at startup
type Journal struct {
	mu       sync.Mutex
	rot      *fileRotator
	dir      string
	lsn      uint64
	compress bool
	closed   bool
	now      func() time.Time

	appended          uint64
	bytesUncompressed uint64
	bytesStored       uint64
	lastErr           error

	logger  logging.Logger
	metrics *metrics.Registry
}

// Option configures a Journal
type Option func(*Journal)

// WithCompression stores payloads snappy-compressed
func WithCompression(on bool) Option {
	return func(j *Journal) { j.compress = on }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(j *Journal) { j.metrics = m }
}

// WithClock overrides the entry timestamp source
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open opens or creates the journal in dir and recovers the last LSN
func Open(dir string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		dir:    dir,
		rot:    newFileRotator(filepath.Join(dir, FileName)),
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With(logging.Component("journal"), logging.Path(dir))

	if err := j.rot.open(); err != nil {
		return nil, err
	}

	entries, valid, err := j.scan()
	if err != nil {
		j.rot.close()
		return nil, fmt.Errorf("failed to recover LSN: %w", err)
	}
	if len(entries) > 0 {
		j.lsn = entries[len(entries)-1].LSN
	}
	// appends must land right after the last intact entry or replay never sees them
	if size := j.rot.size(); valid < size {
		if err := j.rot.truncate(valid); err != nil {
			j.rot.close()
			return nil, fmt.Errorf("failed to truncate torn journal tail: %w", err)
		}
		j.logger.Warn("journal tail truncated",
			logging.Count(len(entries)), logging.Int64("dropped_bytes", size-valid))
	}
	return j, nil
}

// Append writes an entry and syncs it to disk
func (j *Journal) Append(op OpType, data []byte) (uint64, error) {
	if !op.Valid() {
		return 0, fmt.Errorf("unknown journal operation %d", uint8(op))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, errors.New("journal closed")
	}
	if j.lsn == ^uint64(0) {
		return 0, errors.New("journal LSN space exhausted, truncate required")
	}

	stored, flags := data, uint8(0)
	if j.compress {
		scratch := pools.GetBytes(snappy.MaxEncodedLen(len(data)))
		defer pools.PutBytes(scratch)
		stored, flags = snappy.Encode(scratch[:cap(scratch)], data), flagSnappy
	}

	e := Entry{
		LSN:       j.lsn + 1,
		OpType:    op,
		Data:      data,
		Checksum:  crc32.ChecksumIEEE(stored),
		Timestamp: j.now().UnixNano(),
	}
	if err := writeEntry(j.rot.writer, &e, flags, stored); err != nil {
		j.lastErr = fmt.Errorf("failed to write journal entry: %w", err)
		return 0, j.lastErr
	}
	if err := j.rot.sync(); err != nil {
		j.lastErr = fmt.Errorf("failed to sync journal: %w", err)
		return 0, j.lastErr
	}
	j.lastErr = nil

	j.lsn = e.LSN
	j.appended++
	j.bytesUncompressed += uint64(len(data))
	j.bytesStored += uint64(len(stored))

	if j.metrics != nil {
		j.metrics.JournalEntriesTotal.WithLabelValues(op.String()).Inc()
	}
	return e.LSN, nil
}

// ReadAll returns every intact entry. A torn or corrupt tail ends the read
// with a warning rather than an error so startup can proceed with what is valid.
func (j *Journal) ReadAll() ([]*Entry, error) {
	entries, _, err := j.scan()
	return entries, err
}

// scan reads the intact entries and the byte offset just past the last one
func (j *Journal) scan() ([]*Entry, int64, error) {
	f, err := os.Open(j.rot.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()
	return readAll(bufio.NewReader(f), j.logger)
}

func readAll(r *bufio.Reader, logger logging.Logger) ([]*Entry, int64, error) {
	var (
		entries []*Entry
		valid   int64
	)
	for {
		e, n, err := readEntry(r)
		if err == io.EOF {
			return entries, valid, nil
		}
		if err != nil {
			logger.Warn("journal corruption detected, recovery stopped",
				logging.Count(len(entries)), logging.Error(err))
			return entries, valid, nil
		}
		entries = append(entries, e)
		valid += n
	}
}

// Replay feeds every intact entry to handler in LSN order
func (j *Journal) Replay(handler func(*Entry) error) error {
	entries, err := j.ReadAll()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := handler(e); err != nil {
			return fmt.Errorf("failed to replay entry LSN=%d (%s): %w", e.LSN, e.OpType, err)
		}
		if j.metrics != nil {
			j.metrics.JournalReplayedTotal.Inc()
		}
	}
	j.logger.Info("journal replayed", logging.Count(len(entries)))
	return nil
}

// Truncate discards all entries
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.rot.rotate(); err != nil {
		return err
	}
	j.lsn = 0
	return nil
}

// LSN returns the last written sequence number
func (j *Journal) LSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lsn
}

// Err returns the failure of the most recent append, or nil once an
// append has succeeded again
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return errors.New("journal closed")
	}
	return j.lastErr
}

// Stats returns activity counters
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	ratio := 0.0
	if j.bytesUncompressed > 0 {
		ratio = 1.0 - float64(j.bytesStored)/float64(j.bytesUncompressed)
	}
	return Stats{
		LSN:               j.lsn,
		Appended:          j.appended,
		BytesUncompressed: j.bytesUncompressed,
		BytesStored:       j.bytesStored,
		CompressionRatio:  ratio,
		SizeBytes:         j.rot.size(),
	}
}

// Close flushes and closes the journal. Closing twice is a no-op.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.rot.close()
}

// Inspect reads a journal directory without opening it for writing
func Inspect(dir string) ([]*Entry, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, _, err := readAll(bufio.NewReader(f), logging.NewNopLogger())
	return entries, err
}

var (
	_ Appender = (*Journal)(nil)
	_ Replayer = (*Journal)(nil)
)
