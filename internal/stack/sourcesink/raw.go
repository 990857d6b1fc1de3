package sourcesink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/stack"
)

const (
	rawExtension   = ".raw"
	indexExtension = ".index.yaml"
)

// RawEntry locates one stack inside a raw data file.
type RawEntry struct {
	Offset                 int64      `yaml:"offset"`
	Width                  int64      `yaml:"width"`
	Height                 int64      `yaml:"height"`
	Depth                  int64      `yaml:"depth"`
	BytesPerVoxel          int64      `yaml:"bytesPerVoxel"`
	Index                  int64      `yaml:"index"`
	TimestampNanos         int64      `yaml:"timestampNanos"`
	Channel                int        `yaml:"channel"`
	NumberOfImagesPerPlane int        `yaml:"imagesPerPlane"`
	VoxelSize              [3]float64 `yaml:"voxelSize,flow"`
}

func (e RawEntry) request() stack.Request {
	return stack.Request{Width: e.Width, Height: e.Height, Depth: e.Depth, BytesPerVoxel: e.BytesPerVoxel}
}

// RawIndex is the YAML document written next to a raw data file.
type RawIndex struct {
	Name   string     `yaml:"name"`
	Stacks []RawEntry `yaml:"stacks"`
}

// RawPaths returns the data and index file paths for name in dir.
func RawPaths(dir, name string) (data, index string) {
	return filepath.Join(dir, name+rawExtension), filepath.Join(dir, name+indexExtension)
}

// RawSink appends stacks to <dir>/<name>.raw and keeps <name>.index.yaml in
// sync after every append.
type RawSink struct {
	mu        sync.Mutex
	data      *os.File
	indexPath string
	index     RawIndex
	offset    int64
}

// NewRawSink creates dir if needed and truncates any previous data for name.
func NewRawSink(dir, name string) (*RawSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("directory", dir).
			Build()
	}

	dataPath, indexPath := RawPaths(dir, name)
	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("path", dataPath).
			Build()
	}

	sink := &RawSink{data: f, indexPath: indexPath, index: RawIndex{Name: name}}
	if err := sink.writeIndexLocked(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return sink, nil
}

// AppendStack writes the logical voxels of s and records its metadata.
func (rs *RawSink) AppendStack(s *stack.Stack) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data == nil {
		return ErrClosed
	}

	n, err := rs.data.Write(s.Bytes())
	if err != nil {
		return errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("stack", s.String()).
			Build()
	}

	meta := s.Metadata()
	req := s.Request()
	rs.index.Stacks = append(rs.index.Stacks, RawEntry{
		Offset:                 rs.offset,
		Width:                  req.Width,
		Height:                 req.Height,
		Depth:                  req.Depth,
		BytesPerVoxel:          req.BytesPerVoxel,
		Index:                  meta.Index,
		TimestampNanos:         meta.TimestampNanos,
		Channel:                meta.Channel,
		NumberOfImagesPerPlane: meta.NumberOfImagesPerPlane,
		VoxelSize:              meta.VoxelSize,
	})
	rs.offset += int64(n)

	return rs.writeIndexLocked()
}

// NumberOfStacks returns the number of stacks written so far.
func (rs *RawSink) NumberOfStacks() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return int64(len(rs.index.Stacks))
}

func (rs *RawSink) writeIndexLocked() error {
	out, err := yaml.Marshal(&rs.index)
	if err != nil {
		return errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryProcessing).
			Build()
	}

	tmp := rs.indexPath + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("path", tmp).
			Build()
	}
	if err := os.Rename(tmp, rs.indexPath); err != nil {
		return errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("path", rs.indexPath).
			Build()
	}
	return nil
}

// Close flushes and closes the data file. Later appends return ErrClosed.
func (rs *RawSink) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data == nil {
		return nil
	}
	err := rs.data.Sync()
	if cerr := rs.data.Close(); err == nil {
		err = cerr
	}
	rs.data = nil
	if err != nil {
		return errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

// RawSource reads stacks written by RawSink into recycled stacks.
type RawSource struct {
	mu       sync.Mutex
	data     *os.File
	index    RawIndex
	recycler *stack.Recycler
	timeout  time.Duration
}

// OpenRawSource opens the data and index files for name in dir.
func OpenRawSource(dir, name string, r *stack.Recycler, timeout time.Duration) (*RawSource, error) {
	dataPath, indexPath := RawPaths(dir, name)

	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("path", indexPath).
			Build()
	}
	var index RawIndex
	if err := yaml.Unmarshal(raw, &index); err != nil {
		return nil, errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryValidation).
			Context("path", indexPath).
			Build()
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("path", dataPath).
			Build()
	}

	return &RawSource{data: f, index: index, recycler: r, timeout: timeout}, nil
}

// NumberOfStacks returns the number of indexed stacks.
func (rs *RawSource) NumberOfStacks() int64 {
	return int64(len(rs.index.Stacks))
}

// Entry returns the index entry of stack index.
func (rs *RawSource) Entry(index int64) (RawEntry, bool) {
	if index < 0 || index >= rs.NumberOfStacks() {
		return RawEntry{}, false
	}
	return rs.index.Stacks[index], true
}

// Stack reads stack index into a stack obtained from the recycler.
func (rs *RawSource) Stack(ctx context.Context, index int64) (*stack.Stack, error) {
	entry, ok := rs.Entry(index)
	if !ok {
		return nil, errors.New(ErrIndexOutOfRange).
			Context("index", index).
			Context("count", rs.NumberOfStacks()).
			Build()
	}

	s, err := rs.recycler.GetOrWait(ctx, rs.timeout, entry.request())
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.data == nil {
		s.Release()
		return nil, ErrClosed
	}
	buf := s.Bytes()
	if n, err := rs.data.ReadAt(buf, entry.Offset); n < len(buf) || (err != nil && err != io.EOF) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		s.Release()
		return nil, errors.New(err).
			Component("stack.sourcesink").
			Category(errors.CategoryFileIO).
			Context("index", index).
			Context("offset", entry.Offset).
			Build()
	}

	s.SetMetadata(stack.Metadata{
		Index:                  entry.Index,
		TimestampNanos:         entry.TimestampNanos,
		Channel:                entry.Channel,
		NumberOfImagesPerPlane: entry.NumberOfImagesPerPlane,
		VoxelSize:              entry.VoxelSize,
	})
	return s, nil
}

// Close closes the data file.
func (rs *RawSource) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.data == nil {
		return nil
	}
	err := rs.data.Close()
	rs.data = nil
	return err
}
