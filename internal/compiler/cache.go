package compiler

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/robert-at-pretension-io/dbcc/internal/diag"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

const cacheIndexVersion = 1

type cacheEntry struct {
	ContentHash string `json:"content_hash"`
	BlobPath    string `json:"blob_path"`
	ToolVersion string `json:"tool_version"`
}

type cacheIndex struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

// cachedBuild is what one input file builds to, including the builder
// diagnostics so a cache hit reports the same warnings as a fresh build.
type cachedBuild struct {
	Database    *model.Database   `json:"database"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("compiler: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("compiler: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compiler: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compiler: zstd decoder initialization failed: " + err.Error())
	}
}

// buildCache maps input files to their built database, keyed by content
// hash and tool version. Blobs are zstd-compressed CBOR.
type buildCache struct {
	dir         string
	toolVersion string
	mu          sync.Mutex
	index       cacheIndex
}

func newBuildCache(dir, toolVersion string) *buildCache {
	return &buildCache{
		dir:         dir,
		toolVersion: toolVersion,
		index: cacheIndex{
			Version: cacheIndexVersion,
			Entries: make(map[string]cacheEntry),
		},
	}
}

func (c *buildCache) indexPath() string {
	return filepath.Join(c.dir, "index.json")
}

func (c *buildCache) blobDir() string {
	return filepath.Join(c.dir, "db")
}

func (c *buildCache) blobPathForFile(filePath string) string {
	h := blake3.Sum256([]byte(filePath))
	return filepath.Join(c.blobDir(), hex.EncodeToString(h[:16])+".cbor.zst")
}

func (c *buildCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache mkdir: %w", err)
	}
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache index: %w", err)
	}
	var idx cacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parse cache index: %w", err)
	}
	if idx.Version != cacheIndexVersion {
		// Reset on version mismatch
		c.index = cacheIndex{Version: cacheIndexVersion, Entries: make(map[string]cacheEntry)}
		return nil
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]cacheEntry)
	}
	c.index = idx
	return nil
}

func (c *buildCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	return writeFileAtomic(c.indexPath(), data)
}

func (c *buildCache) Get(filePath, contentHash string) (cachedBuild, bool, error) {
	c.mu.Lock()
	entry, ok := c.index.Entries[filePath]
	c.mu.Unlock()
	if !ok || entry.ContentHash != contentHash || entry.ToolVersion != c.toolVersion {
		return cachedBuild{}, false, nil
	}

	compressed, err := os.ReadFile(entry.BlobPath)
	if err != nil {
		return cachedBuild{}, false, fmt.Errorf("read cached database: %w", err)
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return cachedBuild{}, false, fmt.Errorf("zstd decompress: %w", err)
	}
	var build cachedBuild
	if err := decMode.Unmarshal(data, &build); err != nil {
		return cachedBuild{}, false, fmt.Errorf("decode cached database: %w", err)
	}
	if build.Database == nil {
		return cachedBuild{}, false, nil
	}
	return build, true, nil
}

func (c *buildCache) Put(filePath, contentHash string, build cachedBuild) error {
	data, err := encMode.Marshal(build)
	if err != nil {
		return fmt.Errorf("encode database: %w", err)
	}
	blobPath := c.blobPathForFile(filePath)
	if err := writeFileAtomic(blobPath, zstdEncoder.EncodeAll(data, nil)); err != nil {
		return err
	}

	c.mu.Lock()
	c.index.Entries[filePath] = cacheEntry{
		ContentHash: contentHash,
		BlobPath:    blobPath,
		ToolVersion: c.toolVersion,
	}
	c.mu.Unlock()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
