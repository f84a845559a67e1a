package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"retrieval/internal/domain"
)

var (
	bucketManifest = []byte("manifest")
	bucketVectors  = []byte("vectors")
	bucketSources  = []byte("sources")
	keyManifest    = []byte("current")
)

const openTimeout = 2 * time.Second

// BoltArtifactStore keeps an index as two files in one directory: a bbolt
// file holding the manifest, vectors and provenance, and a JSON array of
// chunk texts. The manifest records the checksum of the chunk file, so the
// pair is only valid together.
type BoltArtifactStore struct {
	dir        string
	indexName  string
	chunksName string
}

func NewBoltArtifactStore(dir, indexName, chunksName string) *BoltArtifactStore {
	return &BoltArtifactStore{dir: dir, indexName: indexName, chunksName: chunksName}
}

func (s *BoltArtifactStore) IndexPath() string {
	return filepath.Join(s.dir, s.indexName)
}

func (s *BoltArtifactStore) ChunksPath() string {
	return filepath.Join(s.dir, s.chunksName)
}

func (s *BoltArtifactStore) Location() string {
	return s.dir
}

// Save writes both artifacts to temporary files and renames them into
// place, chunk file first. The index file goes last since it is the one
// that vouches for the chunk file.
func (s *BoltArtifactStore) Save(snap domain.Snapshot) error {
	if len(snap.Vectors) != len(snap.Chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrIndexInconsistent, len(snap.Vectors), len(snap.Chunks))
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	chunkData, err := encodeChunks(snap.Chunks)
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}
	sum := sha256.Sum256(chunkData)

	manifest := snap.Manifest
	manifest.SchemaVersion = CurrentSchemaVersion
	manifest.Count = len(snap.Chunks)
	manifest.ChunksSHA256 = hex.EncodeToString(sum[:])

	chunksTmp := s.ChunksPath() + ".tmp"
	indexTmp := s.IndexPath() + ".tmp"
	defer os.Remove(chunksTmp)
	defer os.Remove(indexTmp)

	if err := writeFileSync(chunksTmp, chunkData); err != nil {
		return fmt.Errorf("failed to write chunk file: %w", err)
	}
	if err := writeIndex(indexTmp, manifest, snap); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}

	if err := os.Rename(chunksTmp, s.ChunksPath()); err != nil {
		return err
	}
	return os.Rename(indexTmp, s.IndexPath())
}

func writeIndex(path string, manifest domain.Manifest, snap domain.Snapshot) error {
	os.Remove(path)

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		mb, err := tx.CreateBucket(bucketManifest)
		if err != nil {
			return err
		}
		vb, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		sb, err := tx.CreateBucket(bucketSources)
		if err != nil {
			return err
		}
		// Keys are inserted in order; tell bbolt not to split pages evenly.
		vb.FillPercent = 1.0
		sb.FillPercent = 1.0

		for i, vec := range snap.Vectors {
			key := ordinalKey(i)
			if err := vb.Put(key, encodeVector(vec)); err != nil {
				return err
			}
			src, err := json.Marshal(snap.Chunks[i].Source)
			if err != nil {
				return err
			}
			if err := sb.Put(key, src); err != nil {
				return err
			}
		}

		data, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		return mb.Put(keyManifest, data)
	})
	if err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

// Load reads both artifacts and cross-checks them.
func (s *BoltArtifactStore) Load() (domain.Snapshot, error) {
	if err := s.requireArtifacts(); err != nil {
		return domain.Snapshot{}, err
	}

	var snap domain.Snapshot
	err := s.view(func(tx *bbolt.Tx) error {
		manifest, err := readManifest(tx)
		if err != nil {
			return err
		}
		if err := checkSchema(manifest); err != nil {
			return err
		}
		snap.Manifest = manifest

		vb := tx.Bucket(bucketVectors)
		if vb == nil {
			return fmt.Errorf("%w: vectors bucket missing", domain.ErrIndexInconsistent)
		}
		snap.Vectors = make([][]float32, 0, manifest.Count)
		err = vb.ForEach(func(k, v []byte) error {
			if want := ordinalKey(len(snap.Vectors)); !bytes.Equal(k, want) {
				return fmt.Errorf("%w: vector ordinals are not contiguous", domain.ErrIndexInconsistent)
			}
			if len(v) != manifest.Dimension*4 {
				return fmt.Errorf("%w: vector %d has %d bytes, expected %d", domain.ErrIndexInconsistent, len(snap.Vectors), len(v), manifest.Dimension*4)
			}
			snap.Vectors = append(snap.Vectors, decodeVector(v))
			return nil
		})
		if err != nil {
			return err
		}
		if len(snap.Vectors) != manifest.Count {
			return fmt.Errorf("%w: manifest counts %d vectors, found %d", domain.ErrIndexInconsistent, manifest.Count, len(snap.Vectors))
		}

		snap.Chunks = make([]domain.Chunk, manifest.Count)
		if sb := tx.Bucket(bucketSources); sb != nil {
			for i := range snap.Chunks {
				snap.Chunks[i].Source.Document = i
				if data := sb.Get(ordinalKey(i)); data != nil {
					if err := json.Unmarshal(data, &snap.Chunks[i].Source); err != nil {
						return fmt.Errorf("%w: provenance %d: %v", domain.ErrIndexInconsistent, i, err)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	data, err := os.ReadFile(s.ChunksPath())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Snapshot{}, fmt.Errorf("%w: %s", domain.ErrMissingIndex, s.ChunksPath())
		}
		return domain.Snapshot{}, err
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != snap.Manifest.ChunksSHA256 {
		return domain.Snapshot{}, fmt.Errorf("%w: chunk file checksum does not match the index", domain.ErrIndexInconsistent)
	}

	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrIndexInconsistent, err)
	}
	if len(texts) != len(snap.Chunks) {
		return domain.Snapshot{}, fmt.Errorf("%w: %d chunk texts for %d vectors", domain.ErrIndexInconsistent, len(texts), len(snap.Chunks))
	}
	for i, text := range texts {
		snap.Chunks[i].Text = text
	}

	return snap, nil
}

// Manifest reads the build description without touching vectors or chunks.
func (s *BoltArtifactStore) Manifest() (domain.Manifest, error) {
	if err := s.requireArtifacts(); err != nil {
		return domain.Manifest{}, err
	}
	var manifest domain.Manifest
	err := s.view(func(tx *bbolt.Tx) error {
		var err error
		manifest, err = readManifest(tx)
		return err
	})
	return manifest, err
}

func (s *BoltArtifactStore) requireArtifacts() error {
	for _, path := range []string{s.IndexPath(), s.ChunksPath()} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", domain.ErrMissingIndex, path)
			}
			return err
		}
	}
	return nil
}

func (s *BoltArtifactStore) view(fn func(tx *bbolt.Tx) error) error {
	db, err := bbolt.Open(s.IndexPath(), 0600, &bbolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer db.Close()
	return db.View(fn)
}

func readManifest(tx *bbolt.Tx) (domain.Manifest, error) {
	var manifest domain.Manifest
	b := tx.Bucket(bucketManifest)
	if b == nil {
		return manifest, fmt.Errorf("%w: manifest missing", domain.ErrIndexInconsistent)
	}
	data := b.Get(keyManifest)
	if data == nil {
		return manifest, fmt.Errorf("%w: manifest missing", domain.ErrIndexInconsistent)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("%w: manifest: %v", domain.ErrIndexInconsistent, err)
	}
	return manifest, nil
}

func encodeChunks(chunks []domain.Chunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(domain.Texts(chunks)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ordinalKey is big-endian so bbolt's byte order matches ordinal order.
func ordinalKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
