package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// chunkRecord is the wire form of one chunk in an ingest file: one JSON
// object per line.
type chunkRecord struct {
	ParentID   string            `json:"parent_id"`
	ChunkIndex int32             `json:"chunk_index"`
	Namespace  string            `json:"namespace"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

// ReadChunks parses a JSON-lines stream of chunk records. Records without a
// namespace fall back to defaultNamespace; records without content are
// rejected with the line number so bad corpus files fail loudly instead of
// planting empty embeddings.
func ReadChunks(r io.Reader, defaultNamespace string) ([]Chunk, error) {
	dec := json.NewDecoder(r)

	var chunks []Chunk
	for line := 1; ; line++ {
		var rec chunkRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding chunk record %d: %w", line, err)
		}

		if rec.Content == "" {
			return nil, fmt.Errorf("chunk record %d: content is required", line)
		}
		if rec.ParentID == "" {
			return nil, fmt.Errorf("chunk record %d: parent_id is required", line)
		}
		if rec.Namespace == "" {
			rec.Namespace = defaultNamespace
		}

		chunks = append(chunks, Chunk{
			ParentID:  rec.ParentID,
			Index:     rec.ChunkIndex,
			Namespace: rec.Namespace,
			Content:   rec.Content,
			Metadata:  rec.Metadata,
		})
	}
	return chunks, nil
}
