// Package gobfile persists labeled records as gob-encoded batches for Go consumers.
package gobfile

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/model"
)

const (
	recordsFileName  = "records.gob"
	manifestFileName = "manifest.json"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, topology string) (model.RecordWriter, error) {
		return NewGobWriter(def.Gob.RootPath, topology, time.Now())
	})
}

// Manifest holds the metadata of a gob record file, internal to the writer.
type Manifest struct {
	Topology     string `json:"topology"`
	TotalRecords int    `json:"total_records"`
	Positives    int    `json:"positives"`
	Batches      int    `json:"batches"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	Timestamp    string `json:"timestamp"`
}

// GobWriter appends each batch to a gob stream under <root>/<started>/<topology>/.
// It implements the model.RecordWriter interface.
type GobWriter struct {
	dir      string
	file     *os.File
	encoder  *gob.Encoder
	manifest Manifest
}

// NewGobWriter creates the output directory and record file of a topology run.
func NewGobWriter(rootPath, topology string, started time.Time) (*GobWriter, error) {
	if rootPath == "" {
		return nil, errors.New("gob writer needs a root_path")
	}
	// Timestamped directory, then a subdirectory per topology to avoid name collisions.
	dir := filepath.Join(rootPath, started.UTC().Format("2006-01-02_15-04-05"), topology)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	path := filepath.Join(dir, recordsFileName)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create record file '%s': %w", path, err)
	}
	return &GobWriter{
		dir:      dir,
		file:     file,
		encoder:  gob.NewEncoder(file),
		manifest: Manifest{Topology: topology},
	}, nil
}

// Dir returns the directory holding the record and manifest files.
func (w *GobWriter) Dir() string {
	return w.dir
}

// Write encodes one batch.
func (w *GobWriter) Write(records []model.LabeledRecord) error {
	if err := w.encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records to gob: %w", err)
	}
	w.manifest.Batches++
	w.manifest.TotalRecords += len(records)
	for _, r := range records {
		if r.Label == 1 {
			w.manifest.Positives++
		}
		w.manifest.TotalPackets += r.Snapshot.PacketCount
		w.manifest.TotalBytes += r.Snapshot.ByteCount
	}
	return nil
}

// Close closes the record file and writes the manifest.
func (w *GobWriter) Close() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}

	w.manifest.Timestamp = time.Now().UTC().Format(time.RFC3339)
	manifestFile, err := os.Create(filepath.Join(w.dir, manifestFileName))
	if err != nil {
		return fmt.Errorf("failed to create manifest file: %w", err)
	}
	defer manifestFile.Close()

	jsonEncoder := json.NewEncoder(manifestFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(w.manifest); err != nil {
		return fmt.Errorf("failed to encode manifest to json: %w", err)
	}
	return nil
}

// ReadRecords decodes every batch of a record file written by GobWriter.
func ReadRecords(dir string) ([]model.LabeledRecord, error) {
	file, err := os.Open(filepath.Join(dir, recordsFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer file.Close()

	var all []model.LabeledRecord
	decoder := gob.NewDecoder(file)
	for {
		var batch []model.LabeledRecord
		if err := decoder.Decode(&batch); err != nil {
			if errors.Is(err, io.EOF) {
				return all, nil
			}
			return nil, fmt.Errorf("failed to decode records from gob: %w", err)
		}
		all = append(all, batch...)
	}
}
