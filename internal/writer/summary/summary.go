// Package summary accumulates per-topology dataset statistics and writes them
// as summary.json when the topology's record stream closes.
package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"Go2FlowLabel/internal/engine/labeler"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"gonum.org/v1/gonum/stat"
)

// FileName is the name of the summary file inside a topology directory.
const FileName = "summary.json"

// RateStats describes the packet rates of one class. Only records with a
// baseline (non-zero inter-arrival time) contribute.
type RateStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
}

// Summary is the content of summary.json.
type Summary struct {
	Topology    string               `json:"topology"`
	Records     int                  `json:"records"`
	Classes     map[string]int       `json:"classes"`
	Rules       map[string]int       `json:"rules"`
	Terminal    int                  `json:"terminal"`
	PacketRates map[string]RateStats `json:"packet_rates"`
	Started     string               `json:"started"`
	Finished    string               `json:"finished"`
}

// Writer is a model.RecordWriter that only keeps statistics.
type Writer struct {
	dir     string
	started time.Time
	summary Summary
	rates   map[string][]float64
}

// NewWriter prepares a summary for one topology under rootPath/<topology>.
func NewWriter(rootPath, topology string, started time.Time) *Writer {
	return &Writer{
		dir:     filepath.Join(rootPath, topology),
		started: started,
		summary: Summary{
			Topology: topology,
			Classes:  map[string]int{"0": 0, "1": 0},
			Rules:    make(map[string]int),
		},
		rates: make(map[string][]float64),
	}
}

// Path returns where Close writes the summary.
func (w *Writer) Path() string {
	return filepath.Join(w.dir, FileName)
}

// Write folds a batch into the statistics.
func (w *Writer) Write(records []model.LabeledRecord) error {
	for _, r := range records {
		class := fmt.Sprint(r.Label)
		w.summary.Records++
		w.summary.Classes[class]++
		w.summary.Rules[labeler.RuleName(r.Rule)]++
		if r.Terminal {
			w.summary.Terminal++
		}
		if r.Features.FlowIAT > 0 {
			w.rates[class] = append(w.rates[class], r.Features.PacketRate)
		}
	}
	return nil
}

// Result computes the summary from what was written so far.
func (w *Writer) Result() Summary {
	s := w.summary
	s.PacketRates = make(map[string]RateStats, len(w.rates))
	for class, rates := range w.rates {
		mean, std := stat.MeanStdDev(rates, nil)
		if math.IsNaN(std) {
			std = 0
		}
		s.PacketRates[class] = RateStats{Samples: len(rates), Mean: mean, StdDev: std}
	}
	s.Started = w.started.UTC().Format(time.RFC3339)
	s.Finished = time.Now().UTC().Format(time.RFC3339)
	return s
}

// Close writes summary.json.
func (w *Writer) Close() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	file, err := os.Create(w.Path())
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	s := w.Result()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	logger.WriterLog.Infof("Summary for topology %q: %d records (%d positive), %d terminal",
		s.Topology, s.Records, s.Classes["1"], s.Terminal)
	return nil
}
