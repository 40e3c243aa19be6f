package main

import (
	"encoding/csv"
	"fmt"
	"os"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/writer/csvfile"
	"Go2FlowLabel/internal/writer/gobfile"
)

// fl-dump converts a gob record directory into CSV on stdout.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fl-dump <gob_record_dir>")
		os.Exit(1)
	}

	records, err := gobfile.ReadRecords(os.Args[1])
	if err != nil {
		logger.MainLog.Fatalf("Failed to read records: %v", err)
	}

	w := csv.NewWriter(os.Stdout)
	w.Write(csvfile.Columns)
	for i := range records {
		w.Write(csvfile.Row(&records[i]))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.MainLog.Fatalf("Failed to write CSV: %v", err)
	}
	logger.MainLog.Infof("Dumped %d records", len(records))
}
