package model

// RecordWriter defines a generic interface for persisting a topology's labeled record stream.
// A RecordWriter is opened per topology run and written by a single goroutine.
type RecordWriter interface {
	// Write appends one poll cycle's records to the stream.
	Write(records []LabeledRecord) error

	// Close flushes buffered records and releases the underlying resources.
	Close() error
}
