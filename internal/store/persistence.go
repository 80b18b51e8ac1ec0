// Package store persists presentation surface state and the arbitration journal.
package store

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/promptslot/internal/arbiter"
)

// SchemaVersion is the current journal schema version.
const SchemaVersion = 1

// EventKind is the kind of arbitration event recorded in the journal.
type EventKind string

const (
	EventProposed       EventKind = "proposed"
	EventDropped        EventKind = "dropped"
	EventClaimed        EventKind = "claimed"
	EventClaimDenied    EventKind = "claim_denied"
	EventReleased       EventKind = "released"
	EventReleaseIgnored EventKind = "release_ignored"
	EventReclaimed      EventKind = "reclaimed"
)

// Event is one line of the journal.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Ticket    arbiter.Ticket `json:"ticket,omitempty"`
	Owner     arbiter.Ticket `json:"owner,omitempty"`
	Variant   string         `json:"variant,omitempty"`
	Identity  string         `json:"identity,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	JournalSchemaVersion int   `json:"journal_schema_version"`
	CreatedAt            int64 `json:"created_at"`
}

// ErrJournalClosed is returned when operations are attempted on a closed journal.
var ErrJournalClosed = errors.New("journal is closed")

// Journal is an append-only JSONL log of arbitration events.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// OpenJournal opens the journal at path, creating it and its directory if needed.
func OpenJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	j := &Journal{
		path: path,
		file: file,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := j.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	}

	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) writeHeader() error {
	data, err := json.Marshal(schemaHeader{
		JournalSchemaVersion: SchemaVersion,
		CreatedAt:            time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	_, err = j.file.Write(append(data, '\n'))
	return err
}

// Append writes e to the journal. A missing ID or Timestamp is filled in and
// the stored event is returned.
func (j *Journal) Append(e Event) (Event, error) {
	now := time.Now()
	if e.Timestamp == 0 {
		e.Timestamp = now.UnixMilli()
	}
	if e.ID == "" {
		id, err := ulid.New(ulid.Timestamp(e.Time()), rand.Reader)
		if err != nil {
			return e, fmt.Errorf("failed to generate event id: %w", err)
		}
		e.ID = id.String()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return e, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return e, ErrJournalClosed
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return e, err
	}
	return e, j.file.Sync()
}

// Load reads every event in append order. Malformed lines are skipped.
func (j *Journal) Load() ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return nil, ErrJournalClosed
	}

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", j.path, err)
	}
	events, err := readEvents(j.file)

	// Seek back to end for appending
	if _, serr := j.file.Seek(0, io.SeekEnd); serr != nil && err == nil {
		err = serr
	}
	return events, err
}

// ReadJournal loads the events of the journal at path without opening it for writing.
func ReadJournal(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readEvents(file)
}

func readEvents(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)

	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.JournalSchemaVersion > 0 {
				if header.JournalSchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.JournalSchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var e Event
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" || e.Kind == "" {
			continue
		}
		events = append(events, e)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading journal: %w", err)
	}
	return events, nil
}

// Close releases the file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}
