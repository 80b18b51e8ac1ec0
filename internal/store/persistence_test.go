package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "journal_schema_version")
	assert.Equal(t, path, j.Path())
}

func TestOpenJournal_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "journal.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestJournal_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	proposed, err := j.Append(Event{Kind: EventProposed, Ticket: 1, Variant: "SurveyState"})
	require.NoError(t, err)
	_, err = ulid.Parse(proposed.ID)
	require.NoError(t, err)
	assert.NotZero(t, proposed.Timestamp)

	_, err = j.Append(Event{Kind: EventClaimed, Ticket: 1})
	require.NoError(t, err)
	_, err = j.Append(Event{Kind: EventDropped, Owner: 1, Variant: "InAppNotificationState"})
	require.NoError(t, err)

	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, proposed, events[0])
	assert.Equal(t, EventClaimed, events[1].Kind)
	assert.Equal(t, EventDropped, events[2].Kind)

	// Appending still works after a load
	_, err = j.Append(Event{Kind: EventReleased, Ticket: 1})
	require.NoError(t, err)
	events, err = j.Load()
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestJournal_KeepsExplicitIDAndTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := j.Append(Event{ID: "fixed", Kind: EventReclaimed, Timestamp: at.UnixMilli()})
	require.NoError(t, err)
	assert.Equal(t, "fixed", e.ID)
	assert.True(t, at.Equal(e.Time()))
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Append(Event{Kind: EventProposed, Ticket: 1})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()
	_, err = j.Append(Event{Kind: EventReleaseIgnored, Ticket: 9})
	require.NoError(t, err)

	events, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventProposed, events[0].Kind)
	assert.Equal(t, EventReleaseIgnored, events[1].Kind)
}

func TestReadJournal_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	content := `{"journal_schema_version":1,"created_at":1700000000}
{"id":"01A","kind":"proposed","ticket":1,"timestamp":1700000000000}
not json at all
{"kind":"claimed"}

{"id":"01B","kind":"claim_denied","ticket":2,"owner":1,"timestamp":1700000001000}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	events, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "01A", events[0].ID)
	assert.Equal(t, EventClaimDenied, events[1].Kind)
}

func TestReadJournal_NewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"journal_schema_version":99,"created_at":1}`+"\n"), 0600))

	_, err := ReadJournal(path)
	assert.Error(t, err)
}

func TestJournal_Closed(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err = j.Append(Event{Kind: EventProposed})
	assert.ErrorIs(t, err, ErrJournalClosed)
	_, err = j.Load()
	assert.ErrorIs(t, err, ErrJournalClosed)
}
