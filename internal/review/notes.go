package review

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
)

// Note is a free-text remark an editor left on an event.
type Note struct {
	Text      string           `json:"text"`
	Author    string           `json:"author,omitempty"`
	CreatedAt domain.Timestamp `json:"created_at"`
}

type notesDoc struct {
	Notes map[string][]Note `json:"notes"`
}

// Notes is the reviewer notes file, editor_notes.json.
type Notes struct {
	files *jsonfile.Files

	mu    sync.RWMutex
	notes map[string][]Note
}

// OpenNotes loads the notes file. A missing file means no notes.
func OpenNotes(files *jsonfile.Files) (*Notes, error) {
	var doc notesDoc
	if _, err := files.ReadJSON(jsonfile.NotesFile, &doc); err != nil {
		return nil, err
	}
	if doc.Notes == nil {
		doc.Notes = make(map[string][]Note)
	}
	return &Notes{files: files, notes: doc.Notes}, nil
}

// For returns the notes on eventID, oldest first.
func (n *Notes) For(eventID string) []Note {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.notes[eventID])
}

// Add appends a note to eventID and persists the file.
func (n *Notes) Add(eventID, text, author string) (Note, error) {
	text = strings.TrimSpace(text)
	if eventID == "" || text == "" {
		return Note{}, fmt.Errorf("%w: a note needs an event ID and text", domain.ErrInvalidEntity)
	}
	note := Note{Text: text, Author: strings.TrimSpace(author), CreatedAt: domain.NewTimestamp(n.files.Now())}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes[eventID] = append(n.notes[eventID], note)
	if err := n.files.WriteJSON(jsonfile.NotesFile, notesDoc{Notes: n.notes}); err != nil {
		n.notes[eventID] = n.notes[eventID][:len(n.notes[eventID])-1]
		return Note{}, err
	}
	return note, nil
}
