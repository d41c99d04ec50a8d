package editor

import (
	"sync"

	"github.com/sells-group/tax-intake/internal/model"
)

// Backup is the committed snapshot of a document list. The caller owns
// it; only the editor's save and delete paths change it.
type Backup struct {
	mu   sync.Mutex
	docs []model.Document
}

// NewBackup deep-copies docs.
func NewBackup(docs []model.Document) *Backup {
	return &Backup{docs: model.CloneDocuments(docs)}
}

// Get returns a copy of the document with fileID.
func (b *Backup) Get(fileID string) (model.Document, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := model.FindDocument(b.docs, fileID)
	if i < 0 {
		return model.Document{}, false
	}
	return b.docs[i].Clone(), true
}

// Docs returns a copy of every document.
func (b *Backup) Docs() []model.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.CloneDocuments(b.docs)
}

// Len returns the number of documents.
func (b *Backup) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

func (b *Backup) replace(doc model.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := model.FindDocument(b.docs, doc.FileID); i >= 0 {
		b.docs[i] = doc.Clone()
		return
	}
	b.docs = append(b.docs, doc.Clone())
}

func (b *Backup) remove(fileID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := model.FindDocument(b.docs, fileID); i >= 0 {
		b.docs = append(b.docs[:i], b.docs[i+1:]...)
	}
}
