// Package messagelog holds the ordered message sequence of one conversation.
package messagelog

import (
	"slices"
	"sync"

	"github.com/soyeahso/querydesk/internal/domain"
)

// Log is an append-ordered list of messages. Every method is atomic with
// respect to the others. Ids are expected to be unique; Log does not check.
type Log struct {
	mu   sync.RWMutex
	msgs []domain.Message
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Append adds msg to the end of the log.
func (l *Log) Append(msg domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

// ReplaceSuffixFrom discards the first message with the given id and every
// message after it, then appends replacement in its place. It returns the
// discarded ids in log order, or nil (and leaves the log untouched) when no
// message has that id.
func (l *Log) ReplaceSuffixFrom(id string, replacement domain.Message) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return nil
	}

	discarded := make([]string, 0, len(l.msgs)-idx)
	for _, m := range l.msgs[idx:] {
		discarded = append(discarded, m.ID)
	}

	kept := make([]domain.Message, idx, idx+1)
	copy(kept, l.msgs[:idx])
	l.msgs = append(kept, replacement)
	return discarded
}

// ResetFrom replaces the whole log with msgs.
func (l *Log) ResetFrom(msgs []domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = slices.Clone(msgs)
}

// MarkEditable sets CanEdit on every message matching pred and returns the
// number of messages that changed.
func (l *Log) MarkEditable(pred func(domain.Message) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for i := range l.msgs {
		if pred(l.msgs[i]) && !l.msgs[i].CanEdit {
			l.msgs[i].CanEdit = true
			changed++
		}
	}
	return changed
}

// Snapshot returns a copy of the log.
func (l *Log) Snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.msgs)
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Index returns the position of the first message with id, or -1.
func (l *Log) Index(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(id)
}

// Get returns the first message with id.
func (l *Log) Get(id string) (domain.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if idx := l.indexLocked(id); idx >= 0 {
		return l.msgs[idx], true
	}
	return domain.Message{}, false
}

// IDsAfter returns the ids of every message after the first one with id.
func (l *Log) IDsAfter(id string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return nil
	}
	ids := make([]string, 0, len(l.msgs)-idx-1)
	for _, m := range l.msgs[idx+1:] {
		ids = append(ids, m.ID)
	}
	return ids
}

func (l *Log) indexLocked(id string) int {
	return slices.IndexFunc(l.msgs, func(m domain.Message) bool { return m.ID == id })
}
