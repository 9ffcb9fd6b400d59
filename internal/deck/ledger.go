package deck

import (
	"sort"
	"sync"

	"github.com/AniJ15/timbr/internal/models"
)

// Ledger records swipe decisions. A property is liked or disliked, never
// both; the latest decision wins.
type Ledger struct {
	mu       sync.RWMutex
	liked    map[string]bool
	disliked map[string]bool
}

func NewLedger() *Ledger {
	return &Ledger{
		liked:    make(map[string]bool),
		disliked: make(map[string]bool),
	}
}

func (l *Ledger) Like(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.disliked, id)
	l.liked[id] = true
}

func (l *Ledger) Dislike(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.liked, id)
	l.disliked[id] = true
}

// Forget clears any decision for id
func (l *Ledger) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.liked, id)
	delete(l.disliked, id)
}

func (l *Ledger) IsLiked(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.liked[id]
}

func (l *Ledger) IsDisliked(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.disliked[id]
}

// Swiped reports whether any decision was recorded for id
func (l *Ledger) Swiped(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.liked[id] || l.disliked[id]
}

// LikedIDs returns the liked ids in sorted order
func (l *Ledger) LikedIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.liked))
	for id := range l.liked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Assemble builds the swipe deck: the filtered properties minus those
// already swiped. A nil ledger removes nothing.
func Assemble(properties []models.Property, prefs models.UserPreferences, ledger *Ledger) []models.Property {
	filtered := Filter(properties, prefs)
	if ledger == nil {
		return filtered
	}

	out := make([]models.Property, 0, len(filtered))
	for _, p := range filtered {
		if !ledger.Swiped(p.ID) {
			out = append(out, p)
		}
	}
	return out
}
