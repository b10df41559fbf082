package snapshot

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/cespare/xxhash/v2"
)

// Snapshot is an immutable view of the rule list at one point in time.
type Snapshot struct {
	ETag      string       `json:"etag"`
	Rules     []store.Rule `json:"rules"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Lister is the part of store.Store needed to rebuild a snapshot.
type Lister interface {
	List(ctx context.Context) ([]store.Rule, error)
}

// Holder owns the current snapshot and its subscribers. It is created once
// by the caller and passed to whoever needs the rule list; there is no
// package-level state.
type Holder struct {
	current   atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
	notifier
}

// NewHolder returns a Holder with an empty snapshot loaded.
func NewHolder() *Holder {
	h := &Holder{}
	h.subs = make(map[subCh]struct{})
	h.current.Store(BuildFromRules(nil))
	return h
}

// Load returns the current snapshot. Callers must not modify it.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Update swaps in s and notifies subscribers when the ETag changed.
func (h *Holder) Update(s *Snapshot) {
	prev := h.current.Swap(s)
	if prev == nil || prev.ETag != s.ETag {
		h.publish(s.ETag)
	}
}

// Refresh rebuilds the snapshot from src. On error the current snapshot is kept.
// Concurrent refreshes are serialized so an older listing never replaces a
// newer one.
func (h *Holder) Refresh(ctx context.Context, src Lister) (*Snapshot, error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	all, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	s := BuildFromRules(all)
	h.Update(s)
	return s, nil
}

// BuildFromRules creates a snapshot with a weak ETag derived from the ids,
// canonical strings and update times, in list order.
func BuildFromRules(rs []store.Rule) *Snapshot {
	list := make([]store.Rule, len(rs))
	copy(list, rs)

	type etagEntry struct {
		ID         string    `json:"i"`
		RuleString string    `json:"s"`
		UpdatedAt  time.Time `json:"u"`
	}
	entries := make([]etagEntry, len(list))
	for i, r := range list {
		entries[i] = etagEntry{ID: r.ID, RuleString: r.RuleString, UpdatedAt: r.UpdatedAt}
	}
	blob, _ := json.Marshal(entries)
	etag := `W/"` + strconv.FormatUint(xxhash.Sum64(blob), 16) + `"`

	return &Snapshot{ETag: etag, Rules: list, UpdatedAt: time.Now().UTC()}
}
