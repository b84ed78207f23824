package operation

// ChangeEntry is one prospective file change: either new content for a file
// in a container or a delete marker.
type ChangeEntry struct {
	Container string `json:"container"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	Delete    bool   `json:"delete"`
}

// ChangeSet is the ordered output of a compute phase. Entries are keyed by
// container and name together, so a cross-container move of a same-named
// file keeps both of its legs. It is owned by the strategy that produced it
// until handed to the apply phase and is never mutated concurrently.
type ChangeSet struct {
	entries []ChangeEntry
	index   map[string]int
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{index: make(map[string]int)}
}

// Put records new content for a file, replacing any earlier entry for it.
func (cs *ChangeSet) Put(container, name, content string) {
	cs.set(ChangeEntry{Container: container, Name: name, Content: content})
}

// MarkDelete records a delete for a file.
func (cs *ChangeSet) MarkDelete(container, name string) {
	cs.set(ChangeEntry{Container: container, Name: name, Delete: true})
}

func (cs *ChangeSet) set(entry ChangeEntry) {
	key := entry.Container + "/" + entry.Name
	if i, ok := cs.index[key]; ok {
		cs.entries[i] = entry
		return
	}
	cs.index[key] = len(cs.entries)
	cs.entries = append(cs.entries, entry)
}

// Get returns the entry for a file.
func (cs *ChangeSet) Get(container, name string) (ChangeEntry, bool) {
	i, ok := cs.index[container+"/"+name]
	if !ok {
		return ChangeEntry{}, false
	}
	return cs.entries[i], true
}

// Entries returns the changes in insertion order.
func (cs *ChangeSet) Entries() []ChangeEntry {
	out := make([]ChangeEntry, len(cs.entries))
	copy(out, cs.entries)
	return out
}

func (cs *ChangeSet) Len() int {
	return len(cs.entries)
}

// Equal reports structural equality, order included. Compute phases must be
// re-callable, and two computes with the same inputs must compare equal here.
func (cs *ChangeSet) Equal(other *ChangeSet) bool {
	if other == nil || len(cs.entries) != len(other.entries) {
		return false
	}
	for i, e := range cs.entries {
		if other.entries[i] != e {
			return false
		}
	}
	return true
}
