package mvrb

import "github.com/KilimcininKorOglu/mvrbtree/internal/storage"

// Record is implemented by keys or values that are records of their own.
// A Record without identity is saved to the tree's store before the entry
// referencing it is inserted.
type Record interface {
	Identity() storage.RID
	Save(store storage.RecordStore) error
}

func (t *Tree[K, V]) persistRecord(x any) error {
	r, ok := x.(Record)
	if !ok || r.Identity().IsValid() {
		return nil
	}
	if err := r.Save(t.store); err != nil {
		return &StorageError{Op: "save record", Err: err}
	}
	return nil
}
