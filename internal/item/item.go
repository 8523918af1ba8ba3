package item

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Search runs the query. A query without any Return flag succeeds with no
// results when something matches. No match at all is ErrItemNotFound.
func (q *Query) Search() ([]Result, error) {
	v, st := q.svc.ItemCopyMatching(q.Dict())
	if err := status.Translate(q.svc, st); err != nil {
		return nil, err
	}
	return q.results(v), nil
}

// SearchOne runs the query with LimitOne and returns the single match.
func (q *Query) SearchOne() (*Result, error) {
	rs, err := q.Clone().Limit(LimitOne).Search()
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

// Add stores a new item. The returned Result is nil unless the query asks
// for something back.
func (q *Query) Add() (*Result, error) {
	add := q.Clone().Set(native.KeyMatchLimit, native.MatchLimitOne)
	v, st := q.svc.ItemAdd(add.Dict())
	if err := status.Translate(q.svc, st); err != nil {
		slog.Debug("item add failed", "component", "item", "class", q.class(), "error", err)
		return nil, err
	}
	rs := add.results(v)
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

// Update applies changes to every item matching the query.
func (q *Query) Update(changes *Query) error {
	err := status.Translate(q.svc, q.svc.ItemUpdate(q.searchDict(), changes.Dict()))
	if err != nil {
		slog.Debug("item update failed", "component", "item", "class", q.class(), "error", err)
	}
	return err
}

// Delete removes every item matching the query.
func (q *Query) Delete() error {
	return status.Translate(q.svc, q.svc.ItemDelete(q.searchDict()))
}

// searchDict drops the pairs that only make sense when adding. A target
// keychain becomes the search list so Upsert updates what Add collided with.
func (q *Query) searchDict() native.Dict {
	d := q.Dict()
	if kc, ok := d[native.KeyUseKeychain]; ok {
		if _, ok := d[native.KeyMatchSearchList]; !ok {
			d[native.KeyMatchSearchList] = []native.Value{kc}
		}
		delete(d, native.KeyUseKeychain)
	}
	delete(d, native.KeyValueData)
	delete(d, native.KeyMatchLimit)
	delete(d, native.KeyReturnData)
	delete(d, native.KeyReturnAttributes)
	delete(d, native.KeyReturnRef)
	delete(d, native.KeyReturnPersistentRef)
	return d
}

func (q *Query) class() string {
	v, _ := q.Get(native.KeyClass)
	s, _ := v.(string)
	return s
}

// Upsert adds an item identified by identity with data, or replaces the
// data of the existing item. onAdd sets attributes that only apply when the
// item is created; they are not part of the identity used for the update.
// The add and the update are separate calls, so a concurrent delete between
// them surfaces as ErrItemNotFound.
func Upsert(identity *Query, data []byte, onAdd ...func(*Query)) error {
	add := identity.Clone().Data(data)
	for _, fn := range onAdd {
		fn(add)
	}
	_, err := add.Add()
	if err == nil {
		return nil
	}
	if !errors.Is(err, status.ErrDuplicateItem) {
		return fmt.Errorf("adding %s item: %w", identity.class(), err)
	}
	changes := NewChanges(identity.svc).Data(data)
	if err := identity.Update(changes); err != nil {
		return fmt.Errorf("updating %s item: %w", identity.class(), err)
	}
	return nil
}
