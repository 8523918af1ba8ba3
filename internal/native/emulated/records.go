package emulated

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benaskins/secframe/internal/native"
)

// record is one row of the items table.
type record struct {
	store  *store
	id     string
	class  string
	attrs  native.Dict
	data   []byte
	sealed bool
}

// itemRef is the value behind a KindKeychainItem reference, and the origin of
// certificates and keys loaded from a keychain.
type itemRef struct {
	store *store
	id    string
	class string
}

func (r *record) ref() *itemRef {
	return &itemRef{store: r.store, id: r.id, class: r.class}
}

// plaintext returns the record payload, opening it when sealed.
func (r *record) plaintext() ([]byte, error) {
	if !r.sealed {
		return r.data, nil
	}
	return r.store.openData(r.data)
}

func persistentRef(st *store, id string) []byte {
	return []byte(st.id + "/" + id)
}

func parsePersistentRef(b []byte) (storeID, itemID string, ok bool) {
	s := string(b)
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:], i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}

func (st *store) loadClass(class string) ([]*record, error) {
	rows, err := st.db.Query("SELECT id, class, attrs, data, sealed FROM items WHERE class = ? ORDER BY created_at, id", class)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()
	return st.scan(rows)
}

func (st *store) loadID(id string) (*record, error) {
	rows, err := st.db.Query("SELECT id, class, attrs, data, sealed FROM items WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying item: %w", err)
	}
	defer rows.Close()
	recs, err := st.scan(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, sql.ErrNoRows
	}
	return recs[0], nil
}

func (st *store) scan(rows *sql.Rows) ([]*record, error) {
	var out []*record
	for rows.Next() {
		r := &record{store: st}
		var attrs string
		var sealed int
		if err := rows.Scan(&r.id, &r.class, &attrs, &r.data, &sealed); err != nil {
			return nil, err
		}
		r.sealed = sealed != 0
		decoded, err := decodeAttrs(attrs)
		if err != nil {
			return nil, fmt.Errorf("decoding attributes of %s: %w", r.id, err)
		}
		r.attrs = decoded
		out = append(out, r)
	}
	return out, rows.Err()
}

func (st *store) insert(class string, attrs native.Dict, data []byte, sealed bool, now time.Time) (*record, error) {
	payload := data
	if sealed {
		var err error
		if payload, err = st.sealData(data); err != nil {
			return nil, err
		}
	}
	encoded, err := encodeAttrs(attrs)
	if err != nil {
		return nil, err
	}
	r := &record{store: st, id: uuid.NewString(), class: class, attrs: attrs, data: payload, sealed: sealed}
	_, err = st.db.Exec(
		"INSERT INTO items (id, class, attrs, data, sealed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.id, class, encoded, payload, boolInt(sealed), unixNow(now), unixNow(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting item: %w", err)
	}
	return r, nil
}

func (st *store) update(r *record, attrs native.Dict, data []byte, replaceData bool, now time.Time) error {
	encoded, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	if !replaceData {
		_, err = st.db.Exec("UPDATE items SET attrs = ?, updated_at = ? WHERE id = ?", encoded, unixNow(now), r.id)
		if err != nil {
			return fmt.Errorf("updating item: %w", err)
		}
		r.attrs = attrs
		return nil
	}

	payload := data
	if r.sealed {
		if payload, err = st.sealData(data); err != nil {
			return err
		}
	}
	_, err = st.db.Exec("UPDATE items SET attrs = ?, data = ?, updated_at = ? WHERE id = ?", encoded, payload, unixNow(now), r.id)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	r.attrs, r.data = attrs, payload
	return nil
}

func (st *store) remove(id string) error {
	res, err := st.db.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// statusFor maps storage errors to native statuses.
func statusFor(err error) native.Status {
	switch {
	case err == nil:
		return native.ErrSecSuccess
	case errors.Is(err, errLocked):
		return native.ErrSecInteractionNotAllowed
	case errors.Is(err, sql.ErrNoRows):
		return native.ErrSecItemNotFound
	default:
		return native.ErrSecIO
	}
}

// primaryKeys lists the attributes that identify an item within its class.
var primaryKeys = map[string][]native.Key{
	native.ClassGenericPassword: {
		native.AttrAccount, native.AttrService, native.AttrAccessGroup, native.AttrSynchronizable,
	},
	native.ClassInternetPassword: {
		native.AttrAccount, native.AttrSecurityDomain, native.AttrServer, native.AttrProtocol,
		native.AttrAuthenticationType, native.AttrPort, native.AttrPath, native.AttrAccessGroup,
		native.AttrSynchronizable,
	},
	native.ClassCertificate: {
		native.AttrCertificateType, native.AttrIssuer, native.AttrSerialNumber,
	},
	native.ClassKey: {
		native.AttrKeyClass, native.AttrApplicationLabel, native.AttrApplicationTag, native.AttrKeyType,
	},
}

func duplicates(class string, a, b native.Dict) bool {
	for _, k := range primaryKeys[class] {
		av, aok := a[k]
		bv, bok := b[k]
		if aok != bok {
			return false
		}
		if aok && !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

// sealedClass reports whether payloads of the class are secret.
func sealedClass(class string) bool {
	switch class {
	case native.ClassGenericPassword, native.ClassInternetPassword, native.ClassKey:
		return true
	}
	return false
}
