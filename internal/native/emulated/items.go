package emulated

import (
	"strings"

	"github.com/benaskins/secframe/internal/native"
)

// query is a parsed query dictionary.
type query struct {
	class      string
	attrs      native.Dict
	limit      int
	searchList []native.Ref
	target     native.Value

	returnData       bool
	returnAttributes bool
	returnRef        bool
	returnPersistent bool

	data       []byte
	hasData    bool
	valueRef   native.Ref
	persistent []byte
	subject    string
}

func (q *query) returns() int {
	n := 0
	for _, b := range []bool{q.returnData, q.returnAttributes, q.returnRef, q.returnPersistent} {
		if b {
			n++
		}
	}
	return n
}

func parseQuery(d native.Dict) (*query, native.Status) {
	q := &query{attrs: make(native.Dict), limit: 1}
	for k, v := range d {
		switch k {
		case native.KeyClass:
			class, ok := stringValue(v)
			if !ok {
				return nil, native.ErrSecParam
			}
			q.class = class
		case native.KeyMatchLimit:
			switch lv := normalize(v).(type) {
			case string:
				switch lv {
				case native.MatchLimitOne:
					q.limit = 1
				case native.MatchLimitAll:
					q.limit = 0
				default:
					return nil, native.ErrSecParam
				}
			case int64:
				if lv < 1 {
					return nil, native.ErrSecParam
				}
				q.limit = int(lv)
			default:
				return nil, native.ErrSecParam
			}
		case native.KeyMatchSearchList:
			q.searchList = refList(v)
		case native.KeyMatchSubjectContains:
			q.subject, _ = stringValue(v)
		case native.KeyUseKeychain:
			q.target = v
		case native.KeyReturnData:
			q.returnData = boolValue(v)
		case native.KeyReturnAttributes:
			q.returnAttributes = boolValue(v)
		case native.KeyReturnRef:
			q.returnRef = boolValue(v)
		case native.KeyReturnPersistentRef:
			q.returnPersistent = boolValue(v)
		case native.KeyValueData:
			data, ok := v.([]byte)
			if !ok {
				s, isString := v.(string)
				if !isString {
					return nil, native.ErrSecParam
				}
				data = []byte(s)
			}
			q.data, q.hasData = data, true
		case native.KeyValueRef:
			ref, ok := v.(native.Ref)
			if !ok {
				return nil, native.ErrSecParam
			}
			q.valueRef = ref
		case native.KeyValuePersistentRef:
			b, ok := v.([]byte)
			if !ok {
				return nil, native.ErrSecParam
			}
			q.persistent = b
		default:
			if !isControlKey(k) {
				q.attrs[k] = v
			}
		}
	}
	return q, native.ErrSecSuccess
}

// candidate is one matched item. Identities pair a certificate record with
// the record of its private key.
type candidate struct {
	rec *record
	key *record
}

func (s *Service) targetStore(v native.Value) (*store, native.Status) {
	if ref, ok := v.(native.Ref); ok && ref != native.NullRef {
		return s.storeOf(ref)
	}
	return s.defaultStore()
}

func (s *Service) searchStores(list []native.Ref) ([]*store, native.Status) {
	if len(list) == 0 {
		st, status := s.defaultStore()
		if status != native.ErrSecSuccess {
			return nil, status
		}
		return []*store{st}, native.ErrSecSuccess
	}
	out := make([]*store, 0, len(list))
	for _, ref := range list {
		st, status := s.storeOf(ref)
		if status != native.ErrSecSuccess {
			return nil, status
		}
		out = append(out, st)
	}
	return out, native.ErrSecSuccess
}

// originOf returns the keychain origin of an item, certificate, key or
// identity reference.
func (s *Service) originOf(ref native.Ref) (*itemRef, bool) {
	obj, ok := s.lookup(ref)
	if !ok {
		return nil, false
	}
	switch v := obj.value.(type) {
	case *itemRef:
		return v, true
	case *certificate:
		return v.origin, v.origin != nil
	case *key:
		return v.origin, v.origin != nil
	case *identity:
		return v.cert.origin, v.cert.origin != nil
	}
	return nil, false
}

func matches(q *query, r *record) bool {
	for k, want := range q.attrs {
		if k == native.AttrSynchronizable {
			if sv, ok := want.(string); ok && sv == "syna" {
				continue
			}
		}
		have, ok := r.attrs[k]
		if !ok || !valuesEqual(want, have) {
			return false
		}
	}
	if _, ok := q.attrs[native.AttrSynchronizable]; !ok && boolValue(r.attrs[native.AttrSynchronizable]) {
		return false
	}
	return true
}

func (s *Service) find(q *query) ([]candidate, native.Status) {
	if q.class == "" {
		return nil, native.ErrSecParam
	}
	if _, ok := primaryKeys[q.class]; !ok && q.class != native.ClassIdentity {
		return nil, native.ErrSecNoSuchClass
	}

	var pinned *itemRef
	if q.valueRef != native.NullRef {
		origin, ok := s.originOf(q.valueRef)
		if !ok {
			return nil, native.ErrSecItemNotFound
		}
		pinned = origin
	}
	if q.persistent != nil {
		storeID, itemID, ok := parsePersistentRef(q.persistent)
		if !ok {
			return nil, native.ErrSecItemNotFound
		}
		st, ok := s.storeByID(storeID)
		if !ok {
			return nil, native.ErrSecItemNotFound
		}
		pinned = &itemRef{store: st, id: itemID}
	}

	stores, status := s.searchStores(q.searchList)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	if pinned != nil {
		stores = []*store{pinned.store}
	}

	class := q.class
	if class == native.ClassIdentity {
		class = native.ClassCertificate
	}

	var out []candidate
	for _, st := range stores {
		recs, err := st.loadClass(class)
		if err != nil {
			s.logger.Debug("loading items failed", "path", st.path, "error", err)
			return nil, statusFor(err)
		}
		for _, r := range recs {
			if pinned != nil && r.id != pinned.id {
				continue
			}
			if !matches(q, r) {
				continue
			}
			if q.subject != "" && !subjectContains(r, q.subject) {
				continue
			}
			c := candidate{rec: r}
			if q.class == native.ClassIdentity {
				keyRec, ok := s.keyRecordFor(st, r)
				if !ok {
					continue
				}
				c.key = keyRec
			}
			out = append(out, c)
		}
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, native.ErrSecSuccess
}

func subjectContains(r *record, needle string) bool {
	label, _ := stringValue(r.attrs[native.AttrLabel])
	return label != "" && strings.Contains(strings.ToLower(label), strings.ToLower(needle))
}

func (s *Service) keyRecordFor(st *store, cert *record) (*record, bool) {
	hash, ok := cert.attrs[native.AttrPublicKeyHash]
	if !ok {
		return nil, false
	}
	recs, err := st.loadClass(native.ClassKey)
	if err != nil {
		return nil, false
	}
	for _, r := range recs {
		if valuesEqual(r.attrs[native.AttrKeyClass], native.KeyClassPrivate) &&
			valuesEqual(r.attrs[native.AttrApplicationLabel], hash) {
			return r, true
		}
	}
	return nil, false
}

// objectFor creates a reference to the object a candidate stands for.
func (s *Service) objectFor(c candidate) (native.Ref, native.Status) {
	switch c.rec.class {
	case native.ClassCertificate:
		cert, ok := parseCertificate(c.rec.data)
		if !ok {
			return native.NullRef, native.ErrSecDecode
		}
		cert.origin = c.rec.ref()
		if c.key == nil {
			return s.certificateRef(cert), native.ErrSecSuccess
		}
		k, status := keyFromRecord(c.key)
		if status != native.ErrSecSuccess {
			return native.NullRef, status
		}
		return s.alloc(native.KindIdentity, &identity{cert: cert, key: k}), native.ErrSecSuccess
	case native.ClassKey:
		k, status := keyFromRecord(c.rec)
		if status != native.ErrSecSuccess {
			return native.NullRef, status
		}
		return s.keyRef(k), native.ErrSecSuccess
	default:
		return s.alloc(native.KindKeychainItem, c.rec.ref()), native.ErrSecSuccess
	}
}

// render builds the result value for one candidate. References inside the
// result are owned by it.
func (s *Service) render(q *query, c candidate) (native.Value, native.Status) {
	var (
		data []byte
		ref  native.Ref
	)
	if q.returnData {
		if c.rec.class == native.ClassKey {
			k, status := keyFromRecord(c.rec)
			if status != native.ErrSecSuccess {
				return nil, status
			}
			if data, status = k.externalRepresentation(); status != native.ErrSecSuccess {
				return nil, status
			}
		} else {
			plain, err := c.rec.plaintext()
			if err != nil {
				return nil, statusFor(err)
			}
			data = append([]byte{}, plain...)
		}
	}
	if q.returnRef {
		var status native.Status
		if ref, status = s.objectFor(c); status != native.ErrSecSuccess {
			return nil, status
		}
	}
	attrs := func() native.Dict {
		out := copyDict(c.rec.attrs)
		out[native.KeyClass] = q.class
		return out
	}
	pref := persistentRef(c.rec.store, c.rec.id)

	if q.returns() == 1 {
		switch {
		case q.returnData:
			return data, native.ErrSecSuccess
		case q.returnRef:
			return ref, native.ErrSecSuccess
		case q.returnPersistent:
			return pref, native.ErrSecSuccess
		default:
			return attrs(), native.ErrSecSuccess
		}
	}

	out := native.Dict{}
	if q.returnAttributes {
		out = attrs()
	}
	if q.returnData {
		out[native.KeyValueData] = data
	}
	if q.returnRef {
		out[native.KeyValueRef] = ref
	}
	if q.returnPersistent {
		out[native.KeyValuePersistentRef] = pref
	}
	return out, native.ErrSecSuccess
}

func (s *Service) renderAll(q *query, found []candidate) (native.Value, native.Status) {
	if q.returns() == 0 {
		return nil, native.ErrSecSuccess
	}
	results := make([]native.Value, 0, len(found))
	for _, c := range found {
		v, status := s.render(q, c)
		if status != native.ErrSecSuccess {
			s.ReleaseValue(results)
			return nil, status
		}
		results = append(results, v)
	}
	if q.limit == 1 {
		return results[0], native.ErrSecSuccess
	}
	return results, native.ErrSecSuccess
}

func (s *Service) ItemCopyMatching(d native.Dict) (native.Value, native.Status) {
	q, status := parseQuery(d)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	found, status := s.find(q)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	if len(found) == 0 {
		return nil, native.ErrSecItemNotFound
	}
	return s.renderAll(q, found)
}

// insertUnique adds a record after checking the class uniqueness constraint.
func (s *Service) insertUnique(st *store, class string, attrs native.Dict, data []byte) (*record, native.Status) {
	existing, err := st.loadClass(class)
	if err != nil {
		return nil, statusFor(err)
	}
	for _, r := range existing {
		if duplicates(class, r.attrs, attrs) {
			return nil, native.ErrSecDuplicateItem
		}
	}
	now := s.now()
	attrs[native.AttrCreationDate] = now.UTC()
	attrs[native.AttrModificationDate] = now.UTC()
	r, err := st.insert(class, attrs, data, sealedClass(class), now)
	if err != nil {
		return nil, statusFor(err)
	}
	return r, native.ErrSecSuccess
}

func (s *Service) ItemAdd(d native.Dict) (native.Value, native.Status) {
	q, status := parseQuery(d)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	if q.class == "" {
		return nil, native.ErrSecParam
	}
	st, status := s.targetStore(q.target)
	if status != native.ErrSecSuccess {
		return nil, status
	}

	attrs, status := s.storableAttrs(q.attrs)
	if status != native.ErrSecSuccess {
		return nil, status
	}

	var added []*record
	switch q.class {
	case native.ClassGenericPassword, native.ClassInternetPassword:
		if _, ok := attrs[native.AttrSynchronizable]; !ok {
			attrs[native.AttrSynchronizable] = false
		}
		r, status := s.insertUnique(st, q.class, attrs, q.data)
		if status != native.ErrSecSuccess {
			return nil, status
		}
		added = append(added, r)

	case native.ClassCertificate:
		der := q.data
		if c, ok := s.certOf(q.valueRef); ok {
			der = c.cert.Raw
		}
		c, ok := parseCertificate(der)
		if !ok {
			return nil, native.ErrSecParam
		}
		r, status := s.addCertificate(st, c, attrs)
		if status != native.ErrSecSuccess {
			return nil, status
		}
		added = append(added, r)

	case native.ClassKey:
		k, ok := s.keyOf(q.valueRef)
		if !ok {
			return nil, native.ErrSecParam
		}
		r, status := s.addKey(st, k, attrs)
		if status != native.ErrSecSuccess {
			return nil, status
		}
		added = append(added, r)

	case native.ClassIdentity:
		id, ok := s.identityOf(q.valueRef)
		if !ok {
			return nil, native.ErrSecParam
		}
		certRec, status := s.addCertificate(st, id.cert, attrs)
		if status != native.ErrSecSuccess && status != native.ErrSecDuplicateItem {
			return nil, status
		}
		keyRec, keyStatus := s.addKey(st, id.key, native.Dict{})
		if keyStatus != native.ErrSecSuccess {
			if status == native.ErrSecDuplicateItem && keyStatus == native.ErrSecDuplicateItem {
				return nil, native.ErrSecDuplicateItem
			}
			if keyStatus != native.ErrSecDuplicateItem {
				return nil, keyStatus
			}
		}
		if certRec == nil {
			return nil, native.ErrSecSuccess
		}
		q.class = native.ClassIdentity
		q.limit = 1
		return s.renderAll(q, []candidate{{rec: certRec, key: keyRec}})

	default:
		return nil, native.ErrSecNoSuchClass
	}

	s.logger.Debug("item added", "class", q.class, "path", st.path)
	q.limit = 1
	found := make([]candidate, 0, len(added))
	for _, r := range added {
		found = append(found, candidate{rec: r})
	}
	return s.renderAll(q, found)
}

func (s *Service) addCertificate(st *store, c *certificate, extra native.Dict) (*record, native.Status) {
	attrs := certAttributes(c.cert)
	for k, v := range extra {
		attrs[k] = v
	}
	r, status := s.insertUnique(st, native.ClassCertificate, attrs, c.cert.Raw)
	if status == native.ErrSecSuccess {
		c.origin = r.ref()
	}
	return r, status
}

func (s *Service) addKey(st *store, k *key, extra native.Dict) (*record, native.Status) {
	attrs := k.attributes()
	attrs[native.AttrIsPermanent] = true
	for name, v := range extra {
		attrs[name] = v
	}
	data, err := k.storedForm()
	if err != nil {
		return nil, native.ErrSecInvalidData
	}
	r, status := s.insertUnique(st, native.ClassKey, attrs, data)
	if status == native.ErrSecSuccess {
		k.origin = r.ref()
	}
	return r, status
}

func (s *Service) ItemUpdate(d, changes native.Dict) native.Status {
	q, status := parseQuery(d)
	if status != native.ErrSecSuccess {
		return status
	}
	q.limit = 0
	found, status := s.find(q)
	if status != native.ErrSecSuccess {
		return status
	}
	if len(found) == 0 {
		return native.ErrSecItemNotFound
	}
	c, status := parseQuery(changes)
	if status != native.ErrSecSuccess {
		return status
	}
	changed, status := s.storableAttrs(c.attrs)
	if status != native.ErrSecSuccess {
		return status
	}

	now := s.now()
	for _, cand := range found {
		r := cand.rec
		attrs := copyDict(r.attrs)
		for k, v := range changed {
			attrs[k] = v
		}
		attrs[native.AttrModificationDate] = now.UTC()

		siblings, err := r.store.loadClass(r.class)
		if err != nil {
			return statusFor(err)
		}
		for _, other := range siblings {
			if other.id != r.id && duplicates(r.class, other.attrs, attrs) {
				return native.ErrSecDuplicateItem
			}
		}
		if err := r.store.update(r, attrs, c.data, c.hasData, now); err != nil {
			return statusFor(err)
		}
	}
	return native.ErrSecSuccess
}

func (s *Service) ItemDelete(d native.Dict) native.Status {
	q, status := parseQuery(d)
	if status != native.ErrSecSuccess {
		return status
	}
	q.limit = 0
	found, status := s.find(q)
	if status != native.ErrSecSuccess {
		return status
	}
	if len(found) == 0 {
		return native.ErrSecItemNotFound
	}
	for _, c := range found {
		if err := c.rec.store.remove(c.rec.id); err != nil {
			return statusFor(err)
		}
		if c.key != nil {
			if err := c.key.store.remove(c.key.id); err != nil {
				return statusFor(err)
			}
		}
	}
	return native.ErrSecSuccess
}

func (s *Service) KeychainItemCopyKeychain(ref native.Ref) (native.Ref, native.Status) {
	origin, ok := s.originOf(ref)
	if !ok {
		return native.NullRef, native.ErrSecInvalidItemRef
	}
	return s.keychainRef(origin.store), native.ErrSecSuccess
}

func (s *Service) KeychainItemCreatePersistentReference(ref native.Ref) ([]byte, native.Status) {
	origin, ok := s.originOf(ref)
	if !ok {
		return nil, native.ErrSecInvalidItemRef
	}
	return persistentRef(origin.store, origin.id), native.ErrSecSuccess
}

func (s *Service) KeychainItemDelete(ref native.Ref) native.Status {
	origin, ok := s.originOf(ref)
	if !ok {
		return native.ErrSecInvalidItemRef
	}
	status := statusFor(origin.store.remove(origin.id))
	if status == native.ErrSecItemNotFound {
		return native.ErrSecInvalidItemRef
	}
	return status
}
