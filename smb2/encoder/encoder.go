// Package encoder marshals and unmarshals SMB2 protocol data units to and
// from their little-endian wire form. Variable-length buffers are described
// with struct tags:
//
//	fixed:N       []byte of exactly N bytes
//	len:Field     integer holding the byte length of Field
//	offset:Field  integer holding the offset of Field from the start of the
//	              outermost struct being encoded (the SMB2 header)
//	count:Field   integer holding the element count of Field
//
// Types with irregular encodings (SPNEGO blobs) implement BinaryMarshallable
// and take over their own serialization.
package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/jfjallid/golog"
)

var log = golog.Get("github.com/nordfjell/smbclient/smb2/encoder")

// BinaryMarshallable lets a field encode and decode itself.
type BinaryMarshallable interface {
	MarshalBinary(*Metadata) ([]byte, error)
	UnmarshalBinary([]byte, *Metadata) error
}

// Metadata carries per-struct decoding state: lengths, offsets and counts
// announced by earlier fields, the raw parent buffer for out-of-line data,
// and the read cursor.
type Metadata struct {
	Tags       *TagMap
	Lens       map[string]uint64
	Offsets    map[string]uint64
	Counts     map[string]uint64
	Parent     interface{}
	ParentBuf  []byte
	CurrOffset uint64
	CurrField  string
}

// TagMap holds the parsed smb struct tag of a single field.
type TagMap struct {
	m map[string]interface{}
}

func (t *TagMap) Has(key string) bool {
	_, ok := t.m[key]
	return ok
}

func (t *TagMap) Set(key string, val interface{}) {
	t.m[key] = val
}

func (t *TagMap) GetInt(key string) (int, error) {
	v, ok := t.m[key]
	if !ok {
		return 0, errors.New("key does not exist in tag: " + key)
	}
	return v.(int), nil
}

func (t *TagMap) GetString(key string) (string, error) {
	v, ok := t.m[key]
	if !ok {
		return "", errors.New("key does not exist in tag: " + key)
	}
	return v.(string), nil
}

func parseTags(sf reflect.StructField) (*TagMap, error) {
	ret := &TagMap{m: make(map[string]interface{})}
	for _, part := range strings.Split(sf.Tag.Get("smb"), ",") {
		tokens := strings.Split(part, ":")
		switch tokens[0] {
		case "len", "offset", "count":
			if len(tokens) != 2 {
				return nil, errors.New("missing tag data, expecting key:val")
			}
			ret.Set(tokens[0], tokens[1])
		case "fixed":
			if len(tokens) != 2 {
				return nil, errors.New("missing tag data, expecting key:val")
			}
			i, err := strconv.Atoi(tokens[1])
			if err != nil {
				return nil, err
			}
			ret.Set(tokens[0], i)
		}
	}
	return ret, nil
}

// fieldOffset sums the encoded lengths of every field preceding fieldName in
// the parent struct, which yields its offset from the start of the PDU.
func fieldOffset(fieldName string, meta *Metadata) (uint64, error) {
	if meta == nil || meta.Parent == nil || meta.Lens == nil {
		return 0, errors.New("cannot determine field offset, missing metadata")
	}
	parent := reflect.Indirect(reflect.ValueOf(meta.Parent))
	var ret uint64
	for i := 0; i < parent.NumField(); i++ {
		tf := parent.Type().Field(i)
		if tf.Name == fieldName {
			return ret, nil
		}
		l, ok := meta.Lens[tf.Name]
		if !ok {
			buf, err := Marshal(parent.Field(i).Interface())
			if err != nil {
				return 0, err
			}
			l = uint64(len(buf))
			meta.Lens[tf.Name] = l
		}
		ret += l
	}
	return 0, errors.New("no such field in struct: " + fieldName)
}

func fieldLength(fieldName string, meta *Metadata) (uint64, error) {
	if meta == nil || meta.Parent == nil || meta.Lens == nil {
		return 0, errors.New("cannot determine field length, missing metadata")
	}
	if val, ok := meta.Lens[fieldName]; ok {
		return val, nil
	}
	parent := reflect.Indirect(reflect.ValueOf(meta.Parent))
	field := parent.FieldByName(fieldName)
	if !field.IsValid() {
		return 0, errors.New("invalid field, cannot determine length of " + fieldName)
	}
	buf, err := marshal(field.Interface(), nil)
	if err != nil {
		return 0, err
	}
	l := uint64(len(buf))
	meta.Lens[fieldName] = l
	return l, nil
}

func fieldCount(fieldName string, meta *Metadata) (uint64, error) {
	parent := reflect.Indirect(reflect.ValueOf(meta.Parent))
	field := parent.FieldByName(fieldName)
	if !field.IsValid() {
		return 0, errors.New("invalid field, cannot determine count of " + fieldName)
	}
	switch field.Kind() {
	case reflect.Slice, reflect.Array:
		return uint64(field.Len()), nil
	}
	return 0, errors.New("count tag requires a slice field: " + fieldName)
}

// Marshal encodes v into its little-endian wire representation.
func Marshal(v interface{}) ([]byte, error) {
	return marshal(v, nil)
}

func marshal(v interface{}, meta *Metadata) ([]byte, error) {
	if bm, ok := v.(BinaryMarshallable); ok {
		return bm.MarshalBinary(meta)
	}

	typev := reflect.TypeOf(v)
	valuev := reflect.ValueOf(v)
	if typev.Kind() == reflect.Ptr {
		valuev = reflect.Indirect(valuev)
		if !valuev.IsValid() {
			// Absent optional blob encodes as an empty buffer.
			return nil, nil
		}
		typev = valuev.Type()
	}

	w := new(bytes.Buffer)
	switch typev.Kind() {
	case reflect.Struct:
		m := &Metadata{
			Tags:   &TagMap{m: make(map[string]interface{})},
			Lens:   make(map[string]uint64),
			Parent: v,
		}
		for i := 0; i < valuev.NumField(); i++ {
			tags, err := parseTags(typev.Field(i))
			if err != nil {
				return nil, err
			}
			m.Tags = tags
			buf, err := marshal(valuev.Field(i).Interface(), m)
			if err != nil {
				return nil, err
			}
			m.Lens[typev.Field(i).Name] = uint64(len(buf))
			w.Write(buf)
		}
	case reflect.Slice, reflect.Array:
		switch typev.Elem().Kind() {
		case reflect.Uint8:
			w.Write(valuev.Bytes())
		case reflect.Uint16:
			if err := binary.Write(w, binary.LittleEndian, v.([]uint16)); err != nil {
				return nil, err
			}
		default:
			err := fmt.Errorf("marshal not implemented for slices of kind %v", typev.Elem().Kind())
			log.Errorln(err)
			return nil, err
		}
	case reflect.Uint8:
		data8 := valuev.Interface().(uint8)
		if meta != nil && (meta.Tags.Has("len") || meta.Tags.Has("offset") || meta.Tags.Has("count")) {
			wide := uint16(data8)
			if err := resolveTagged(meta, &wide); err != nil {
				return nil, err
			}
			data8 = uint8(wide)
		}
		w.WriteByte(data8)
	case reflect.Uint16:
		data := valuev.Interface().(uint16)
		if err := resolveTagged(meta, &data); err != nil {
			return nil, err
		}
		if err := binary.Write(w, binary.LittleEndian, data); err != nil {
			return nil, err
		}
	case reflect.Uint32:
		data32 := valuev.Interface().(uint32)
		if meta != nil && meta.Tags.Has("len") {
			fieldName, err := meta.Tags.GetString("len")
			if err != nil {
				return nil, err
			}
			l, err := fieldLength(fieldName, meta)
			if err != nil {
				return nil, err
			}
			data32 = uint32(l)
		}
		if meta != nil && meta.Tags.Has("offset") {
			fieldName, err := meta.Tags.GetString("offset")
			if err != nil {
				return nil, err
			}
			o, err := fieldOffset(fieldName, meta)
			if err != nil {
				return nil, err
			}
			// A zero-length buffer carries a zero offset on the wire.
			if l, ok := meta.Lens[fieldName]; ok && l == 0 {
				data32 = 0
			} else {
				data32 = uint32(o)
			}
		}
		if meta != nil && meta.Tags.Has("count") {
			fieldName, err := meta.Tags.GetString("count")
			if err != nil {
				return nil, err
			}
			n, err := fieldCount(fieldName, meta)
			if err != nil {
				return nil, err
			}
			data32 = uint32(n)
		}
		if err := binary.Write(w, binary.LittleEndian, data32); err != nil {
			return nil, err
		}
	case reflect.Uint64:
		if err := binary.Write(w, binary.LittleEndian, valuev.Interface().(uint64)); err != nil {
			return nil, err
		}
	default:
		err := fmt.Errorf("marshal not implemented for kind %s", typev.Kind())
		log.Errorln(err)
		return nil, err
	}
	return w.Bytes(), nil
}

// resolveTagged replaces a uint16 field value with the length, offset or
// count of the field its tag references.
func resolveTagged(meta *Metadata, data *uint16) error {
	if meta == nil {
		return nil
	}
	if meta.Tags.Has("len") {
		fieldName, err := meta.Tags.GetString("len")
		if err != nil {
			return err
		}
		l, err := fieldLength(fieldName, meta)
		if err != nil {
			return err
		}
		*data = uint16(l)
	}
	if meta.Tags.Has("offset") {
		fieldName, err := meta.Tags.GetString("offset")
		if err != nil {
			return err
		}
		o, err := fieldOffset(fieldName, meta)
		if err != nil {
			return err
		}
		if l, ok := meta.Lens[fieldName]; ok && l == 0 {
			*data = 0
		} else {
			*data = uint16(o)
		}
	}
	if meta.Tags.Has("count") {
		fieldName, err := meta.Tags.GetString("count")
		if err != nil {
			return err
		}
		n, err := fieldCount(fieldName, meta)
		if err != nil {
			return err
		}
		*data = uint16(n)
	}
	return nil
}

// Unmarshal decodes buf into v. v must be a pointer. Truncated or malformed
// input yields an error rather than a partial decode.
func Unmarshal(buf []byte, v interface{}) error {
	_, err := unmarshal(buf, v, nil)
	return err
}

func unmarshal(buf []byte, v interface{}, meta *Metadata) (interface{}, error) {
	if bm, ok := v.(BinaryMarshallable); ok {
		if meta != nil {
			// An announced zero length means the blob is absent.
			if l, ok := meta.Lens[meta.CurrField]; ok && l == 0 {
				return bm, nil
			}
		}
		if err := bm.UnmarshalBinary(buf, meta); err != nil {
			return nil, err
		}
		if meta != nil {
			if val, ok := meta.Lens[meta.CurrField]; ok {
				meta.CurrOffset += val
			}
		}
		return bm, nil
	}

	typev := reflect.TypeOf(v)
	valuev := reflect.ValueOf(v)
	if typev.Kind() == reflect.Ptr {
		valuev = valuev.Elem()
		typev = valuev.Type()
	}

	if meta == nil {
		meta = &Metadata{
			Tags:      &TagMap{m: make(map[string]interface{})},
			Lens:      make(map[string]uint64),
			Offsets:   make(map[string]uint64),
			Counts:    make(map[string]uint64),
			Parent:    v,
			ParentBuf: buf,
		}
	}

	r := bytes.NewBuffer(buf)
	switch typev.Kind() {
	case reflect.Struct:
		m := &Metadata{
			Tags:      &TagMap{m: make(map[string]interface{})},
			Lens:      make(map[string]uint64),
			Offsets:   make(map[string]uint64),
			Counts:    make(map[string]uint64),
			Parent:    v,
			ParentBuf: buf,
		}
		for i := 0; i < typev.NumField(); i++ {
			m.CurrField = typev.Field(i).Name
			tags, err := parseTags(typev.Field(i))
			if err != nil {
				return nil, err
			}
			m.Tags = tags
			var data interface{}
			switch typev.Field(i).Type.Kind() {
			case reflect.Struct:
				data, err = unmarshal(buf[m.CurrOffset:], valuev.Field(i).Addr().Interface(), m)
			default:
				data, err = unmarshal(buf[m.CurrOffset:], valuev.Field(i).Interface(), m)
			}
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue
			}
			valuev.Field(i).Set(reflect.ValueOf(data))
		}
		v = reflect.Indirect(reflect.ValueOf(v)).Interface()
		meta.CurrOffset += m.CurrOffset
		return v, nil
	case reflect.Uint8:
		var ret uint8
		if err := binary.Read(r, binary.LittleEndian, &ret); err != nil {
			return nil, err
		}
		meta.CurrOffset++
		recordTagged(meta, uint64(ret))
		return ret, nil
	case reflect.Uint16:
		var ret uint16
		if err := binary.Read(r, binary.LittleEndian, &ret); err != nil {
			return nil, err
		}
		meta.CurrOffset += 2
		recordTagged(meta, uint64(ret))
		return ret, nil
	case reflect.Uint32:
		var ret uint32
		if err := binary.Read(r, binary.LittleEndian, &ret); err != nil {
			return nil, err
		}
		meta.CurrOffset += 4
		recordTagged(meta, uint64(ret))
		return ret, nil
	case reflect.Uint64:
		var ret uint64
		if err := binary.Read(r, binary.LittleEndian, &ret); err != nil {
			return nil, err
		}
		meta.CurrOffset += 8
		recordTagged(meta, uint64(ret))
		return ret, nil
	case reflect.Slice, reflect.Array:
		switch typev.Elem().Kind() {
		case reflect.Uint8:
			var length, offset int
			if meta.Tags.Has("fixed") {
				var err error
				if length, err = meta.Tags.GetInt("fixed"); err != nil {
					return nil, err
				}
				meta.CurrOffset += uint64(length)
			} else {
				val, ok := meta.Lens[meta.CurrField]
				if !ok {
					err := errors.New("variable length field missing length reference: " + meta.CurrField)
					log.Errorln(err)
					return nil, err
				}
				length = int(val)
				if val, ok := meta.Offsets[meta.CurrField]; ok {
					offset = int(val)
				} else {
					offset = int(meta.CurrOffset)
				}
				if offset != int(meta.CurrOffset) {
					// Out-of-line buffer, addressed from the PDU start.
					if offset+length > len(meta.ParentBuf) {
						return nil, errors.New("declared buffer exceeds received message: " + meta.CurrField)
					}
					r = bytes.NewBuffer(meta.ParentBuf[offset : offset+length])
				} else {
					meta.CurrOffset += uint64(length)
				}
			}
			if length > r.Len() {
				return nil, errors.New("declared length exceeds received message: " + meta.CurrField)
			}
			data := make([]byte, length)
			if err := binary.Read(r, binary.LittleEndian, &data); err != nil {
				return nil, err
			}
			return data, nil
		case reflect.Uint16:
			count, ok := meta.Counts[meta.CurrField]
			if !ok {
				err := errors.New("variable length field missing count reference: " + meta.CurrField)
				log.Errorln(err)
				return nil, err
			}
			if int(count)*2 > r.Len() {
				return nil, errors.New("declared count exceeds received message: " + meta.CurrField)
			}
			data := make([]uint16, count)
			if err := binary.Read(r, binary.LittleEndian, &data); err != nil {
				return nil, err
			}
			meta.CurrOffset += count * 2
			return data, nil
		default:
			err := fmt.Errorf("unmarshal not implemented for slices of kind %v", typev.Elem().Kind())
			log.Errorln(err)
			return nil, err
		}
	default:
		err := fmt.Errorf("unmarshal not implemented for kind %s", typev.Kind())
		log.Errorln(err)
		return nil, err
	}
}

// recordTagged stores a just-read integer in the metadata maps when its tag
// declares it as the length, offset or count of a later field.
func recordTagged(meta *Metadata, val uint64) {
	if meta.Tags.Has("len") {
		if ref, err := meta.Tags.GetString("len"); err == nil {
			meta.Lens[ref] = val
		}
	}
	if meta.Tags.Has("offset") {
		if ref, err := meta.Tags.GetString("offset"); err == nil {
			meta.Offsets[ref] = val
		}
	}
	if meta.Tags.Has("count") {
		if ref, err := meta.Tags.GetString("count"); err == nil {
			meta.Counts[ref] = val
		}
	}
}
