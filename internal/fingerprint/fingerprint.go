// Package fingerprint computes the content-derived cache keys the memo
// layer is keyed by. A key is a domain-separated SHA-256 over the rule
// identity and a canonical binary encoding of the resolved input values,
// so structurally equal inputs always produce the same key.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Domain prefix for node keys. The version suffix allows the encoding to
// change without colliding with keys from older sessions.
const domainNode = "crane/node/v1"

// Key is the memoization cache key for one execution node.
type Key string

// Short returns a truncated key for log output.
func (k Key) Short() string {
	if len(k) < 12 {
		return string(k)
	}
	return string(k[:12])
}

// Node computes the key for (rule identity, resolved inputs). Inputs are
// encoded canonically; values that cannot be encoded (functions, channels)
// yield an error rather than an unstable key.
func Node(ruleID string, inputs []any) (Key, error) {
	var buf bytes.Buffer
	appendString(&buf, ruleID)
	appendUvarint(&buf, uint64(len(inputs)))
	for i, in := range inputs {
		if err := encodeValue(&buf, reflect.ValueOf(in)); err != nil {
			return "", fmt.Errorf("fingerprinting input %d of %s: %w", i, ruleID, err)
		}
	}
	return sum(domainNode, buf.Bytes()), nil
}

// Value returns the canonical encoding of a single value. Exposed for
// tests and for callers that need stable content identity outside the
// node-key path.
func Value(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sum computes SHA256(domain + 0x00 + data). The null separator prevents
// boundary ambiguity between domain and payload.
func sum(domain string, data []byte) Key {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Kind tags keep the encoding self-delimiting: every value is tagged, and
// every variable-length payload is length-prefixed.
const (
	tagNil    = 'z'
	tagBool   = 'b'
	tagInt    = 'i'
	tagUint   = 'u'
	tagFloat  = 'f'
	tagString = 's'
	tagBytes  = 'y'
	tagList   = 'l'
	tagMap    = 'm'
	tagStruct = 't'
)

func encodeValue(buf *bytes.Buffer, v reflect.Value) error {
	if !v.IsValid() {
		buf.WriteByte(tagNil)
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		buf.WriteByte(tagBool)
		if v.Bool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteByte(tagInt)
		appendTypeName(buf, v.Type())
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], uint64(v.Int()))
		buf.Write(scratch[:])
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteByte(tagUint)
		appendTypeName(buf, v.Type())
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], v.Uint())
		buf.Write(scratch[:])
	case reflect.Float32, reflect.Float64:
		buf.WriteByte(tagFloat)
		appendTypeName(buf, v.Type())
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(v.Float()))
		buf.Write(scratch[:])
	case reflect.String:
		buf.WriteByte(tagString)
		appendTypeName(buf, v.Type())
		appendString(buf, v.String())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			buf.WriteByte(tagNil)
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf.WriteByte(tagBytes)
			appendUvarint(buf, uint64(v.Len()))
			for i := 0; i < v.Len(); i++ {
				buf.WriteByte(byte(v.Index(i).Uint()))
			}
			return nil
		}
		buf.WriteByte(tagList)
		appendTypeName(buf, v.Type())
		appendUvarint(buf, uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			if err := encodeValue(buf, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		if v.IsNil() {
			buf.WriteByte(tagNil)
			return nil
		}
		return encodeMap(buf, v)
	case reflect.Struct:
		buf.WriteByte(tagStruct)
		appendTypeName(buf, v.Type())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			appendString(buf, t.Field(i).Name)
			if err := encodeValue(buf, v.Field(i)); err != nil {
				return fmt.Errorf("field %s.%s: %w", typeName(t), t.Field(i).Name, err)
			}
		}
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			buf.WriteByte(tagNil)
			return nil
		}
		return encodeValue(buf, v.Elem())
	default:
		return fmt.Errorf("cannot fingerprint value of kind %s (type %s)", v.Kind(), v.Type())
	}
	return nil
}

// encodeMap writes entries sorted by their encoded key bytes so iteration
// order never leaks into the fingerprint.
func encodeMap(buf *bytes.Buffer, v reflect.Value) error {
	type entry struct {
		key []byte
		val []byte
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		var kb, vb bytes.Buffer
		if err := encodeValue(&kb, iter.Key()); err != nil {
			return err
		}
		if err := encodeValue(&vb, iter.Value()); err != nil {
			return err
		}
		entries = append(entries, entry{key: kb.Bytes(), val: vb.Bytes()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	buf.WriteByte(tagMap)
	appendTypeName(buf, v.Type())
	appendUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf.Write(e.key)
		buf.Write(e.val)
	}
	return nil
}

func appendTypeName(buf *bytes.Buffer, t reflect.Type) {
	appendString(buf, typeName(t))
}

func typeName(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func appendString(buf *bytes.Buffer, s string) {
	appendUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func appendUvarint(buf *bytes.Buffer, n uint64) {
	var scratch [binary.MaxVarintLen64]byte
	buf.Write(scratch[:binary.PutUvarint(scratch[:], n)])
}
