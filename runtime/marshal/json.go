package marshal

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/satishbabariya/duckql/runtime/types"
)

// encodeJSON serialises v as JSON text. Struct field and map pair order is
// preserved. Temporal and uuid values become their canonical text.
func encodeJSON(v types.Value, path string) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, path); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeJSON(buf *bytes.Buffer, v types.Value, path string) error {
	switch v.Tag() {
	case types.TagNull:
		buf.WriteString("null")
	case types.TagBool:
		buf.WriteString(strconv.FormatBool(v.AsBool()))
	case types.TagInt, types.TagBigInt:
		buf.WriteString(v.AsBigInt().String())
	case types.TagDouble:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return encodeErr(path, types.JSON, v, "non-finite number")
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case types.TagText:
		writeJSONString(buf, v.AsText())
	case types.TagBytes:
		writeJSONString(buf, escapeBlob(v.AsBytes()))
	case types.TagDate:
		writeJSONString(buf, v.AsTime().Format(dateLayout))
	case types.TagTime:
		d, off := v.TimeOfDay()
		s := formatTimeOfDay(d)
		if off != nil {
			s += formatOffset(int(off.Seconds()))
		}
		writeJSONString(buf, s)
	case types.TagTimestamp:
		layout := timestampLayout
		if v.HasOffset() {
			layout += offsetLayout
		}
		writeJSONString(buf, v.AsTime().Format(layout))
	case types.TagInterval:
		writeJSONString(buf, formatInterval(v.AsInterval()))
	case types.TagUUID:
		writeJSONString(buf, v.AsUUID().String())
	case types.TagList:
		buf.WriteByte('[')
		for i, item := range v.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item, indexPath(path, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case types.TagStruct:
		buf.WriteByte('{')
		for i, f := range v.Fields() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, f.Name)
			buf.WriteByte(':')
			if err := writeJSON(buf, f.Value, fieldPath(path, f.Name)); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case types.TagMap:
		buf.WriteByte('{')
		for i, e := range v.Entries() {
			p := keyPath(path, e.Key.String())
			if e.Key.Tag() != types.TagText {
				return encodeErr(p, types.JSON, e.Key, "JSON object keys must be text")
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, e.Key.AsText())
			buf.WriteByte(':')
			if err := writeJSON(buf, e.Value, p); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case types.TagUnion:
		_, payload := v.Union()
		return writeJSON(buf, payload, path)
	default:
		return encodeErr(path, types.JSON, v, "value has no JSON form")
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// decodeJSON parses JSON text into a Value. Objects become structs in
// document order; integral numbers become integers and other numbers
// doubles.
func decodeJSON(text string) (types.Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := readJSON(dec)
	if err != nil {
		return types.Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return types.Value{}, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func readJSON(dec *json.Decoder) (types.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return types.Value{}, err
	}
	switch tok := tok.(type) {
	case nil:
		return types.Null(), nil
	case bool:
		return types.Bool(tok), nil
	case string:
		return types.Text(tok), nil
	case json.Number:
		return jsonNumber(tok)
	case json.Delim:
		switch tok {
		case '[':
			var items []types.Value
			for dec.More() {
				item, err := readJSON(dec)
				if err != nil {
					return types.Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return types.Value{}, err
			}
			return types.List(items...), nil
		case '{':
			var fields []types.FieldValue
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return types.Value{}, err
				}
				name, _ := key.(string)
				val, err := readJSON(dec)
				if err != nil {
					return types.Value{}, err
				}
				fields = append(fields, types.FieldValue{Name: name, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return types.Value{}, err
			}
			return types.StructOf(fields...), nil
		}
	}
	return types.Value{}, errors.New("unexpected JSON token")
}

func jsonNumber(n json.Number) (types.Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return types.Int(i), nil
		}
		if b, ok := new(big.Int).SetString(s, 10); ok {
			return types.BigInt(b), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return types.Value{}, err
	}
	return types.Float(f), nil
}
