// Package codec 结构化值与存储字符串之间的往返编码
//
// 值被包在信封 {"v":<json>,"t":{<pointer>:<type>}} 中，t 记录 JSON 无法
// 原样表达的叶子（时间、大整数），使解码到 any 时也能还原类型。
package codec

import (
	"bytes"
	"encoding/json"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	coreerrors "folio-core/internal/core/errors"
)

// 类型标签
const (
	TagDate   = "date"
	TagBigInt = "bigint"
)

// Codec 编解码接口
type Codec interface {
	Marshal(v any) (string, error)
	Unmarshal(s string, v any) error
}

type envelope struct {
	V json.RawMessage   `json:"v"`
	T map[string]string `json:"t,omitempty"`
}

// JSON 基于 encoding/json 的信封编码
type JSON struct{}

// Default 默认编码器
var Default Codec = JSON{}

// Marshal 编码
func (JSON) Marshal(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeSerializationError, "encode value")
	}
	tags := make(map[string]string)
	collectTags(reflect.ValueOf(v), "", tags)

	out, err := json.Marshal(envelope{V: raw, T: tags})
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeSerializationError, "encode envelope")
	}
	return string(out), nil
}

// Unmarshal 解码；不带信封的裸 JSON 也接受
func (JSON) Unmarshal(s string, v any) error {
	payload, tags := []byte(s), map[string]string(nil)

	var env map[string]json.RawMessage
	if err := json.Unmarshal(payload, &env); err == nil {
		if raw, ok := env["v"]; ok && isEnvelope(env) {
			payload = raw
			if t, ok := env["t"]; ok {
				if err := json.Unmarshal(t, &tags); err != nil {
					return coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode type tags")
				}
			}
		}
	}

	if target, ok := v.(*any); ok {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		var tree any
		if err := dec.Decode(&tree); err != nil {
			return coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode value")
		}
		restored, err := restore(tree, "", tags)
		if err != nil {
			return err
		}
		*target = restored
		return nil
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode value")
	}
	return nil
}

func isEnvelope(m map[string]json.RawMessage) bool {
	for k := range m {
		if k != "v" && k != "t" {
			return false
		}
	}
	return true
}

// Encode 泛型编码
func Encode[T any](c Codec, v T) (string, error) {
	if c == nil {
		c = Default
	}
	return c.Marshal(v)
}

// Decode 泛型解码
func Decode[T any](c Codec, s string) (T, error) {
	var out T
	if c == nil {
		c = Default
	}
	err := c.Unmarshal(s, &out)
	return out, err
}

// ============================================================================
// 标签收集
// ============================================================================

var (
	timeType   = reflect.TypeOf(time.Time{})
	bigIntType = reflect.TypeOf(big.Int{})
	marshaler  = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

func collectTags(rv reflect.Value, path string, tags map[string]string) {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return
		}
		if rv.Kind() == reflect.Pointer && rv.Type().Elem() == bigIntType {
			tags[path] = TagBigInt
			return
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return
	}

	switch {
	case rv.Type() == timeType:
		tags[path] = TagDate
		return
	case rv.Type() == bigIntType:
		tags[path] = TagBigInt
		return
	case rv.Type().Implements(marshaler):
		// 自定义编码的类型无法预知其形状
		return
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return
		}
		iter := rv.MapRange()
		for iter.Next() {
			collectTags(iter.Value(), path+"/"+escape(iter.Key().String()), tags)
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return
		}
		for i := 0; i < rv.Len(); i++ {
			collectTags(rv.Index(i), path+"/"+strconv.Itoa(i), tags)
		}
	case reflect.Struct:
		collectStruct(rv, path, tags)
	}
}

func collectStruct(rv reflect.Value, path string, tags map[string]string) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() && !field.Anonymous {
			continue
		}
		name, skip := jsonName(field)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if field.Anonymous && name == "" {
			for fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					break
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct && fv.Type() != timeType {
				collectStruct(fv, path, tags)
				continue
			}
		}
		if name == "" {
			name = field.Name
		}
		collectTags(fv, path+"/"+escape(name), tags)
	}
}

func jsonName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}

// escape JSON Pointer 转义
func escape(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

// ============================================================================
// 解码还原
// ============================================================================

func restore(node any, path string, tags map[string]string) (any, error) {
	if tag, ok := tags[path]; ok {
		return restoreTagged(node, tag, path)
	}

	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			r, err := restore(v, path+"/"+escape(k), tags)
			if err != nil {
				return nil, err
			}
			n[k] = r
		}
		return n, nil
	case []any:
		for i, v := range n {
			r, err := restore(v, path+"/"+strconv.Itoa(i), tags)
			if err != nil {
				return nil, err
			}
			n[i] = r
		}
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeSerializationError, "number at %q", path)
		}
		return f, nil
	default:
		return node, nil
	}
}

func restoreTagged(node any, tag, path string) (any, error) {
	switch tag {
	case TagDate:
		s, ok := node.(string)
		if !ok {
			return nil, coreerrors.Newf(coreerrors.CodeSerializationError, "date at %q is not a string", path)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeSerializationError, "date at %q", path)
		}
		return t, nil
	case TagBigInt:
		var text string
		switch n := node.(type) {
		case json.Number:
			text = n.String()
		case string:
			text = n
		default:
			return nil, coreerrors.Newf(coreerrors.CodeSerializationError, "bigint at %q has type %T", path, node)
		}
		b, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, coreerrors.Newf(coreerrors.CodeSerializationError, "bigint at %q: %q", path, text)
		}
		return b, nil
	default:
		return node, nil
	}
}
