package core

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// SignInput is everything the request signature covers.
type SignInput struct {
	Path      string
	Query     map[string]any
	Body      any
	Multipart bool
}

// Sign returns the lowercase hex HMAC-SHA256 signature for input. The result
// depends only on its arguments.
func Sign(secret string, input SignInput) (string, error) {
	if secret == "" {
		return "", NewError(ErrorSigningInputInvalid, "tiktokshop: signing secret is required", nil)
	}
	base, err := CanonicalString(input)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(secret + base + secret))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// CanonicalString builds the unwrapped base string: path, then sorted
// key/value pairs, then the compact JSON body for non-multipart calls.
func CanonicalString(input SignInput) (string, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return "", NewError(ErrorSigningInputInvalid, "tiktokshop: signing path is required", nil)
	}

	values, err := signableParams(input.Query)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(path)
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString(values[key])
	}

	if !input.Multipart {
		body, err := EncodeBody(input.Body)
		if err != nil {
			return "", err
		}
		builder.Write(body)
	}
	return builder.String(), nil
}

func signableParams(query map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(query))
	for key, value := range query {
		if key == "sign" || key == "access_token" {
			continue
		}
		formatted, ok, err := FormatQueryValue(value)
		if err != nil {
			return nil, WrapError(err, ErrorSigningInputInvalid, "tiktokshop: invalid query parameter", map[string]any{
				"param": key,
			})
		}
		if !ok {
			continue
		}
		out[key] = formatted
	}
	return out, nil
}

// FormatQueryValue renders a query value the way it is both signed and sent.
// ok is false for nil and empty values, which are omitted. Slices, arrays
// and maps are encoded as compact JSON.
func FormatQueryValue(value any) (formatted string, ok bool, err error) {
	switch typed := value.(type) {
	case nil:
		return "", false, nil
	case string:
		return typed, typed != "", nil
	case []byte:
		return string(typed), len(typed) > 0, nil
	case bool:
		return strconv.FormatBool(typed), true, nil
	case int:
		return strconv.Itoa(typed), true, nil
	case int32:
		return strconv.FormatInt(int64(typed), 10), true, nil
	case int64:
		return strconv.FormatInt(typed, 10), true, nil
	case uint:
		return strconv.FormatUint(uint64(typed), 10), true, nil
	case uint64:
		return strconv.FormatUint(typed, 10), true, nil
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), true, nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true, nil
	case json.Number:
		return typed.String(), typed != "", nil
	case fmt.Stringer:
		if isNilValue(value) {
			return "", false, nil
		}
		text := typed.String()
		return text, text != "", nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", false, nil
		}
		return FormatQueryValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array, reflect.Map:
		if rv.Kind() != reflect.Array && rv.IsNil() {
			return "", false, nil
		}
		encoded, err := encodeCompactJSON(value)
		if err != nil {
			return "", false, err
		}
		return string(encoded), true, nil
	case reflect.String:
		text := rv.String()
		return text, text != "", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true, nil
	}
	return "", false, fmt.Errorf("unsupported query value type %T", value)
}

// EncodeBody serializes a request body to compact JSON with HTML, unicode
// and slashes left unescaped. Nil and empty bodies encode to nil.
func EncodeBody(body any) ([]byte, error) {
	if body == nil || isNilValue(body) {
		return nil, nil
	}
	var encoded []byte
	switch typed := body.(type) {
	case json.RawMessage:
		encoded = []byte(typed)
	case []byte:
		encoded = typed
	case string:
		encoded = []byte(typed)
	default:
		out, err := encodeCompactJSON(body)
		if err != nil {
			return nil, WrapError(err, ErrorSigningInputInvalid, "tiktokshop: encode request body", nil)
		}
		return normalizeEmptyBody(out), nil
	}

	trimmed := bytes.TrimSpace(encoded)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, trimmed); err != nil {
		return nil, WrapError(err, ErrorSigningInputInvalid, "tiktokshop: request body is not valid json", nil)
	}
	return normalizeEmptyBody(compacted.Bytes()), nil
}

func encodeCompactJSON(value any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

func normalizeEmptyBody(encoded []byte) []byte {
	switch string(encoded) {
	case "", "null", "{}", "[]", `""`:
		return nil
	}
	return encoded
}

func isNilValue(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
