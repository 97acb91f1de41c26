package jrpc2

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const specVersion = "2.0"

const ParseError = -32700
const InvalidRequest = -32600

// ids for JSON-RPC v2 can be a string, an integer or null. bitcoind
// echoes whatever we send, so we only ever produce integer ids, but
// keep both representations for decoding.
type Id struct {
	intVal int64
	strVal string
}

func (id Id) MarshalJSON() ([]byte, error) {
	if id.strVal != "" {
		return json.Marshal(id.strVal)
	}
	return json.Marshal(id.intVal)
}

func (id *Id) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return errors.New("no id data provided")
	}
	switch rune(data[0]) {
	case '"':
		if data[len(data)-1] != '"' {
			return errors.New("unterminated string id")
		}
		id.strVal = string(data[1 : len(data)-1])
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		val, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id value: %s", string(data))
		}
		id.intVal = val
		return nil
	default:
		// objects and arrays are not allowed as ids
		return fmt.Errorf("invalid id value: %s", string(data))
	}
}

func (id Id) String() string {
	if id.strVal != "" {
		return id.strVal
	}
	return strconv.FormatInt(id.intVal, 10)
}

func NewIdAsInt(val int64) *Id {
	return &Id{
		intVal: val,
	}
}

// Method is a callable RPC method. The parameters are the exported
// fields of the implementing struct, named by their json tags.
type Method interface {
	Name() string
}

type Request struct {
	Id     *Id    `json:"id,omitempty"`
	Method Method `json:"-"`
}

func (r *Request) MarshalJSON() ([]byte, error) {
	type Alias Request
	return json.Marshal(&struct {
		Version string                 `json:"jsonrpc"`
		Name    string                 `json:"method"`
		Params  map[string]interface{} `json:"params"`
		*Alias
	}{
		Alias:   (*Alias)(r),
		Params:  GetNamedParams(r.Method),
		Version: specVersion,
		Name:    r.Method.Name(),
	})
}

// RawResponse is what the client gets back from an RPC call. The result
// is left as raw json so the caller can decode it into the typed result
// for the method it sent.
type RawResponse struct {
	Id    *Id             `json:"id"`
	Raw   json.RawMessage `json:"-"`
	Error *RpcError       `json:"error,omitempty"`
}

type RpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RpcError) ParseData(into interface{}) error {
	return json.Unmarshal(e.Data, into)
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%d:%s", e.Code, e.Message)
}

func (r *RawResponse) UnmarshalJSON(data []byte) error {
	type Alias RawResponse
	raw := &struct {
		Version string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	r.Raw = raw.Result

	if len(r.Raw) == 0 && r.Error == nil {
		return errors.New("response carries neither a result nor an error")
	}
	return nil
}

// GetNamedParams maps the exported fields of a method onto named
// parameters, honoring json tags including omitempty.
func GetNamedParams(target Method) map[string]interface{} {
	params := make(map[string]interface{})
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	typeOf := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fType := typeOf.Field(i)
		if !field.CanInterface() {
			continue
		}
		var name string
		tag, ok := fType.Tag.Lookup("json")
		if ok {
			var omit bool
			name, omit = parseTag(tag)
			if omit && isZero(field.Interface()) {
				continue
			}
			if name == "" {
				name = strings.ToLower(fType.Name)
			}
		} else {
			name = strings.ToLower(fType.Name)
		}
		params[name] = field.Interface()
	}
	return params
}

func parseTag(tag string) (name string, omitempty bool) {
	if tag == "" || tag == "-" {
		return "", false
	}
	for i, field := range strings.Split(tag, ",") {
		if field == "omitempty" {
			omitempty = true
		}
		if i == 0 && field != "omitempty" {
			name = field
		}
	}
	return name, omitempty
}

func isZero(x interface{}) bool {
	return reflect.DeepEqual(x, reflect.Zero(reflect.TypeOf(x)).Interface())
}
