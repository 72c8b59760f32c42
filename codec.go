package datastore

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	. "github.com/stevegt/goadapt"
)

// Values are stored as canonical CBOR, so equal values always encode
// to equal bytes and every read decodes a fresh copy.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	Ck(err)
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	Ck(err)
}

// marshalValue encodes a value for storage.
func marshalValue(v interface{}) (data []byte, err error) {
	data, err = encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot encode value: %w", err)
	}
	return
}

// unmarshalValue decodes stored data into v, which must be a pointer.
func unmarshalValue(data []byte, v interface{}) (err error) {
	err = decMode.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("cannot decode value: %w", err)
	}
	return
}
