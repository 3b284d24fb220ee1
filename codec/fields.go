package codec

import (
	"errors"
	"reflect"
)

var ErrNotStructPointer = errors.New("codec: value must be a non-nil pointer to a struct")

// SealStruct seals every settable string field of the struct v points to.
// Fields tagged `codec:"-"` are left alone.
func (c *Codec) SealStruct(v interface{}) error {
	return eachString(v, c.Seal)
}

// OpenStruct is the inverse of SealStruct. Fields that do not decrypt keep
// their value.
func (c *Codec) OpenStruct(v interface{}) error {
	return eachString(v, func(s string) (string, error) {
		return c.Open(s), nil
	})
}

// SealMap returns a copy of m with every string value sealed.
func (c *Codec) SealMap(m map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}

		sealed, err := c.Seal(s)
		if err != nil {
			return nil, err
		}
		out[k] = sealed
	}
	return out, nil
}

// OpenMap returns a copy of m with every string value opened.
func (c *Codec) OpenMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = c.Open(s)
			continue
		}
		out[k] = v
	}
	return out
}

func eachString(v interface{}, fn func(string) (string, error)) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPointer
	}

	rv = rv.Elem()
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if f.Kind() != reflect.String || !f.CanSet() || rt.Field(i).Tag.Get("codec") == "-" {
			continue
		}

		out, err := fn(f.String())
		if err != nil {
			return err
		}
		f.SetString(out)
	}
	return nil
}
