package datadic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON

	schemaEncoding = MsgPack
)

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}

func (enc encodingMethod) Encode(buf []byte, obj any) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		e.SetSortMapKeys(true)
		err := e.Encode(obj)
		msgpack.PutEncoder(e)
		if err != nil {
			return buf, fmt.Errorf("failed to encode %T using MsgPack: %w", obj, err)
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return buf, fmt.Errorf("failed to encode %T to JSON: %w", obj, err)
		}
		return appendRaw(buf, raw), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc encodingMethod) Decode(buf []byte, objPtr any) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		d := msgpack.GetDecoder()
		d.Reset(&r)
		err := d.Decode(objPtr)
		msgpack.PutDecoder(d)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode msgpack into %T", objPtr)
		}
		return nil
	case JSON:
		err := json.Unmarshal(buf, objPtr)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode JSON into %T", objPtr)
		}
		return nil
	default:
		panic("unsupported encoding")
	}
}
