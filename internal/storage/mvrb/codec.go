package mvrb

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// Node record layout:
//
//	0      format version
//	1      color (0 red, 1 black)
//	2-5    slot count
//	6-13   parent RID
//	14-21  left RID
//	22-29  right RID
//	30-    CBOR body {"k": keys, "v": values}
const (
	nodeFormatVersion = 1
	nodeHeaderSize    = 30
)

type nodeBody[K, V any] struct {
	Keys   []K `cbor:"k"`
	Values []V `cbor:"v"`
}

type codec[K, V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCodec[K, V any]() (codec[K, V], error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return codec[K, V]{}, errors.Wrap(err, "cbor encoder")
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return codec[K, V]{}, errors.Wrap(err, "cbor decoder")
	}
	return codec[K, V]{enc: enc, dec: dec}, nil
}

func (c codec[K, V]) encode(n *node[K, V]) ([]byte, error) {
	body, err := c.enc.Marshal(nodeBody[K, V]{Keys: n.keys, Values: n.values})
	if err != nil {
		return nil, errors.Wrapf(err, "encode node %s", n.rid)
	}
	buf := make([]byte, nodeHeaderSize+len(body))
	buf[0] = nodeFormatVersion
	if n.color == black {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(n.keys)))
	binary.LittleEndian.PutUint64(buf[6:14], uint64(n.parent.rid))
	binary.LittleEndian.PutUint64(buf[14:22], uint64(n.left.rid))
	binary.LittleEndian.PutUint64(buf[22:30], uint64(n.right.rid))
	copy(buf[nodeHeaderSize:], body)
	return buf, nil
}

func (c codec[K, V]) decode(rid storage.RID, data []byte) (*node[K, V], error) {
	if len(data) < nodeHeaderSize {
		return nil, corrupt(rid, "record too short (%d bytes)", len(data))
	}
	if data[0] != nodeFormatVersion {
		return nil, corrupt(rid, "unknown node format %d", data[0])
	}
	count := int(binary.LittleEndian.Uint32(data[2:6]))

	var body nodeBody[K, V]
	if err := c.dec.Unmarshal(data[nodeHeaderSize:], &body); err != nil {
		return nil, corrupt(rid, "decode body: %v", err)
	}
	if len(body.Keys) != count || len(body.Values) != count {
		return nil, corrupt(rid, "slot count %d, found %d keys and %d values",
			count, len(body.Keys), len(body.Values))
	}
	if count == 0 {
		return nil, corrupt(rid, "empty node")
	}

	n := newNode(body.Keys, body.Values)
	n.rid = rid
	if data[1] == 1 {
		n.color = black
	}
	n.parent.rid = storage.RID(binary.LittleEndian.Uint64(data[6:14]))
	n.left.rid = storage.RID(binary.LittleEndian.Uint64(data[14:22]))
	n.right.rid = storage.RID(binary.LittleEndian.Uint64(data[22:30]))
	return n, nil
}
