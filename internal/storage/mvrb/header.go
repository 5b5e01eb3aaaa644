package mvrb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

// Tree header record layout:
//
//	0-3    magic "MVRT"
//	4      format version
//	5-20   tree id
//	21-28  root RID
//	29-36  entry count
//	37-40  page capacity
//	41-48  xxhash64 of bytes 0-40
const (
	treeMagic         = "MVRT"
	treeFormatVersion = 1
	treeHeaderSize    = 49
)

type treeHeader struct {
	id           uuid.UUID
	root         storage.RID
	size         uint64
	pageCapacity uint32
}

func (h treeHeader) marshal() []byte {
	buf := make([]byte, treeHeaderSize)
	copy(buf[0:4], treeMagic)
	buf[4] = treeFormatVersion
	copy(buf[5:21], h.id[:])
	binary.LittleEndian.PutUint64(buf[21:29], uint64(h.root))
	binary.LittleEndian.PutUint64(buf[29:37], h.size)
	binary.LittleEndian.PutUint32(buf[37:41], h.pageCapacity)
	binary.LittleEndian.PutUint64(buf[41:49], xxhash.Sum64(buf[:41]))
	return buf
}

func unmarshalTreeHeader(rid storage.RID, buf []byte) (treeHeader, error) {
	var h treeHeader
	if len(buf) < treeHeaderSize {
		return h, corrupt(rid, "tree header too short (%d bytes)", len(buf))
	}
	if string(buf[0:4]) != treeMagic {
		return h, corrupt(rid, "not a tree header")
	}
	if buf[4] != treeFormatVersion {
		return h, corrupt(rid, "unknown tree header format %d", buf[4])
	}
	if binary.LittleEndian.Uint64(buf[41:49]) != xxhash.Sum64(buf[:41]) {
		return h, corrupt(rid, "tree header checksum mismatch")
	}
	copy(h.id[:], buf[5:21])
	h.root = storage.RID(binary.LittleEndian.Uint64(buf[21:29]))
	h.size = binary.LittleEndian.Uint64(buf[29:37])
	h.pageCapacity = binary.LittleEndian.Uint32(buf[37:41])
	return h, nil
}
