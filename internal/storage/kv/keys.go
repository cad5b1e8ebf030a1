package kv

import (
	"bytes"
	"encoding/binary"
)

const sep = 0x00

var (
	prefixSession      = []byte("s/")
	prefixUserIndex    = []byte("iu/")
	prefixFile         = []byte("f/")
	prefixFileIndex    = []byte("if/")
	prefixRecord       = []byte("r/")
	prefixPatientIndex = []byte("ip/")
	prefixAudit        = []byte("a/")
	prefixAuditSession = []byte("ias/")
	prefixAuditActor   = []byte("iaa/")

	keyAuditSeq = []byte("seq/audit")
)

func rowKey(prefix []byte, id string) []byte {
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return append(k, id...)
}

// indexPrefix returns prefix/{value}\x00.
func indexPrefix(prefix []byte, value string) []byte {
	k := make([]byte, 0, len(prefix)+len(value)+1)
	k = append(k, prefix...)
	k = append(k, value...)
	return append(k, sep)
}

func indexKey(prefix []byte, value, id string) []byte {
	return append(indexPrefix(prefix, value), id...)
}

func auditKey(id uint64) []byte {
	k := make([]byte, 0, len(prefixAudit)+8)
	k = append(k, prefixAudit...)
	return binary.BigEndian.AppendUint64(k, id)
}

func auditIndexKey(prefix []byte, value string, id uint64) []byte {
	return binary.BigEndian.AppendUint64(indexPrefix(prefix, value), id)
}

// indexedID extracts the id suffix from an index key under p.
func indexedID(key, p []byte) []byte {
	rest, ok := bytes.CutPrefix(key, p)
	if !ok {
		return nil
	}
	return rest
}
