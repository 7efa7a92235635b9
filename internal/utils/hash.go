package utils

import "hash/fnv"

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// AdvisoryLockID maps a lock key onto the signed 64-bit space Postgres advisory locks use.
func AdvisoryLockID(key string) int64 {
	return int64(HashStringToUint64(key))
}
