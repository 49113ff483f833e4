package cache

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Key prefixes. A single URL has several keys in the store:
//
//	count:<url>   = number of times the URL has been requested
//	content:<url> = gob encoded CacheEntry
//	lock:<url>    = held by the process currently fetching the URL
//	failed:<url>  = message of the last failed fetch round, short lived
const (
	countPrefix   = "count:"
	contentPrefix = "content:"
	lockPrefix    = "lock:"
	failedPrefix  = "failed:"
)

func countKey(key string) string   { return countPrefix + key }
func contentKey(key string) string { return contentPrefix + key }
func lockKey(key string) string    { return lockPrefix + key }
func failedKey(key string) string  { return failedPrefix + key }

// CacheEntry is what is held under the content key. ExpiresAt is checked on
// every read as the store's own expiry has only second granularity.
type CacheEntry struct {
	Key         string
	Value       []byte
	ContentType string
	ExpiresAt   time.Time
}

// Fresh reports whether the entry may still be served at the given time
func (ent CacheEntry) Fresh(now time.Time) bool {
	return now.Before(ent.ExpiresAt)
}

func encodeEntry(ent CacheEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(&ent)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (CacheEntry, error) {
	var ent CacheEntry
	dec := gob.NewDecoder(bytes.NewReader(data))
	err := dec.Decode(&ent)
	return ent, err
}
