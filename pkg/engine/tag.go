package engine

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/cespare/xxhash/v2"
)

const tagMask = 1<<63 - 1

// issuedTags holds every correlation tag handed out in this process
var issuedTags = struct {
	sync.Mutex
	tags *set.LinkedHashSetINT64
}{tags: set.NewLinkedHashSetINT64()}

// CorrelationTag derives a positive 63-bit tag from the bot id, the start
// time and a salt using xxHash64.
func CorrelationTag(botID string, start time.Time, salt uint32) int64 {
	h := xxhash.New()
	_, _ = h.WriteString(botID)

	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(start.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:], salt)
	_, _ = h.Write(buf[:])

	return int64(h.Sum64() & tagMask)
}

// issueTag returns a tag for the bot that no other engine in the process
// holds, salting the hash until it finds a free value.
func issueTag(botID string, start time.Time) int64 {
	issuedTags.Lock()
	defer issuedTags.Unlock()

	for salt := uint32(0); ; salt++ {
		tag := CorrelationTag(botID, start, salt)
		if tag != 0 && !tagIssued(tag) {
			issuedTags.tags.Add(tag)
			return tag
		}
	}
}

// tagIssued walks the whole set; the caller holds the lock
func tagIssued(tag int64) bool {
	var found bool
	for issued := range issuedTags.tags.Iter() {
		if issued == tag {
			found = true
		}
	}
	return found
}
