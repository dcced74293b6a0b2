package tvio

import (
	"strings"
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// keySep cannot appear in a topic nor in a UUID.
const keySep = "\x00"

// peerDirectory is the eventually consistent view a handle has of the
// remote handles sharing its topics. It is fed by announcements and
// withdrawals, and forgets peers that stay silent for too long.
//
// Records are keyed by topic then peer, so the peers of a topic are a
// single prefix walk away and come out sorted. Readers walk a snapshot of
// the tree and never hold the lock during the walk.
type peerDirectory struct {
	lk sync.RWMutex
	d  *iradix.Tree

	// number of topics each peer is live on.
	peers map[string]int
}

type peerRecord struct {
	peer     string
	lastSeen time.Time
}

func newPeerDirectory() *peerDirectory {
	return &peerDirectory{
		d:     iradix.New(),
		peers: make(map[string]int),
	}
}

func directoryKey(topic, peer string) []byte {
	return []byte(topic + keySep + peer)
}

// record notes that peer is alive on topic. fresh is true if the peer was
// not known on that topic, joined if it was not known at all.
func (dir *peerDirectory) record(topic, peer string, now time.Time) (fresh, joined bool) {
	dir.lk.Lock()
	defer dir.lk.Unlock()

	d, _, updated := dir.d.Insert(directoryKey(topic, peer), peerRecord{peer: peer, lastSeen: now})
	dir.d = d
	if updated {
		return false, false
	}
	dir.peers[peer]++
	return true, dir.peers[peer] == 1
}

// forget drops peer from topic. left is true when the peer is not live on
// any topic anymore.
func (dir *peerDirectory) forget(topic, peer string) (removed, left bool) {
	dir.lk.Lock()
	defer dir.lk.Unlock()

	d, _, has := dir.d.Delete(directoryKey(topic, peer))
	if !has {
		return false, false
	}
	dir.d = d
	return true, dir.release(peer)
}

// expire drops every record not refreshed since deadline and returns the
// peers that are gone from every topic.
func (dir *peerDirectory) expire(deadline time.Time) (left []string) {
	dir.lk.Lock()
	defer dir.lk.Unlock()

	txn := dir.d.Txn()
	dir.d.Root().Walk(func(key []byte, v interface{}) bool {
		rec := v.(peerRecord)
		if rec.lastSeen.Before(deadline) {
			txn.Delete(key)
			if dir.release(rec.peer) {
				left = append(left, rec.peer)
			}
		}
		return false
	})
	dir.d = txn.Commit()
	return left
}

func (dir *peerDirectory) release(peer string) bool {
	dir.peers[peer]--
	if dir.peers[peer] <= 0 {
		delete(dir.peers, peer)
		return true
	}
	return false
}

// onTopic returns the live peers of topic, sorted.
func (dir *peerDirectory) onTopic(topic string) (peers []string) {
	dir.lk.RLock()
	snapshot := dir.d
	dir.lk.RUnlock()

	prefix := topic + keySep
	snapshot.Root().WalkPrefix([]byte(prefix), func(key []byte, _ interface{}) bool {
		peers = append(peers, strings.TrimPrefix(string(key), prefix))
		return false
	})
	return peers
}

func (dir *peerDirectory) has(topic, peer string) bool {
	dir.lk.RLock()
	defer dir.lk.RUnlock()
	_, has := dir.d.Get(directoryKey(topic, peer))
	return has
}

// count returns the number of distinct live peers.
func (dir *peerDirectory) count() int {
	dir.lk.RLock()
	defer dir.lk.RUnlock()
	return len(dir.peers)
}
