package supervisor

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoSlotAvailable means every bot account is already running a lobby.
var ErrNoSlotAvailable = errors.New("no bot account available")

// Credential is one bot account.
type Credential struct {
	Username string
	Password string
}

// Pool hands out bot accounts. Slots are acquired smallest index first so
// account usage stays predictable across restarts.
type Pool struct {
	mu    sync.Mutex
	creds []Credential
	inUse []bool
	log   *logrus.Logger
}

// NewPool creates a pool over the given accounts.
func NewPool(creds []Credential, log *logrus.Logger) *Pool {
	return &Pool{
		creds: creds,
		inUse: make([]bool, len(creds)),
		log:   log,
	}
}

// Acquire reserves the lowest free slot.
func (p *Pool) Acquire() (int, Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, busy := range p.inUse {
		if busy {
			continue
		}
		p.inUse[i] = true
		p.log.WithFields(logrus.Fields{
			"slot":    i,
			"account": p.creds[i].Username,
		}).Info("Acquired bot slot")
		return i, p.creds[i], nil
	}
	return 0, Credential{}, ErrNoSlotAvailable
}

// Release frees a slot. Releasing a free or out-of-range slot is a no-op.
func (p *Pool) Release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= len(p.inUse) {
		p.log.WithField("slot", slot).Warn("Release of unknown slot ignored")
		return
	}
	if !p.inUse[slot] {
		p.log.WithField("slot", slot).Warn("Release of free slot ignored")
		return
	}
	p.inUse[slot] = false
	p.log.WithField("slot", slot).Info("Released bot slot")
}

// ActiveCount returns how many slots are in use.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, busy := range p.inUse {
		if busy {
			n++
		}
	}
	return n
}

// Size returns the total number of slots.
func (p *Pool) Size() int {
	return len(p.creds)
}
