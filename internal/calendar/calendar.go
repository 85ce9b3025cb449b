// Package calendar records which date ranges are committed per rental machine.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/locks"
	"slices"
	"sort"
	"sync"
	"time"
)

var (
	ErrInvalidRange = errors.New("calendar: start must be before end")
	ErrOverlap      = errors.New("calendar: range overlaps an existing block")
	ErrNotBlocked   = errors.New("calendar: range not blocked")
	ErrBusy         = errors.New("calendar: machine locked")
	ErrClosed       = errors.New("calendar: session closed")
)

// Block is one committed range on a machine.
type Block struct {
	Range
	RentalID string `json:"rental_id,omitempty"`
}

type machine struct {
	blocks []Block // sorted by Start, pairwise non-overlapping
}

type Calendar struct {
	locks *locks.Table

	mu       sync.RWMutex
	machines map[string]*machine
}

func New(lockWait time.Duration) *Calendar {
	return &Calendar{locks: locks.NewTable(lockWait), machines: map[string]*machine{}}
}

func (c *Calendar) machine(id string) *machine {
	c.mu.RLock()
	m, ok := c.machines[id]
	c.mu.RUnlock()
	if ok {
		return m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok = c.machines[id]; !ok {
		m = &machine{}
		c.machines[id] = m
	}
	return m
}

// first index whose block ends after t; blocks before it cannot overlap
// anything starting at or after t.
func (m *machine) search(t time.Time) int {
	return sort.Search(len(m.blocks), func(i int) bool { return m.blocks[i].End.After(t) })
}

func (m *machine) free(r Range) bool {
	i := m.search(r.Start)
	return i == len(m.blocks) || !m.blocks[i].Start.Before(r.End)
}

func (m *machine) insert(b Block) error {
	if !m.free(b.Range) {
		return fmt.Errorf("%w: %s", ErrOverlap, b.Range)
	}
	i := sort.Search(len(m.blocks), func(i int) bool { return !m.blocks[i].Start.Before(b.Start) })
	m.blocks = slices.Insert(m.blocks, i, b)
	return nil
}

func (m *machine) remove(r Range) error {
	i := m.search(r.Start)
	if i < len(m.blocks) && m.blocks[i].Start.Equal(r.Start) && m.blocks[i].End.Equal(r.End) {
		m.blocks = slices.Delete(m.blocks, i, i+1)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotBlocked, r)
}

func (m *machine) within(window Range) []Block {
	var out []Block
	for i := m.search(window.Start); i < len(m.blocks) && m.blocks[i].Start.Before(window.End); i++ {
		out = append(out, m.blocks[i])
	}
	return out
}

// Lock takes the machine's lock and returns a session that can check and
// mutate its blocks as one indivisible step. Close must be called.
func (c *Calendar) Lock(ctx context.Context, machineID string) (*Session, error) {
	release, err := c.locks.Acquire(ctx, machineID)
	if errors.Is(err, locks.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, machineID)
	}
	if err != nil {
		return nil, err
	}
	return &Session{m: c.machine(machineID), release: release}, nil
}

func (c *Calendar) CheckAvailable(ctx context.Context, machineID string, r Range) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	s, err := c.Lock(ctx, machineID)
	if err != nil {
		return false, err
	}
	defer s.Close()
	return s.Available(r)
}

// Block reserves r for rentalID, or fails with ErrOverlap.
func (c *Calendar) Block(ctx context.Context, machineID string, r Range, rentalID string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s, err := c.Lock(ctx, machineID)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Block(r, rentalID)
}

func (c *Calendar) Unblock(ctx context.Context, machineID string, r Range) error {
	s, err := c.Lock(ctx, machineID)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Unblock(r)
}

// Blocked lists the blocks intersecting window, in start order.
func (c *Calendar) Blocked(ctx context.Context, machineID string, window Range) ([]Block, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	s, err := c.Lock(ctx, machineID)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.m.within(window), nil
}

// Restore replaces a machine's blocks wholesale. Used at start-up to rebuild
// the calendar from stored rentals.
func (c *Calendar) Restore(ctx context.Context, machineID string, blocks []Block) error {
	s, err := c.Lock(ctx, machineID)
	if err != nil {
		return err
	}
	defer s.Close()

	fresh := &machine{}
	for _, b := range blocks {
		if err := b.Validate(); err != nil {
			return err
		}
		if err := fresh.insert(b); err != nil {
			return fmt.Errorf("restore %s (rental %s): %w", machineID, b.RentalID, err)
		}
	}
	s.m.blocks = fresh.blocks
	return nil
}

// Session is a locked view of one machine.
type Session struct {
	m       *machine
	release func()
	closed  bool
}

func (s *Session) Available(r Range) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	if err := r.Validate(); err != nil {
		return false, err
	}
	return s.m.free(r), nil
}

func (s *Session) Block(r Range, rentalID string) error {
	if s.closed {
		return ErrClosed
	}
	if err := r.Validate(); err != nil {
		return err
	}
	return s.m.insert(Block{Range: r, RentalID: rentalID})
}

func (s *Session) Unblock(r Range) error {
	if s.closed {
		return ErrClosed
	}
	return s.m.remove(r)
}

func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.release()
}
