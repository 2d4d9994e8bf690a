//go:build linux && giouring

// Package ring's giouring backend talks to the kernel through
// pawelgaczynski/giouring, a Go port of liburing. This is the
// preferred backend on any Linux build tagged `giouring`.
package ring

import (
	"fmt"

	"github.com/pawelgaczynski/giouring"
)

// giouRing wraps a *giouring.Ring to satisfy the Ring interface.
type giouRing struct {
	ring *giouring.Ring
}

// New creates the giouring-backed ring. Selected by build tag over
// the raw-syscall fallback whenever the giouring tag is present.
func New(cfg Config) (Ring, error) {
	r, err := giouring.CreateRing(cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("ring: giouring.CreateRing: %w", err)
	}
	return &giouRing{ring: r}, nil
}

func (g *giouRing) PrepareSQE(e Entry) error {
	sqe := g.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}
	switch e.Op {
	case OpRead:
		sqe.PrepRead(int(e.Fd), e.Addr, e.Len, e.Offset)
	case OpWrite:
		sqe.PrepWrite(int(e.Fd), e.Addr, e.Len, e.Offset)
	case OpAccept:
		sqe.PrepAccept(int(e.Fd), e.Addr, e.Addr2, 0)
	case OpFsync:
		sqe.PrepFsync(int(e.Fd), 0)
	case OpReadv:
		sqe.PrepReadv(int(e.Fd), e.Addr, uint32(e.Len), e.Offset)
	case OpWritev:
		sqe.PrepWritev(int(e.Fd), e.Addr, uint32(e.Len), e.Offset)
	default:
		return fmt.Errorf("ring: unknown op %d", e.Op)
	}
	sqe.UserData = e.UserData
	return nil
}

func (g *giouRing) Submit() (uint32, error) {
	n, err := g.ring.Submit()
	if err != nil {
		return 0, fmt.Errorf("ring: submit: %w", err)
	}
	return uint32(n), nil
}

func (g *giouRing) SubmitAndWait(minComplete uint32) (uint32, error) {
	n, err := g.ring.SubmitAndWaitCQEvents(minComplete)
	if err != nil {
		return 0, fmt.Errorf("ring: submit_and_wait: %w", err)
	}
	return uint32(n), nil
}

func (g *giouRing) PeekCQE() (Completion, bool) {
	cqe, err := g.ring.PeekCQE()
	if err != nil || cqe == nil {
		return Completion{}, false
	}
	c := Completion{UserData: cqe.UserData, Res: cqe.Res, Flags: cqe.Flags}
	g.ring.CQESeen(cqe)
	return c, true
}

func (g *giouRing) Close() error {
	g.ring.QueueExit()
	return nil
}
