package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"staywatch/metrics"
)

var ErrPoolClosed = errors.New("browser pool closed")

// Pool hands out a fixed number of browser handles. Acquire blocks
// cooperatively until a handle is free; at no point are more handles out
// than the configured size. A handle whose browser process died is
// replaced on the next acquire instead of being handed out broken.
type Pool struct {
	launch LaunchFunc
	size   int

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	idle   chan *Handle
}

// LaunchFunc starts one browser process. Injected so pool behavior is
// testable without Chromium.
type LaunchFunc func() (Instance, error)

// Instance is one live browser process.
type Instance interface {
	NewPage() (Page, error)
	IsConnected() bool
	Close() error
}

// Handle is a pool slot. Its Instance may be swapped when the underlying
// browser crashes; the slot itself always returns to the pool.
type Handle struct {
	mu   sync.Mutex
	inst Instance
}

// NewPage opens a fresh page on the handle's browser.
func (h *Handle) NewPage() (Page, error) {
	h.mu.Lock()
	inst := h.inst
	h.mu.Unlock()
	if inst == nil {
		return nil, errors.New("browser handle has no live instance")
	}
	return inst.NewPage()
}

func NewPool(size int, launch LaunchFunc) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		launch: launch,
		size:   size,
		done:   make(chan struct{}),
		idle:   make(chan *Handle, size),
	}
}

// Init launches all browser instances eagerly. On partial failure the
// already-launched instances are torn down and the error surfaces.
func (p *Pool) Init() error {
	for i := 0; i < p.size; i++ {
		inst, err := p.launch()
		if err != nil {
			p.Close()
			return fmt.Errorf("launch browser %d/%d: %w", i+1, p.size, err)
		}
		p.idle <- &Handle{inst: inst}
	}
	log.Printf("Browser pool ready (%d instances)", p.size)
	return nil
}

// Acquire blocks until a handle is free, the context is canceled, or the
// pool is closed. A dead instance found on the way out is relaunched
// before the handle is handed over.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case h := <-p.idle:
		if err := p.revive(h); err != nil {
			// Slot goes straight back so capacity is not lost; the
			// caller reports the failure as a check error.
			select {
			case p.idle <- h:
			default:
			}
			return nil, err
		}
		metrics.BrowserPoolInUse.Inc()
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}
}

// Release returns a handle to the pool. A disconnected instance is closed
// here and relaunched lazily on the next acquire.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	h.mu.Lock()
	if h.inst != nil && !h.inst.IsConnected() {
		h.inst.Close()
		h.inst = nil
	}
	inst := h.inst
	h.mu.Unlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		if inst != nil {
			inst.Close()
		}
		metrics.BrowserPoolInUse.Dec()
		return
	}

	select {
	case p.idle <- h:
		metrics.BrowserPoolInUse.Dec()
	default:
		// A full idle channel means every slot is already home, so this
		// release is a duplicate: drop it without touching the gauge.
		log.Println("Browser pool: dropped handle on release, pool already full")
		if inst != nil {
			inst.Close()
		}
	}
}

func (p *Pool) revive(h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inst != nil && h.inst.IsConnected() {
		return nil
	}
	if h.inst != nil {
		h.inst.Close()
		h.inst = nil
		log.Println("Browser pool: replacing dead instance")
	}

	inst, err := p.launch()
	if err != nil {
		return fmt.Errorf("relaunch browser: %w", err)
	}
	h.inst = inst
	return nil
}

// Close terminates every pooled instance and fails pending and future
// acquires with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	for {
		select {
		case h := <-p.idle:
			h.mu.Lock()
			if h.inst != nil {
				h.inst.Close()
				h.inst = nil
			}
			h.mu.Unlock()
		default:
			return
		}
	}
}

// Idle reports how many handles are currently free.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Size is the configured pool size.
func (p *Pool) Size() int {
	return p.size
}
