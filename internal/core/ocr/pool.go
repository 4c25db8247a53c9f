package ocr

import (
	"context"
)

// Pool hands out recognizers with exclusive checkout: an engine is used by at
// most one goroutine at a time. Pool itself is a Recognizer.
type Pool struct {
	engines chan Recognizer
	size    int
}

// NewPool fills a pool with size engines built by newEngine.
func NewPool(size int, newEngine func() Recognizer) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{engines: make(chan Recognizer, size), size: size}
	for i := 0; i < size; i++ {
		p.engines <- newEngine()
	}
	return p
}

func (p *Pool) Size() int { return p.size }

// Checkout blocks until an engine is free or ctx ends. The caller must hand
// the engine back with Return.
func (p *Pool) Checkout(ctx context.Context) (Recognizer, error) {
	select {
	case e := <-p.engines:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) Return(e Recognizer) {
	p.engines <- e
}

func (p *Pool) Recognize(ctx context.Context, path string) (Result, error) {
	e, err := p.Checkout(ctx)
	if err != nil {
		return Result{}, err
	}
	defer p.Return(e)
	return e.Recognize(ctx, path)
}
