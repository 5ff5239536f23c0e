// Package crypt は暗号エンジンのプールと多層暗号を提供する。
package crypt

import (
	"errors"
	"fmt"
	"sync"

	"secure-channel-service/internal/domain"
)

// PoolStats はプールの状態を表す。
type PoolStats struct {
	Available int
	InUse     int
}

// enginePool は生成コストの高いエンジン本体を貸し出す。
// available と inUse は互いに素で、ロックは集合操作の間だけ保持する。
// 貸し出しごとにリース番号を振り、番号の一致しない返却は無視する。
type enginePool[C comparable] struct {
	name      string
	mu        sync.Mutex
	available []C
	inUse     map[C]uint64
	nextLease uint64
	factory   func() (C, error)
	scrub     func(C)
}

func newEnginePool[C comparable](name string, factory func() (C, error), scrub func(C)) *enginePool[C] {
	return &enginePool[C]{
		name:    name,
		inUse:   make(map[C]uint64),
		factory: factory,
		scrub:   scrub,
	}
}

func (p *enginePool[C]) construct() (C, error) {
	c, err := p.factory()
	if err != nil {
		var zero C
		return zero, fmt.Errorf("%w: %s engine: %v", domain.ErrEngineConstructionFailed, p.name, err)
	}
	metricEngineConstructed.WithLabelValues(p.name).Inc()
	return c, nil
}

// checkout はロック保持中に呼び、cを貸し出し中にしてリース番号を返す。
func (p *enginePool[C]) checkout(c C) uint64 {
	p.nextLease++
	p.inUse[c] = p.nextLease
	return p.nextLease
}

func (p *enginePool[C]) acquire() (C, uint64, error) {
	p.mu.Lock()
	if n := len(p.available); n > 0 {
		c := p.available[n-1]
		var zero C
		p.available[n-1] = zero
		p.available = p.available[:n-1]
		lease := p.checkout(c)
		p.mu.Unlock()
		metricPoolAvailable.WithLabelValues(p.name).Dec()
		metricPoolInUse.WithLabelValues(p.name).Inc()
		return c, lease, nil
	}
	p.mu.Unlock()

	// 空きがなければロック外で新規生成する（上限なし）
	c, err := p.construct()
	if err != nil {
		return c, 0, err
	}

	p.mu.Lock()
	lease := p.checkout(c)
	p.mu.Unlock()
	metricPoolInUse.WithLabelValues(p.name).Inc()
	return c, lease, nil
}

// release はリース番号が一致する場合だけcを消去して空きに戻し、trueを返す。
func (p *enginePool[C]) release(c C, lease uint64) bool {
	p.mu.Lock()
	if current, ok := p.inUse[c]; !ok || current != lease {
		p.mu.Unlock()
		return false
	}
	delete(p.inUse, c)
	p.mu.Unlock()
	metricPoolInUse.WithLabelValues(p.name).Dec()

	p.scrub(c)

	p.mu.Lock()
	p.available = append(p.available, c)
	p.mu.Unlock()
	metricPoolAvailable.WithLabelValues(p.name).Inc()
	return true
}

func (p *enginePool[C]) warm(n int) error {
	for i := 0; i < n; i++ {
		c, err := p.construct()
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.available = append(p.available, c)
		p.mu.Unlock()
		metricPoolAvailable.WithLabelValues(p.name).Inc()
	}
	return nil
}

func (p *enginePool[C]) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Available: len(p.available), InUse: len(p.inUse)}
}

// EnginePool は非対称・対称の2種類のエンジンプールを束ねる。
// アプリケーションの起動時に1つ生成し、必要なコンポーネントへ渡す。
type EnginePool struct {
	asym *enginePool[*asymmetricCore]
	sym  *enginePool[*symmetricCore]
}

// PoolOption はEnginePoolの生成オプション。
type PoolOption func(*EnginePool)

var errNilEngine = errors.New("factory returned nil engine")

// WithAsymmetricFactory は非対称エンジンの生成関数を差し替える。
func WithAsymmetricFactory(f func() (*AsymmetricEngine, error)) PoolOption {
	return func(p *EnginePool) {
		p.asym.factory = func() (*asymmetricCore, error) {
			e, err := f()
			if err != nil {
				return nil, err
			}
			if e == nil || e.core == nil {
				return nil, errNilEngine
			}
			return e.core, nil
		}
	}
}

// WithSymmetricFactory は対称エンジンの生成関数を差し替える。
func WithSymmetricFactory(f func() (*SymmetricEngine, error)) PoolOption {
	return func(p *EnginePool) {
		p.sym.factory = func() (*symmetricCore, error) {
			e, err := f()
			if err != nil {
				return nil, err
			}
			if e == nil || e.core == nil {
				return nil, errNilEngine
			}
			return e.core, nil
		}
	}
}

// NewEnginePool は空のEnginePoolを生成する。
func NewEnginePool(opts ...PoolOption) *EnginePool {
	p := &EnginePool{
		asym: newEnginePool[*asymmetricCore](poolAsymmetric, nil, (*asymmetricCore).scrub),
		sym:  newEnginePool[*symmetricCore](poolSymmetric, nil, (*symmetricCore).scrub),
	}
	WithAsymmetricFactory(NewAsymmetricEngine)(p)
	WithSymmetricFactory(NewSymmetricEngine)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Warm は起動時にアイドル状態のエンジンを事前生成する。
func (p *EnginePool) Warm(asymmetric, symmetric int) error {
	if err := p.asym.warm(asymmetric); err != nil {
		return err
	}
	return p.sym.warm(symmetric)
}

// AcquireAsymmetric は公開鍵ブロブをインポートしたエンジンを貸し出す。
// ブロブは PublicKeyBlobSize バイトちょうどでなければならない。
func (p *EnginePool) AcquireAsymmetric(blob []byte) (*AsymmetricEngine, error) {
	if len(blob) != PublicKeyBlobSize {
		return nil, fmt.Errorf("%w: public key blob must be %d bytes, got %d", domain.ErrInvalidKeyEncoding, PublicKeyBlobSize, len(blob))
	}
	c, lease, err := p.asym.acquire()
	if err != nil {
		return nil, err
	}
	if err := c.importKey(blob); err != nil {
		p.asym.release(c, lease)
		return nil, err
	}
	return &AsymmetricEngine{core: c, lease: lease}, nil
}

// ReleaseAsymmetric はインポート済みの鍵を消去してからエンジンを返却する。
// 返却済みのハンドルや、このプールが貸し出していないハンドルは無視する。
func (p *EnginePool) ReleaseAsymmetric(e *AsymmetricEngine) {
	if e == nil || e.core == nil {
		return
	}
	if p.asym.release(e.core, e.lease) {
		e.core = nil
	}
}

// AcquireSymmetric は対称エンジンを貸し出す。
func (p *EnginePool) AcquireSymmetric() (*SymmetricEngine, error) {
	c, lease, err := p.sym.acquire()
	if err != nil {
		return nil, err
	}
	return &SymmetricEngine{core: c, lease: lease}, nil
}

// ReleaseSymmetric は対称エンジンを返却する。
func (p *EnginePool) ReleaseSymmetric(e *SymmetricEngine) {
	if e == nil || e.core == nil {
		return
	}
	if p.sym.release(e.core, e.lease) {
		e.core = nil
	}
}

// AsymmetricStats は非対称プールの状態を返す。
func (p *EnginePool) AsymmetricStats() PoolStats {
	return p.asym.stats()
}

// SymmetricStats は対称プールの状態を返す。
func (p *EnginePool) SymmetricStats() PoolStats {
	return p.sym.stats()
}
