// Package offsetpage 实现按 offset 翻页的简单列表（用户目录、消息搜索、附件）。
//
// 与 paginator 不同，这里没有推送事件归并，只维护 offset 计数和一个在途标志：
// 每次 LoadMore 以当前 offset 请求下一页，返回条数少于 limit 时认为已经到底。
package offsetpage

import (
	"context"
	"log"
	"sync"

	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/reconcile"
)

// DefaultLimit 是每页条数。
const DefaultLimit = 20

// QueryFunc 是后端的 offset 分页查询。
type QueryFunc[T any] func(ctx context.Context, q model.OffsetQuery) ([]T, error)

// Options 是 Pager 的可选参数。
type Options struct {
	Limit   int
	Logger  *log.Logger
	Metrics *metrics.Collectors
}

// Pager 是一个 offset 分页列表。并发调用是安全的，同一时刻最多一个请求在途。
type Pager[T any] struct {
	name    string
	query   QueryFunc[T]
	keyOf   func(T) string
	base    model.OffsetQuery
	limit   int
	logger  *log.Logger
	metrics *metrics.Collectors

	mu      sync.Mutex
	offset  int
	loading bool
	hasMore bool
	results []T
	// gen 在 Reset 时递增，旧请求的响应会被丢弃。
	gen uint64
}

// New 创建 Pager。base 中的 Offset/Limit 会被忽略。
func New[T any](name string, query QueryFunc[T], keyOf func(T) string, base model.OffsetQuery, opts Options) *Pager[T] {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pager[T]{
		name:    name,
		query:   query,
		keyOf:   keyOf,
		base:    base,
		limit:   limit,
		logger:  logger,
		metrics: opts.Metrics,
		hasMore: true,
	}
}

// Loading 判断是否有请求在途。
func (p *Pager[T]) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// HasMore 判断是否还有下一页。
func (p *Pager[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Results 返回已加载结果的快照。
func (p *Pager[T]) Results() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, len(p.results))
	copy(out, p.results)
	return out
}

// LoadMore 加载下一页。已有请求在途或已经到底时直接返回 false。
// 失败只记录日志，offset 不前进，之后可以重试。
func (p *Pager[T]) LoadMore(ctx context.Context) bool {
	p.mu.Lock()
	if p.loading || !p.hasMore {
		p.mu.Unlock()
		p.metrics.GuardRejected(p.name, "load_more")
		return false
	}
	p.loading = true
	gen := p.gen
	q := p.base
	q.Offset = p.offset
	q.Limit = p.limit
	p.mu.Unlock()

	items, err := p.query(ctx, q)
	p.metrics.ObserveQuery(p.name, "offset", err)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return false
	}
	p.loading = false
	if err != nil {
		p.logger.Printf("[%s] ❌ load offset=%d failed: %v", p.name, q.Offset, err)
		return false
	}

	p.offset += len(items)
	p.hasMore = len(items) >= p.limit
	p.results = reconcile.UpsertAll(p.results, items, p.keyOf)
	return true
}

// Reset 清空结果并回到第一页；在途请求的响应会被丢弃。
func (p *Pager[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.offset = 0
	p.loading = false
	p.hasMore = true
	p.results = nil
}

// Refresh 重置后重新加载第一页。
func (p *Pager[T]) Refresh(ctx context.Context) bool {
	p.Reset()
	return p.LoadMore(ctx)
}
