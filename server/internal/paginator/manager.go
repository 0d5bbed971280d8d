// Package paginator 实现带实时事件归并的游标分页记录管理器。
//
// Manager 持有一个 statestore.Store，负责：
// - Reload：拉取第一页并整体替换记录（对内容未变的记录保留旧对象）；
// - LoadNextPage：按游标追加下一页；
// - 推送事件：record updated/deleted 到达时立即 upsert/remove。
//
// 约定：同一实例同时最多一个 Reload、一个 LoadNextPage 在途；失败只记录日志并清理 loading 标志，
// 不会把错误抛给调用方，也不会留下重复 key。
package paginator

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/reconcile"
	"chat-drafts/server/internal/statestore"
	"chat-drafts/server/internal/subscription"
)

// DefaultMaxLimit 是单页最大条数。
const DefaultMaxLimit = 25

// QueryFunc 是后端的游标分页查询。
type QueryFunc[T any] func(ctx context.Context, opts model.QueryOptions) (model.Page[T], error)

// EventTypes 声明哪些推送事件表示记录更新、哪些表示删除。
type EventTypes struct {
	Updated []model.EventType
	Deleted []model.EventType
}

// Config 是 Manager 的依赖与参数，后端客户端以显式依赖注入。
type Config[T any] struct {
	// Name 用于日志前缀与指标标签。
	Name  string
	Query QueryFunc[T]

	Events     subscription.Source
	EventTypes EventTypes
	// RecordFromEvent 从事件中取出记录；返回 false 的事件会被忽略。
	RecordFromEvent func(evt model.Event) (T, bool)
	// Accept 过滤不属于本 manager 的记录（例如其他用户的草稿），可为空。
	Accept func(T) bool

	KeyOf func(T) string
	// Equal 判断两条记录内容是否相同，默认使用 reconcile.Equal。
	Equal func(a, b T) bool

	// Defaults 作为每次查询的基础参数（filter/sort/user_id）。
	Defaults model.QueryOptions
	MaxLimit int
	// StaleAfter 大于 0 时，距离上次加载超过该时长的状态视为过期。
	StaleAfter time.Duration

	Logger  *log.Logger
	Metrics *metrics.Collectors
	Now     func() time.Time
}

// Manager 是游标分页记录管理器。
type Manager[T any] struct {
	cfg    Config[T]
	state  *statestore.Store[State[T]]
	subs   subscription.Registry
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	windowsMu sync.Mutex
	windows   map[*eventWindow[T]]struct{}
}

// New 创建 Manager，初始状态为空且未就绪。
func New[T any](cfg Config[T]) *Manager[T] {
	if cfg.Name == "" {
		cfg.Name = "Paginator"
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.Equal == nil {
		cfg.Equal = reconcile.Equal[T]
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager[T]{
		cfg:     cfg,
		state:   statestore.New(State[T]{}),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		windows: make(map[*eventWindow[T]]struct{}),
	}
}

// State 返回状态容器，调用方只能读取或订阅。
func (m *Manager[T]) State() *statestore.Store[State[T]] {
	return m.state
}

// Records 返回当前记录快照。
func (m *Manager[T]) Records() []T {
	return m.state.GetLatestValue().Records
}

// QueryRecords 用 Defaults 补齐参数后调用后端查询，limit 被限制在 (0, MaxLimit]。
func (m *Manager[T]) QueryRecords(ctx context.Context, opts model.QueryOptions) (model.Page[T], error) {
	q := m.cfg.Defaults
	if opts.Limit > 0 {
		q.Limit = opts.Limit
	}
	if q.Limit <= 0 || q.Limit > m.cfg.MaxLimit {
		q.Limit = m.cfg.MaxLimit
	}
	q.Next = opts.Next
	if opts.Filter != nil {
		q.Filter = opts.Filter
	}
	if opts.Sort != nil {
		q.Sort = opts.Sort
	}
	if opts.UserID != "" {
		q.UserID = opts.UserID
	}
	return m.cfg.Query(ctx, q)
}

// Reload 重新拉取第一页。
//
// 已有 Reload 在途时直接返回；非强制且状态已就绪、未过期时直接返回。
// 请求条数沿用当前已展示的数量（不超过 MaxLimit），避免刷新后列表变短。
func (m *Manager[T]) Reload(ctx context.Context, opts ReloadOptions) {
	var (
		started  bool
		inFlight bool
		limit    int
	)
	m.state.Update(func(s State[T]) State[T] {
		if s.Pagination.IsLoading {
			inFlight = true
			return s
		}
		if !opts.Force && s.Ready && !m.isStale(s) {
			return s
		}
		started = true
		limit = reloadLimit(len(s.Records), m.cfg.MaxLimit)
		s.Pagination.IsLoading = true
		return s
	})
	if inFlight {
		m.cfg.Metrics.GuardRejected(m.cfg.Name, "reload")
	}
	if !started {
		return
	}

	w := m.openWindow()
	defer m.closeWindow(w)

	page, err := m.QueryRecords(ctx, model.QueryOptions{Limit: limit})
	m.cfg.Metrics.ObserveQuery(m.cfg.Name, "reload", err)
	if err != nil {
		m.state.PartialNext(func(s *State[T]) {
			s.Pagination.IsLoading = false
		})
		m.logger.Printf("[%s] ❌ reload failed: %v", m.cfg.Name, err)
		return
	}

	next := page.Next
	if len(page.Items) < limit {
		next = ""
	}
	now := m.cfg.Now()

	m.state.Update(func(s State[T]) State[T] {
		items, pending := m.applyWindow(page.Items, w)
		merged := reconcile.MergeIdentityPreserving(items, reconcile.Index(s.Records, m.cfg.KeyOf), m.cfg.KeyOf, m.cfg.Equal)
		s.Records = reconcile.UpsertAll(merged, pending, m.cfg.KeyOf)
		s.Pagination.IsLoading = false
		s.Pagination.NextCursor = next
		s.Ready = true
		s.Stale = false
		s.LastLoadedAt = now
		return s
	})
	m.cfg.Metrics.SetRecords(m.cfg.Name, len(m.Records()))
}

// LoadNextPage 按已保存的游标拉取下一页并 upsert 到列表末尾。
// 已有下一页请求在途或没有游标时直接返回。opts 中的 Next 会被忽略。
func (m *Manager[T]) LoadNextPage(ctx context.Context, opts model.QueryOptions) {
	var (
		started bool
		cursor  string
	)
	m.state.Update(func(s State[T]) State[T] {
		if s.Pagination.IsLoadingNext || s.Pagination.NextCursor == "" {
			return s
		}
		started = true
		cursor = s.Pagination.NextCursor
		s.Pagination.IsLoadingNext = true
		return s
	})
	if !started {
		m.cfg.Metrics.GuardRejected(m.cfg.Name, "next_page")
		return
	}

	w := m.openWindow()
	defer m.closeWindow(w)

	opts.Next = cursor
	limit := opts.Limit
	if limit <= 0 || limit > m.cfg.MaxLimit {
		limit = m.cfg.MaxLimit
	}
	opts.Limit = limit

	page, err := m.QueryRecords(ctx, opts)
	m.cfg.Metrics.ObserveQuery(m.cfg.Name, "next_page", err)
	if err != nil {
		m.state.PartialNext(func(s *State[T]) {
			s.Pagination.IsLoadingNext = false
		})
		m.logger.Printf("[%s] ❌ load next page failed: %v", m.cfg.Name, err)
		return
	}

	next := page.Next
	if len(page.Items) < limit {
		next = ""
	}

	m.state.Update(func(s State[T]) State[T] {
		items, _ := m.applyWindow(page.Items, w)
		fresh := reconcile.MergeIdentityPreserving(items, reconcile.Index(s.Records, m.cfg.KeyOf), m.cfg.KeyOf, m.cfg.Equal)
		s.Records = reconcile.UpsertAll(s.Records, fresh, m.cfg.KeyOf)
		s.Pagination.IsLoadingNext = false
		s.Pagination.NextCursor = next
		return s
	})
	m.cfg.Metrics.SetRecords(m.cfg.Name, len(m.Records()))
}

// Activate 标记消费方需要最新数据；已注册订阅时，false→true 会触发一次隐式 Reload，
// 并在该 Reload 结束后返回。
func (m *Manager[T]) Activate() {
	m.state.PartialNext(func(s *State[T]) {
		s.Active = true
	})
}

// Deactivate 标记消费方暂时不需要数据，已就绪的状态会被标记为过期，下次激活时重新拉取。
func (m *Manager[T]) Deactivate() {
	m.state.PartialNext(func(s *State[T]) {
		s.Active = false
		if s.Ready {
			s.Stale = true
		}
	})
}

// Invalidate 把状态标记为过期，下一次非强制 Reload 会真正发出请求。
func (m *Manager[T]) Invalidate() {
	m.state.PartialNext(func(s *State[T]) {
		s.Stale = true
	})
}

// Close 取消订阅并取消由激活触发的在途请求。
func (m *Manager[T]) Close() {
	m.UnregisterSubscriptions()
	m.cancel()
}

func (m *Manager[T]) isStale(s State[T]) bool {
	if s.Stale {
		return true
	}
	if m.cfg.StaleAfter <= 0 || s.LastLoadedAt.IsZero() {
		return false
	}
	return m.cfg.Now().Sub(s.LastLoadedAt) >= m.cfg.StaleAfter
}

func reloadLimit(current, max int) int {
	if current <= 0 || current > max {
		return max
	}
	return current
}
