// Package retention 定期清理长时间未更新的草稿。
//
// 调度用 gronx 计算下一次 cron 触发时间；每次清理删除 updated_at 早于 now-Period 的草稿，
// 删除事件由 Purger 发布，在线的 manager 会随之移除对应记录。
package retention

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultCron 是未配置时的清理时间：每天 02:00。
const DefaultCron = "0 2 * * *"

// Purger 删除 before 之前的草稿并返回删除条数。
type Purger interface {
	PurgeDraftsBefore(ctx context.Context, before time.Time) (int, error)
}

type Options struct {
	Cron   string
	Period time.Duration
	Logger *log.Logger
	Now    func() time.Time
}

type Scheduler struct {
	purger Purger
	cron   string
	period time.Duration
	logger *log.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time

	wg sync.WaitGroup
}

// New 校验 cron 表达式并创建调度器。
func New(purger Purger, opts Options) (*Scheduler, error) {
	cron := opts.Cron
	if cron == "" {
		cron = DefaultCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cron)
	}
	if opts.Period <= 0 {
		return nil, fmt.Errorf("retention period must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		purger: purger,
		cron:   cron,
		period: opts.Period,
		logger: logger,
		now:    opts.Now,
		after:  time.After,
	}, nil
}

// NextRun 返回 after 之后的下一次触发时间。
func (s *Scheduler) NextRun(after time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cron, after, false)
}

// RunOnce 立即执行一次清理。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.period)
	n, err := s.purger.PurgeDraftsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge drafts before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.logger.Printf("[Retention] ✅ Purged %d draft(s) older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

// Start 启动后台调度协程，ctx 取消后退出。Wait 等待其退出。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Printf("[Retention] Scheduler started: cron=%q period=%s", s.cron, s.period)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Wait 阻塞到调度协程退出。
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next, err := s.NextRun(s.now())
		wait := time.Until(next)
		if err != nil {
			s.logger.Printf("[Retention] ❌ compute next tick failed: %v", err)
			wait = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			s.logger.Printf("[Retention] Scheduler stopped")
			return
		case <-s.after(wait):
		}
		if err != nil {
			continue
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Printf("[Retention] ❌ %v", err)
		}
	}
}
