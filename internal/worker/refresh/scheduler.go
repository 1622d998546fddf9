// Package refresh はデータソースのバックグラウンドリフレッシュ処理を提供する。
//
// 取り込み失敗時のリトライは次回スケジュールのバックオフとしてのみ行い、
// 1回のフェッチ内での再試行は行わない。
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/repository"
)

// RefreshService はデータソースリフレッシュの実行インターフェース。
type RefreshService interface {
	// Refresh は指定データソースを取り込み、結果に応じてリフレッシュ状態を更新する。
	Refresh(ctx context.Context, src *model.Source) error
}

// Scheduler はデータソースリフレッシュのスケジューリングと並列制御を行う。
// 定期ティッカーでリフレッシュ対象ソースを取得し、
// semaphoreパターンで最大並列数を制御しながら取り込みを実行する。
type Scheduler struct {
	sourceRepo     repository.SourceRepository
	refresher      RefreshService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	sourceRepo repository.SourceRepository,
	refresher RefreshService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		refresher:      refresher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("リフレッシュスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("リフレッシュサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リフレッシュスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("リフレッシュサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はリフレッシュ対象ソースを1回取得し、並列で取り込みを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// リフレッシュ対象ソースを取得（FOR UPDATE SKIP LOCKED）
	sources, err := s.sourceRepo.ListDueForRefresh(ctx)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("リフレッシュ対象のデータソースはありません")
		return nil
	}

	s.logger.Info("リフレッシュサイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(src *model.Source) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.refresher.Refresh(ctx, src); err != nil {
				// 後発の取り込みに取って代わられた場合は状態未更新のまま終了する
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Error("データソースのリフレッシュに失敗しました",
					slog.String("source_id", src.ID),
					slog.String("url", src.URL),
					slog.String("error", err.Error()),
				)
			}
		}(src)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("リフレッシュサイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
