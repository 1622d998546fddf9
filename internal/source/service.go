// Package source はスプレッドシートデータソースの管理ロジックを提供する。
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/hitoshi/sheetgate/internal/metrics"
	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/repository"
	"github.com/hitoshi/sheetgate/internal/sheet"
)

const (
	// maxConsecutiveErrors を超えたデータソースは自動リフレッシュを停止する。
	maxConsecutiveErrors = 10

	// maxBackoffInterval はエラー時バックオフの上限。
	maxBackoffInterval = 6 * time.Hour
)

// IngestService はデータ取り込みのインターフェース。
// 実装は sheet.Service が提供する。
type IngestService interface {
	Ingest(ctx context.Context, sourceKey, rawURL string, chartType model.ChartType) (*model.Projection, error)
	Cancel(sourceKey string)
}

var _ IngestService = (*sheet.Service)(nil)

// ServiceConfig はサービスの設定値。
type ServiceConfig struct {
	// DefaultRefreshInterval はリフレッシュ間隔が未指定の場合に適用される。
	DefaultRefreshInterval time.Duration
	// CacheTTL は取り込み結果のキャッシュ保持期間。
	CacheTTL time.Duration
}

// Service はデータソースの登録・取得・リフレッシュを担うサービス層。
// 取り込み結果はメモリキャッシュに保持され、リフレッシュのたびに丸ごと差し替えられる。
type Service struct {
	sourceRepo repository.SourceRepository
	ingester   IngestService
	cache      *gocache.Cache
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	config     ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sourceRepo repository.SourceRepository,
	ingester IngestService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config ServiceConfig,
) *Service {
	if config.DefaultRefreshInterval <= 0 {
		config.DefaultRefreshInterval = 15 * time.Minute
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sourceRepo: sourceRepo,
		ingester:   ingester,
		cache:      gocache.New(config.CacheTTL, 2*config.CacheTTL),
		metrics:    collector,
		logger:     logger,
		config:     config,
	}
}

// SourceInput はデータソース登録の入力。
type SourceInput struct {
	URL                    string
	ChartType              string
	RefreshIntervalMinutes int
}

// RegisterSource は新しいデータソースを登録する。
// URLはこの時点でスプレッドシートURLとして解析され、解析結果が保存される。
func (s *Service) RegisterSource(ctx context.Context, input SourceInput) (*model.Source, error) {
	ref, err := sheet.ParseURL(input.URL)
	if err != nil {
		return nil, err
	}

	chartType, err := model.ParseChartType(input.ChartType)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(input.RefreshIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = s.config.DefaultRefreshInterval
	}

	now := time.Now()
	src := &model.Source{
		ID:                     uuid.New().String(),
		URL:                    input.URL,
		SpreadsheetID:          ref.SpreadsheetID,
		SheetGID:               ref.GID,
		ChartType:              chartType,
		RefreshIntervalMinutes: int(interval / time.Minute),
		RefreshStatus:          model.RefreshStatusActive,
		NextRefreshAt:          now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.sourceRepo.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	s.logger.Info("source registered",
		slog.String("source_id", src.ID),
		slog.String("spreadsheet_id", src.SpreadsheetID),
		slog.String("chart_type", string(src.ChartType)),
	)

	return src, nil
}

// GetSource は指定IDのデータソースを返す。
func (s *Service) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	src, err := s.sourceRepo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("データソースの取得に失敗しました: %w", err)
	}
	if src == nil {
		return nil, model.NewSourceNotFoundError(sourceID)
	}
	return src, nil
}

// GetData はデータソースのチャート用データビューを返す。
// キャッシュが有効な場合はキャッシュを返し、なければ取り込みを実行する。
// forceRefresh=true の場合はキャッシュを無視して必ず再取り込みする。
func (s *Service) GetData(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if !forceRefresh {
		if cached, found := s.cache.Get(src.ID); found {
			return cached.(*model.Projection), nil
		}
	}

	return s.ingest(ctx, src)
}

// Refresh はバックグラウンドワーカーからの定期リフレッシュを処理する。
// 成功時はエラーカウンタをリセットして次回時刻を通常間隔で設定する。
// 失敗時はカウンタを増加させ、連続エラー数に応じた指数バックオフで
// 次回時刻を遅らせる。上限到達でリフレッシュを停止する。
// キャンセルされた取り込みは状態を一切更新しない。
func (s *Service) Refresh(ctx context.Context, src *model.Source) error {
	_, err := s.ingest(ctx, src)
	if errors.Is(err, context.Canceled) {
		return err
	}

	interval := time.Duration(src.RefreshIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = s.config.DefaultRefreshInterval
	}

	now := time.Now()
	if err != nil {
		src.ConsecutiveErrors++
		src.ErrorMessage = err.Error()
		src.NextRefreshAt = now.Add(backoffInterval(interval, src.ConsecutiveErrors))
		if src.ConsecutiveErrors >= maxConsecutiveErrors {
			src.RefreshStatus = model.RefreshStatusStopped
			s.logger.Warn("source refresh stopped",
				slog.String("source_id", src.ID),
				slog.Int("consecutive_errors", src.ConsecutiveErrors),
			)
		}
	} else {
		src.ConsecutiveErrors = 0
		src.ErrorMessage = ""
		src.NextRefreshAt = now.Add(interval)
	}
	src.UpdatedAt = now

	if updateErr := s.sourceRepo.UpdateRefreshState(ctx, src); updateErr != nil {
		return fmt.Errorf("リフレッシュ状態の更新に失敗しました: %w", updateErr)
	}

	return err
}

// ResumeRefresh は停止中データソースの自動リフレッシュを再開する。
func (s *Service) ResumeRefresh(ctx context.Context, sourceID string) (*model.Source, error) {
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.RefreshStatus != model.RefreshStatusStopped {
		return nil, model.NewInvalidArgumentError("データソースは停止されていません")
	}

	src.RefreshStatus = model.RefreshStatusActive
	src.ConsecutiveErrors = 0
	src.ErrorMessage = ""
	src.NextRefreshAt = time.Now()
	src.UpdatedAt = time.Now()

	if err := s.sourceRepo.UpdateRefreshState(ctx, src); err != nil {
		return nil, fmt.Errorf("リフレッシュ状態の更新に失敗しました: %w", err)
	}

	return src, nil
}

// DeleteSource はデータソースを削除する。
// 実行中の取り込みはキャンセルされ、キャッシュも破棄される。
func (s *Service) DeleteSource(ctx context.Context, sourceID string) error {
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	s.ingester.Cancel(src.ID)
	s.cache.Delete(src.ID)

	if err := s.sourceRepo.DeleteByID(ctx, src.ID); err != nil {
		return fmt.Errorf("データソースの削除に失敗しました: %w", err)
	}

	return nil
}

// ingest は取り込みを実行し、成功時はキャッシュを差し替えてメトリクスを記録する。
func (s *Service) ingest(ctx context.Context, src *model.Source) (*model.Projection, error) {
	start := time.Now()
	projection, err := s.ingester.Ingest(ctx, src.ID, src.URL, src.ChartType)
	if err != nil {
		// 後発フェッチに取って代わられた場合は結果を握りつぶす
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordIngestFailure(src.ID, failureReason(err))
		}
		return nil, err
	}

	s.cache.Set(src.ID, projection, s.config.CacheTTL)

	if s.metrics != nil {
		s.metrics.RecordIngestSuccess(src.ID)
		s.metrics.RecordIngestLatency(time.Since(start))
		s.metrics.RecordRowsIngested(len(projection.Records))
	}

	return projection, nil
}

// backoffInterval は連続エラー数に応じた次回リフレッシュまでの間隔を返す。
// 基準間隔を2倍ずつ伸ばし、上限で頭打ちにする。
func backoffInterval(base time.Duration, consecutiveErrors int) time.Duration {
	interval := base
	for i := 1; i < consecutiveErrors; i++ {
		interval *= 2
		if interval >= maxBackoffInterval {
			return maxBackoffInterval
		}
	}
	if interval > maxBackoffInterval {
		return maxBackoffInterval
	}
	return interval
}

// failureReason はメトリクスのreasonラベル値を導出する。
func failureReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL"
}
