package sheet

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/sheetgate/internal/chart"
	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/security"
	"github.com/hitoshi/sheetgate/internal/tabular"
)

// valuesClient はvalues APIクライアントの抽象。テストでモックに差し替える。
type valuesClient interface {
	GetValues(ctx context.Context, spreadsheetID string) ([][]string, error)
}

// csvFetcher はCSVエクスポート取得の抽象。テストでモックに差し替える。
type csvFetcher interface {
	FetchCSV(ctx context.Context, ref *Ref) ([]byte, error)
}

// Service はスプレッドシートの取り込みパイプラインを提供する。
//
// 取得経路の選択: APIキーが設定されている場合はvalues APIを、未設定の
// 場合は公開CSVエクスポートを使用する。
//
// 同一論理ソースへの取得要求はlast-winsで調停される。新しい取得の開始は
// 同じソースキーの進行中の取得をキャンセルし、キャンセルされた側の結果は
// 決して適用されない。キャンセルはエラーとして扱わず、呼び出し元が
// errors.Is(err, context.Canceled)で無視できる形で返す。
type Service struct {
	fetcher   csvFetcher
	api       valuesClient // nilの場合はCSVエクスポートのみ使用
	sanitizer security.CellSanitizerService
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightFetch
}

// inflightFetch は進行中の取得1件を表す。
type inflightFetch struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService はServiceの新しいインスタンスを生成する。
// apiにnilを渡すとCSVエクスポート経路のみが使用される。
func NewService(fetcher *Fetcher, api *APIClient, sanitizer security.CellSanitizerService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		fetcher:   fetcher,
		sanitizer: sanitizer,
		logger:    logger,
		inflight:  make(map[string]*inflightFetch),
	}
	// 型付きnilがインターフェースのnil判定をすり抜けないようにする
	if api != nil {
		s.api = api
	}
	return s
}

// Ingest はスプレッドシートを取得し、チャート投影まで変換する。
//
// sourceKeyは論理ソースの識別子（通常はデータソースID）。同じsourceKeyに
// 対する進行中の取得はキャンセルされ、最後に開始された取得の結果だけが
// 返る。キャンセルされた取得はcontext.Canceledを返す。
func (s *Service) Ingest(ctx context.Context, sourceKey, rawURL string, chartType model.ChartType) (*model.Projection, error) {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	fetchCtx := s.begin(ctx, sourceKey)
	defer s.finish(sourceKey, fetchCtx)

	rows, err := s.fetchRows(fetchCtx, ref)
	if err != nil {
		return nil, err
	}

	// 取得完了後でも、結果の適用前にキャンセル済みなら破棄する
	if err := fetchCtx.Err(); err != nil {
		return nil, err
	}

	if s.sanitizer != nil {
		rows = s.sanitizer.SanitizeRows(rows)
	}

	dataset, err := tabular.Normalize(rows)
	if err != nil {
		return nil, err
	}

	projection, err := chart.BuildProjection(dataset, chartType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("spreadsheet ingested",
		slog.String("source_key", sourceKey),
		slog.String("spreadsheet_id", ref.SpreadsheetID),
		slog.Int("record_count", len(projection.Records)),
	)
	return projection, nil
}

// Cancel はソースの進行中の取得をキャンセルする。ソース削除時に使用する。
func (s *Service) Cancel(sourceKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.inflight[sourceKey]; ok {
		entry.cancel()
		delete(s.inflight, sourceKey)
	}
}

// fetchRows は設定された経路からセル行列を取得する。
func (s *Service) fetchRows(ctx context.Context, ref *Ref) ([][]string, error) {
	if s.api != nil {
		return s.api.GetValues(ctx, ref.SpreadsheetID)
	}

	raw, err := s.fetcher.FetchCSV(ctx, ref)
	if err != nil {
		return nil, err
	}
	return tabular.Tokenize(string(raw)), nil
}

// begin はソースキーの進行中の取得をキャンセルし、新しい取得コンテキストを
// 登録する。
func (s *Service) begin(ctx context.Context, sourceKey string) context.Context {
	fetchCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inflight[sourceKey]; ok {
		prev.cancel()
	}
	s.inflight[sourceKey] = &inflightFetch{ctx: fetchCtx, cancel: cancel}
	return fetchCtx
}

// finish は取得コンテキストの登録を解除する。後続の取得に上書きされて
// いる場合は後続のエントリには触らない。
func (s *Service) finish(sourceKey string, fetchCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.inflight[sourceKey]
	if !ok || entry.ctx != fetchCtx {
		return
	}
	entry.cancel()
	delete(s.inflight, sourceKey)
}
