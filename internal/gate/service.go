package gate

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/repository"
)

// maxRoutesPerGate はゲートあたりのルート数の上限。
const maxRoutesPerGate = 20

// ServiceConfig はゲートサービスの設定。
type ServiceConfig struct {
	DefaultTokenTTL        time.Duration // ゲート側で未指定の場合のトークン有効期間
	DefaultMaxAttempts     int
	DefaultLockoutDuration time.Duration
}

// Service はゲート認証に関するビジネスロジックを提供する。
type Service struct {
	gateRepo repository.GateRepository
	hasher   *Hasher
	tokens   *TokenManager
	keeper   *Keeper
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	gateRepo repository.GateRepository,
	hasher *Hasher,
	tokens *TokenManager,
	keeper *Keeper,
	config ServiceConfig,
) *Service {
	return &Service{
		gateRepo: gateRepo,
		hasher:   hasher,
		tokens:   tokens,
		keeper:   keeper,
		config:   config,
	}
}

// RouteInput はゲート登録時の1ルートの入力。
type RouteInput struct {
	Password    string
	Destination string
}

// GateInput はゲート登録の入力。
type GateInput struct {
	Name            string
	Routes          []RouteInput
	TokenTTL        time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
}

// RegisterGate は新しいゲートを登録する。
// 各ルートのパスワードはゲートIDをスコープとしてハッシュ化されて保存される。
func (s *Service) RegisterGate(ctx context.Context, input GateInput) (*model.Gate, error) {
	if input.Name == "" {
		return nil, model.NewInvalidArgumentError("ゲート名が空です")
	}
	if len(input.Routes) == 0 {
		return nil, model.NewInvalidArgumentError("ルートが1件も指定されていません")
	}
	if len(input.Routes) > maxRoutesPerGate {
		return nil, model.NewInvalidArgumentError(fmt.Sprintf("ルート数が上限を超えています: %d > %d", len(input.Routes), maxRoutesPerGate))
	}

	now := time.Now()
	gate := &model.Gate{
		ID:              uuid.New().String(),
		Name:            input.Name,
		TokenTTL:        input.TokenTTL,
		MaxAttempts:     input.MaxAttempts,
		LockoutDuration: input.LockoutDuration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if gate.TokenTTL <= 0 {
		gate.TokenTTL = s.config.DefaultTokenTTL
	}
	if gate.MaxAttempts <= 0 {
		gate.MaxAttempts = s.config.DefaultMaxAttempts
	}
	if gate.LockoutDuration <= 0 {
		gate.LockoutDuration = s.config.DefaultLockoutDuration
	}

	routes := make([]*model.GateRoute, 0, len(input.Routes))
	for i, in := range input.Routes {
		if in.Destination == "" {
			return nil, model.NewInvalidArgumentError(fmt.Sprintf("ルート%dの遷移先が空です", i))
		}
		hash, err := s.hasher.GenerateHash(in.Password, gate.ID)
		if err != nil {
			return nil, err
		}
		routes = append(routes, &model.GateRoute{
			ID:           uuid.New().String(),
			GateID:       gate.ID,
			Position:     i,
			PasswordHash: hash,
			Destination:  in.Destination,
		})
	}

	if err := s.gateRepo.CreateWithRoutes(ctx, gate, routes); err != nil {
		return nil, fmt.Errorf("failed to create gate: %w", err)
	}

	slog.Info("gate registered",
		slog.String("gate_id", gate.ID),
		slog.String("name", gate.Name),
		slog.Int("route_count", len(routes)),
	)

	return gate, nil
}

// AuthResult は認証成功時の結果。
type AuthResult struct {
	Token       string
	ExpiresAt   time.Time
	Destination string
}

// Authenticate はゲートに対するパスワード送信を処理する。
//
// ロックアウト中の送信はハッシュ化・照合・カウンタ更新を一切行わずに
// LockedOutエラーで拒否される。照合はルートのPosition昇順で行われ、
// 最初に一致したルートが採用される。成功時はゲートスコープのトークンを
// 発行・保存し、nextパラメータ（安全な場合のみ）を優先した遷移先を返す。
// 失敗時はカウンタを増加させ、上限到達でロックアウトを設定する。
// どのルートで失敗したかは結果から判別できない。
func (s *Service) Authenticate(ctx context.Context, gateID, password, hashedPassword, next string) (*AuthResult, error) {
	if gateID == "" {
		return nil, model.NewInvalidArgumentError("gateIDが空です")
	}
	if password == "" && hashedPassword == "" {
		return nil, model.NewInvalidArgumentError("パスワードが空です")
	}

	// ロックアウト判定はハッシュ化やリポジトリアクセスより先に行う
	if locked, remaining := s.keeper.Locked(gateID); locked {
		return nil, model.NewLockedOutError(int(remaining.Seconds()) + 1)
	}

	gate, err := s.gateRepo.FindByID(ctx, gateID)
	if err != nil {
		return nil, fmt.Errorf("failed to find gate: %w", err)
	}
	if gate == nil {
		return nil, model.NewGateNotFoundError(gateID)
	}

	routes, err := s.gateRepo.ListRoutes(ctx, gateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gate routes: %w", err)
	}

	matched := s.matchRoute(routes, gateID, password, hashedPassword)
	if matched == nil {
		lockedOut := s.keeper.Fail(gateID, gate.MaxAttempts, gate.LockoutDuration)
		slog.Warn("gate authentication failed",
			slog.String("gate_id", gateID),
			slog.Int("attempts", s.keeper.Attempts(gateID)),
			slog.Bool("locked_out", lockedOut),
		)
		return nil, model.NewAuthFailedError()
	}

	s.keeper.Succeed(gateID)

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	expiresAt := time.Now().Add(gate.TokenTTL)
	if err := s.tokens.Store(ctx, gateID, token, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	destination := resolveDestination(matched.Destination, next)

	slog.Info("gate authentication succeeded",
		slog.String("gate_id", gateID),
		slog.String("destination", destination),
	)

	return &AuthResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		Destination: destination,
	}, nil
}

// Logout はゲートのトークンスロットを破棄する。
func (s *Service) Logout(ctx context.Context, gateID string) error {
	if gateID == "" {
		return model.NewInvalidArgumentError("gateIDが空です")
	}
	if err := s.tokens.Clear(ctx, gateID); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	slog.Info("gate logged out", slog.String("gate_id", gateID))
	return nil
}

// VerifySession はゲートに有効なトークンが存在するかどうかを返す。
// 期限切れトークンはこの読み取りの時点で遅延削除される。
func (s *Service) VerifySession(ctx context.Context, gateID string) bool {
	return s.tokens.IsValid(ctx, gateID)
}

// matchRoute はルートリストをPosition昇順で照合し、最初に一致した
// ルートを返す。一致しない場合はnilを返す。
// クライアント側で事前ハッシュ化された値は保存済みハッシュとの
// 一定時間比較で、平文パスワードは再導出による照合で判定する。
func (s *Service) matchRoute(routes []*model.GateRoute, gateID, password, hashedPassword string) *model.GateRoute {
	for _, route := range routes {
		if hashedPassword != "" {
			if subtle.ConstantTimeCompare([]byte(hashedPassword), []byte(route.PasswordHash)) == 1 {
				return route
			}
			continue
		}
		if s.hasher.Verify(password, route.PasswordHash) {
			return route
		}
	}
	return nil
}

// resolveDestination は遷移先を決定する。nextが指定されており安全と
// 判定できる場合はnextを優先し、それ以外は静的に設定された遷移先を返す。
// 安全条件: 先頭が「/」の相対パス（「//」は除く）、または静的遷移先と
// 同一ホストの絶対URL。オープンリダイレクト防止のための制約。
func resolveDestination(static, next string) string {
	if next == "" {
		return static
	}

	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}

	nextURL, err := url.Parse(next)
	if err != nil || nextURL.Host == "" {
		return static
	}
	staticURL, err := url.Parse(static)
	if err != nil {
		return static
	}
	if staticURL.Host != "" && nextURL.Host == staticURL.Host {
		return next
	}

	return static
}

// generateToken は暗号的に安全な認可トークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := cryptoRandRead(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
