package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/repository"
)

// mockGateRepo はGateRepositoryのテスト用モック。
type mockGateRepo struct {
	findByIDFn         func(ctx context.Context, id string) (*model.Gate, error)
	createWithRoutesFn func(ctx context.Context, gate *model.Gate, routes []*model.GateRoute) error
	listRoutesFn       func(ctx context.Context, gateID string) ([]*model.GateRoute, error)
	deleteByIDFn       func(ctx context.Context, id string) error

	findCalls int
	listCalls int
}

var _ repository.GateRepository = (*mockGateRepo)(nil)

func (m *mockGateRepo) FindByID(ctx context.Context, id string) (*model.Gate, error) {
	m.findCalls++
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockGateRepo) CreateWithRoutes(ctx context.Context, gate *model.Gate, routes []*model.GateRoute) error {
	if m.createWithRoutesFn != nil {
		return m.createWithRoutesFn(ctx, gate, routes)
	}
	return nil
}

func (m *mockGateRepo) ListRoutes(ctx context.Context, gateID string) ([]*model.GateRoute, error) {
	m.listCalls++
	if m.listRoutesFn != nil {
		return m.listRoutesFn(ctx, gateID)
	}
	return nil, nil
}

func (m *mockGateRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

// newTestService はテスト用のService一式を組み立てる。
func newTestService(t *testing.T, repo repository.GateRepository) *Service {
	t.Helper()
	hasher := NewHasher(HasherConfig{})
	tokens := NewTokenManager(newMemStore(), testKey, nil)
	keeper := NewKeeper(3, time.Minute)
	return NewService(repo, hasher, tokens, keeper, ServiceConfig{
		DefaultTokenTTL:        time.Hour,
		DefaultMaxAttempts:     3,
		DefaultLockoutDuration: time.Minute,
	})
}

// testGateFixture はルート2本を持つゲートとリポジトリモックを生成する。
func testGateFixture(t *testing.T) (*mockGateRepo, *model.Gate) {
	t.Helper()
	hasher := NewHasher(HasherConfig{})
	gateID := "gate-1"

	hash1, err := hasher.GenerateHash("alpha-pass", gateID)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	hash2, err := hasher.GenerateHash("beta-pass", gateID)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	gate := &model.Gate{
		ID:              gateID,
		Name:            "販売レポート",
		TokenTTL:        time.Hour,
		MaxAttempts:     3,
		LockoutDuration: time.Minute,
	}
	routes := []*model.GateRoute{
		{ID: "r1", GateID: gateID, Position: 0, PasswordHash: hash1, Destination: "/reports/alpha"},
		{ID: "r2", GateID: gateID, Position: 1, PasswordHash: hash2, Destination: "/reports/beta"},
	}

	repo := &mockGateRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Gate, error) {
			if id == gateID {
				return gate, nil
			}
			return nil, nil
		},
		listRoutesFn: func(_ context.Context, _ string) ([]*model.GateRoute, error) {
			return routes, nil
		},
	}
	return repo, gate
}

// TestService_Authenticate_Success は正しいパスワードでトークンが発行され、
// ルートの遷移先が返ることを検証する。
func TestService_Authenticate_Success(t *testing.T) {
	repo, gate := testGateFixture(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	result, err := svc.Authenticate(ctx, gate.ID, "beta-pass", "", "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if result.Token == "" {
		t.Error("トークンが発行されていません")
	}
	if result.Destination != "/reports/beta" {
		t.Errorf("Destination = %q, want %q", result.Destination, "/reports/beta")
	}
	if !result.ExpiresAt.After(time.Now()) {
		t.Error("ExpiresAtが未来の時刻ではありません")
	}
	if !svc.VerifySession(ctx, gate.ID) {
		t.Error("認証成功後もVerifySession = false")
	}
}

// TestService_Authenticate_FirstMatchWins は複数ルートの照合がPosition昇順で
// 行われ、最初に一致したルートが採用されることを検証する。
func TestService_Authenticate_FirstMatchWins(t *testing.T) {
	repo, gate := testGateFixture(t)
	svc := newTestService(t, repo)

	result, err := svc.Authenticate(context.Background(), gate.ID, "alpha-pass", "", "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if result.Destination != "/reports/alpha" {
		t.Errorf("Destination = %q, want %q", result.Destination, "/reports/alpha")
	}
}

// TestService_Authenticate_PreHashed はクライアント側で事前ハッシュ化された
// 値での照合を検証する。
func TestService_Authenticate_PreHashed(t *testing.T) {
	repo, gate := testGateFixture(t)
	svc := newTestService(t, repo)

	// クライアントは決定的ソルトで同じハッシュを導出できる
	hashed, err := svc.hasher.GenerateHash("beta-pass", gate.ID)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	result, err := svc.Authenticate(context.Background(), gate.ID, "", hashed, "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if result.Destination != "/reports/beta" {
		t.Errorf("Destination = %q, want %q", result.Destination, "/reports/beta")
	}
}

// TestService_Authenticate_WrongPassword は不一致時にAUTHENTICATION_FAILEDが
// 返り、どのルートで失敗したか判別できないことを検証する。
func TestService_Authenticate_WrongPassword(t *testing.T) {
	repo, gate := testGateFixture(t)
	svc := newTestService(t, repo)

	_, err := svc.Authenticate(context.Background(), gate.ID, "wrong", "", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthFailed {
		t.Fatalf("err = %v, want AUTHENTICATION_FAILED", err)
	}
	if svc.VerifySession(context.Background(), gate.ID) {
		t.Error("失敗後にVerifySession = true")
	}
}

// TestService_Authenticate_LockoutSkipsValidation は上限回数の失敗後の送信が
// ハッシュ化・リポジトリアクセスを一切行わずに拒否されることを検証する。
func TestService_Authenticate_LockoutSkipsValidation(t *testing.T) {
	repo, gate := testGateFixture(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	// 上限（3回）まで失敗させる
	for i := 0; i < 3; i++ {
		if _, err := svc.Authenticate(ctx, gate.ID, "wrong", "", ""); err == nil {
			t.Fatal("不正なパスワードで認証が成功しました")
		}
	}

	findBefore, listBefore := repo.findCalls, repo.listCalls
	attemptsBefore := svc.keeper.Attempts(gate.ID)

	_, err := svc.Authenticate(ctx, gate.ID, "wrong", "", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLockedOut {
		t.Fatalf("err = %v, want LOCKED_OUT", err)
	}

	// ロックアウト中はリポジトリにも照合にも到達しない
	if repo.findCalls != findBefore || repo.listCalls != listBefore {
		t.Errorf("ロックアウト中にリポジトリが呼ばれました: find %d→%d, list %d→%d",
			findBefore, repo.findCalls, listBefore, repo.listCalls)
	}
	// カウンタも増加しない
	if got := svc.keeper.Attempts(gate.ID); got != attemptsBefore {
		t.Errorf("ロックアウト中にカウンタが増加しました: %d → %d", attemptsBefore, got)
	}

	// 正しいパスワードでもロックアウト中は拒否される
	if _, err := svc.Authenticate(ctx, gate.ID, "beta-pass", "", ""); err == nil {
		t.Error("ロックアウト中に正しいパスワードで認証が成功しました")
	}
}

// TestService_Authenticate_GateNotFound は未知のゲートIDでGATE_NOT_FOUNDが
// 返ることを検証する。
func TestService_Authenticate_GateNotFound(t *testing.T) {
	svc := newTestService(t, &mockGateRepo{})

	_, err := svc.Authenticate(context.Background(), "unknown", "pass", "", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeGateNotFound {
		t.Errorf("err = %v, want GATE_NOT_FOUND", err)
	}
}

// TestService_Authenticate_EmptyInputs は空入力がINVALID_ARGUMENTになることを
// 検証する。
func TestService_Authenticate_EmptyInputs(t *testing.T) {
	repo := &mockGateRepo{}
	svc := newTestService(t, repo)
	ctx := context.Background()

	var apiErr *model.APIError
	if _, err := svc.Authenticate(ctx, "", "pass", "", ""); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidArgument {
		t.Errorf("空gateID: err = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := svc.Authenticate(ctx, "gate-1", "", "", ""); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidArgument {
		t.Errorf("空パスワード: err = %v, want INVALID_ARGUMENT", err)
	}
	if repo.findCalls != 0 {
		t.Error("入力検証前にリポジトリが呼ばれました")
	}
}

// TestService_Logout はログアウトでセッションが破棄されることを検証する。
func TestService_Logout(t *testing.T) {
	repo, gate := testGateFixture(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, gate.ID, "alpha-pass", "", ""); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if err := svc.Logout(ctx, gate.ID); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if svc.VerifySession(ctx, gate.ID) {
		t.Error("ログアウト後もVerifySession = true")
	}
}

// TestService_RegisterGate はゲート登録の入力検証とハッシュ保存を検証する。
func TestService_RegisterGate(t *testing.T) {
	var createdGate *model.Gate
	var createdRoutes []*model.GateRoute
	repo := &mockGateRepo{
		createWithRoutesFn: func(_ context.Context, gate *model.Gate, routes []*model.GateRoute) error {
			createdGate = gate
			createdRoutes = routes
			return nil
		},
	}
	svc := newTestService(t, repo)
	ctx := context.Background()

	gate, err := svc.RegisterGate(ctx, GateInput{
		Name: "月次レポート",
		Routes: []RouteInput{
			{Password: "pass-a", Destination: "/a"},
			{Password: "pass-b", Destination: "/b"},
		},
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if gate.ID == "" {
		t.Error("ゲートIDが採番されていません")
	}
	// デフォルト設定の適用
	if gate.TokenTTL != time.Hour || gate.MaxAttempts != 3 {
		t.Errorf("デフォルト設定が適用されていません: TTL=%v, MaxAttempts=%d", gate.TokenTTL, gate.MaxAttempts)
	}
	if createdGate == nil || len(createdRoutes) != 2 {
		t.Fatalf("保存されたルート数 = %d, want 2", len(createdRoutes))
	}
	for i, route := range createdRoutes {
		if route.Position != i {
			t.Errorf("routes[%d].Position = %d, want %d", i, route.Position, i)
		}
		if !ValidateHashFormat(route.PasswordHash) {
			t.Errorf("routes[%d]のハッシュ形式が不正です: %q", i, route.PasswordHash)
		}
		if route.PasswordHash == "pass-a" || route.PasswordHash == "pass-b" {
			t.Errorf("routes[%d]に平文パスワードが保存されています", i)
		}
	}

	// 入力検証
	if _, err := svc.RegisterGate(ctx, GateInput{Name: "", Routes: []RouteInput{{Password: "p", Destination: "/x"}}}); err == nil {
		t.Error("空の名前で登録が成功しました")
	}
	if _, err := svc.RegisterGate(ctx, GateInput{Name: "x", Routes: nil}); err == nil {
		t.Error("ルートなしで登録が成功しました")
	}
	tooMany := make([]RouteInput, maxRoutesPerGate+1)
	for i := range tooMany {
		tooMany[i] = RouteInput{Password: "p", Destination: "/x"}
	}
	if _, err := svc.RegisterGate(ctx, GateInput{Name: "x", Routes: tooMany}); err == nil {
		t.Error("ルート数上限超過で登録が成功しました")
	}
}

// TestResolveDestination はnextパラメータの安全判定を検証する。
func TestResolveDestination(t *testing.T) {
	tests := []struct {
		name   string
		static string
		next   string
		want   string
	}{
		{"next未指定", "/reports", "", "/reports"},
		{"相対パスは許可", "/reports", "/dashboard", "/dashboard"},
		{"プロトコル相対は拒否", "/reports", "//evil.example.com", "/reports"},
		{"外部ホストは拒否", "https://app.example.com/r", "https://evil.example.com/", "https://app.example.com/r"},
		{"同一ホストは許可", "https://app.example.com/r", "https://app.example.com/next", "https://app.example.com/next"},
		{"不正なURLは拒否", "/reports", "ht tp://bad", "/reports"},
		{"スキームのみは拒否", "/reports", "javascript:alert(1)", "/reports"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveDestination(tt.static, tt.next); got != tt.want {
				t.Errorf("resolveDestination(%q, %q) = %q, want %q", tt.static, tt.next, got, tt.want)
			}
		})
	}
}
