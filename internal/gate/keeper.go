package gate

import (
	"sync"
	"time"
)

const (
	// defaultMaxAttempts は連続失敗回数のデフォルト上限。
	defaultMaxAttempts = 5
	// defaultLockoutDuration はデフォルトのロックアウト期間。
	defaultLockoutDuration = 5 * time.Minute
)

// attemptSlot は1ゲート分の試行状態を保持する。
type attemptSlot struct {
	attempts    int
	lockedUntil time.Time
}

// Keeper はゲートごとの連続失敗カウンタとロックアウトのステートマシンを
// 管理する。状態はプロセス内メモリのみに保持され、再起動でリセットされる。
// これは元仕様の既知の制約であり、永続化への変更は挙動変更として扱うこと。
//
// 遷移: 失敗のたびにカウンタが増加し、上限到達でlockedUntilが設定される。
// ロックアウト中の送信はハッシュ化・照合・カウンタ更新を一切行わずに
// 拒否される。ロックアウト期間が経過するとカウンタはリセットされる。
// 成功時はカウンタがリセットされる。
type Keeper struct {
	mu              sync.Mutex
	slots           map[string]*attemptSlot
	maxAttempts     int
	lockoutDuration time.Duration
	now             func() time.Time
}

// NewKeeper はKeeperの新しいインスタンスを生成する。
// maxAttemptsまたはlockoutDurationが0以下の場合はデフォルト値を使用する。
func NewKeeper(maxAttempts int, lockoutDuration time.Duration) *Keeper {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if lockoutDuration <= 0 {
		lockoutDuration = defaultLockoutDuration
	}
	return &Keeper{
		slots:           make(map[string]*attemptSlot),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		now:             time.Now,
	}
}

// Locked はゲートがロックアウト中かどうかと残り時間を返す。
// ロックアウト期間が経過している場合はカウンタをリセットしてfalseを返す。
func (k *Keeper) Locked(gateID string) (bool, time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()

	slot, ok := k.slots[gateID]
	if !ok {
		return false, 0
	}

	now := k.now()
	if slot.lockedUntil.IsZero() {
		return false, 0
	}
	if now.Before(slot.lockedUntil) {
		return true, slot.lockedUntil.Sub(now)
	}

	// ロックアウト期間経過後はカウンタをリセットする
	delete(k.slots, gateID)
	return false, 0
}

// Fail は失敗を記録する。カウンタが上限に達した場合はロックアウトを設定し、
// trueを返す。上限・期間は0以下の場合Keeperのデフォルトが使用される
// （ゲートごとの設定で上書き可能）。
func (k *Keeper) Fail(gateID string, maxAttempts int, lockoutDuration time.Duration) bool {
	if maxAttempts <= 0 {
		maxAttempts = k.maxAttempts
	}
	if lockoutDuration <= 0 {
		lockoutDuration = k.lockoutDuration
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	slot, ok := k.slots[gateID]
	if !ok {
		slot = &attemptSlot{}
		k.slots[gateID] = slot
	}

	slot.attempts++
	if slot.attempts >= maxAttempts {
		slot.lockedUntil = k.now().Add(lockoutDuration)
		return true
	}
	return false
}

// Succeed は成功を記録し、ゲートの試行状態を破棄する。
func (k *Keeper) Succeed(gateID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.slots, gateID)
}

// Attempts は現在の連続失敗回数を返す。主にテストと観測用。
func (k *Keeper) Attempts(gateID string) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	if slot, ok := k.slots[gateID]; ok {
		return slot.attempts
	}
	return 0
}
