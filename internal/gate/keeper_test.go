package gate

import (
	"testing"
	"time"
)

// TestKeeper_LockoutAfterMaxAttempts は上限回数の連続失敗でロックアウトに
// 遷移することを検証する。
func TestKeeper_LockoutAfterMaxAttempts(t *testing.T) {
	k := NewKeeper(3, time.Minute)

	for i := 1; i <= 2; i++ {
		if locked := k.Fail("gateA", 0, 0); locked {
			t.Fatalf("%d回目の失敗でロックアウトされました", i)
		}
		if got, remaining := k.Locked("gateA"); got || remaining > 0 {
			t.Fatalf("%d回目の失敗後にLocked = true (remaining = %v)", i, remaining)
		}
	}

	if locked := k.Fail("gateA", 0, 0); !locked {
		t.Fatal("3回目の失敗でロックアウトされませんでした")
	}

	locked, remaining := k.Locked("gateA")
	if !locked {
		t.Fatal("Locked = false, want true")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("remaining = %v, want (0, 1m]", remaining)
	}
}

// TestKeeper_ResetAfterWindow はロックアウト期間経過後にカウンタが
// リセットされることを検証する。
func TestKeeper_ResetAfterWindow(t *testing.T) {
	k := NewKeeper(2, time.Minute)
	base := time.Now()
	k.now = func() time.Time { return base }

	k.Fail("gateA", 0, 0)
	k.Fail("gateA", 0, 0)
	if locked, _ := k.Locked("gateA"); !locked {
		t.Fatal("ロックアウトに遷移していません")
	}

	// 期間経過後は未ロック、かつカウンタもゼロに戻る
	k.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	if locked, _ := k.Locked("gateA"); locked {
		t.Error("期間経過後もLocked = true")
	}
	if got := k.Attempts("gateA"); got != 0 {
		t.Errorf("Attempts = %d, want 0", got)
	}

	// リセット後は再び上限までの猶予がある
	if locked := k.Fail("gateA", 0, 0); locked {
		t.Error("リセット後の1回目の失敗でロックアウトされました")
	}
}

// TestKeeper_SucceedResetsCounter は成功でカウンタが破棄されることを検証する。
func TestKeeper_SucceedResetsCounter(t *testing.T) {
	k := NewKeeper(3, time.Minute)

	k.Fail("gateA", 0, 0)
	k.Fail("gateA", 0, 0)
	k.Succeed("gateA")

	if got := k.Attempts("gateA"); got != 0 {
		t.Errorf("Attempts = %d, want 0", got)
	}
	if locked := k.Fail("gateA", 0, 0); locked {
		t.Error("成功後の1回目の失敗でロックアウトされました")
	}
}

// TestKeeper_PerGateIsolation はゲートごとに試行状態が独立していることを
// 検証する。
func TestKeeper_PerGateIsolation(t *testing.T) {
	k := NewKeeper(2, time.Minute)

	k.Fail("gateA", 0, 0)
	k.Fail("gateA", 0, 0)

	if locked, _ := k.Locked("gateB"); locked {
		t.Error("gateAのロックアウトがgateBに波及しています")
	}
	if got := k.Attempts("gateB"); got != 0 {
		t.Errorf("Attempts(gateB) = %d, want 0", got)
	}
}

// TestKeeper_PerGateOverrides はFail呼び出し時のゲート固有設定が
// デフォルトより優先されることを検証する。
func TestKeeper_PerGateOverrides(t *testing.T) {
	k := NewKeeper(5, time.Minute)

	// ゲート固有の上限1回・期間10分で即ロックアウト
	if locked := k.Fail("strict", 1, 10*time.Minute); !locked {
		t.Fatal("上限1回の設定でロックアウトされませんでした")
	}

	locked, remaining := k.Locked("strict")
	if !locked {
		t.Fatal("Locked = false, want true")
	}
	if remaining <= time.Minute {
		t.Errorf("remaining = %v, want 10分近傍", remaining)
	}
}

// TestKeeper_DefaultsApplied は0以下のコンストラクタ引数にデフォルト値が
// 適用されることを検証する。
func TestKeeper_DefaultsApplied(t *testing.T) {
	k := NewKeeper(0, 0)
	if k.maxAttempts != defaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", k.maxAttempts, defaultMaxAttempts)
	}
	if k.lockoutDuration != defaultLockoutDuration {
		t.Errorf("lockoutDuration = %v, want %v", k.lockoutDuration, defaultLockoutDuration)
	}
}
