package security

import "testing"

// TestSanitizeCell はセル値からHTMLマークアップが除去されることを検証する。
func TestSanitizeCell(t *testing.T) {
	s := NewCellSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "1,234.50", "1,234.50"},
		{"日本語テキストはそのまま", "月次売上", "月次売上"},
		{"空文字列", "", ""},
		{"scriptタグは除去", `<script>alert(1)</script>Sales`, "Sales"},
		{"imgタグのイベント属性は除去", `<img src=x onerror=alert(1)>100`, "100"},
		{"整形タグもテキストのみ残る", "<b>Total</b>", "Total"},
		{"実体参照はデコードされる", "A &amp; B", "A & B"},
		{"アンパサンド単体は保持", "Q1 & Q2", "Q1 & Q2"},
		{"不等号を含む値は保持", "x < 10", "x < 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeCell(tt.input); got != tt.want {
				t.Errorf("SanitizeCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeCell_FormulaInjection は数式として解釈される先頭文字の
// 無害化を検証する。
func TestSanitizeCell_FormulaInjection(t *testing.T) {
	s := NewCellSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"イコール始まりは無害化", `=SUM(A1:A10)`, `'=SUM(A1:A10)`},
		{"IMPORT系の数式も無害化", `=IMPORTXML("http://evil","//a")`, `'=IMPORTXML("http://evil","//a")`},
		{"アットマーク始まりは無害化", "@cmd", "'@cmd"},
		{"タブ始まりは無害化", "\t=1+1", "'\t=1+1"},
		{"プラス始まりの非数値は無害化", "+cmd|' /C calc'!A0", "'+cmd|' /C calc'!A0"},
		{"マイナス始まりの非数値は無害化", "-2+3+cmd", "'-2+3+cmd"},
		{"負数は保持", "-1,234.50", "-1,234.50"},
		{"プラス符号付き数値は保持", "+500", "+500"},
		{"負のパーセントは保持", "-15%", "-15%"},
		{"負の通貨値は保持", "-$1,200.50", "-$1,200.50"},
		{"HTML除去後の数式も無害化", `<b>=SUM(A1)</b>`, `'=SUM(A1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeCell(tt.input); got != tt.want {
				t.Errorf("SanitizeCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeCell_Idempotent は同一入力に対して常に同一出力を返すことを
// 検証する。
func TestSanitizeCell_Idempotent(t *testing.T) {
	s := NewCellSanitizer()

	inputs := []string{
		`<a href="javascript:x">link</a> 2.5L`,
		`=SUM(A1:A10)`,
	}
	for _, input := range inputs {
		first := s.SanitizeCell(input)
		second := s.SanitizeCell(first)
		if first != second {
			t.Errorf("冪等性が成立しません: %q → %q", first, second)
		}
	}
}

// TestSanitizeRows は行列全体のサニタイズと入力非破壊を検証する。
func TestSanitizeRows(t *testing.T) {
	s := NewCellSanitizer()
	rows := [][]string{
		{"date", "<b>sales</b>"},
		{"2024-01-01", "<script>x</script>1000"},
	}

	got := s.SanitizeRows(rows)
	if got[0][1] != "sales" || got[1][1] != "1000" {
		t.Errorf("SanitizeRows = %v", got)
	}
	// 入力スライスは変更されない
	if rows[0][1] != "<b>sales</b>" {
		t.Error("入力スライスが変更されています")
	}
}
