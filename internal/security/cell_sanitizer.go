// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CellSanitizerService はスプレッドシートから取り込んだセル値をサニタイズし、
// XSSや数式インジェクションのリスクからチャート表示側を保護する。
// セル値はプレーンテキストとしてのみ扱うため、bluemondayのStrictPolicyで
// 全てのHTMLタグ・属性を除去し、数式として解釈される先頭文字を無害化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CellSanitizerService はセル値のサニタイズ機能のインターフェースを定義する。
// 取り込みパイプラインの正規化前に各セルへ適用される。
type CellSanitizerService interface {
	// SanitizeCell はセル値から全てのHTMLマークアップを除去した
	// プレーンテキストを返す。実体参照はデコードされる。
	// 数式として解釈される先頭文字（= @ タブ CR、数値でない + -）には
	// シングルクォートを前置する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeCell(value string) string

	// SanitizeRows は行列全体の各セルにSanitizeCellを適用する。
	// 入力スライスは変更せず、新しいスライスを返す。
	SanitizeRows(rows [][]string) [][]string
}

// cellSanitizer はCellSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type cellSanitizer struct {
	policy *bluemonday.Policy
}

// NewCellSanitizer はCellSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、scriptタグはもちろん
// 整形タグもすべて除去され、テキストコンテンツのみが残る。
func NewCellSanitizer() *cellSanitizer {
	return &cellSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeCell はセル値から全てのHTMLマークアップを除去し、
// 数式インジェクションにつながる先頭文字を無害化する。
func (s *cellSanitizer) SanitizeCell(value string) string {
	if value == "" {
		return ""
	}
	if strings.ContainsAny(value, "<>&") {
		// StrictPolicyはテキストを実体参照にエスケープして返すため、
		// プレーンテキストのセル値としてはデコードして戻す。
		value = html.UnescapeString(s.policy.Sanitize(value))
	}
	return neutralizeFormula(value)
}

// neutralizeFormula は表計算ソフトで数式として解釈される先頭文字を持つ
// セル値にシングルクォートを前置して無害化する。
// ダウンストリームでCSV再エクスポートされた場合の数式インジェクション対策。
// 符号(+/-)始まりは負数などの正当な数値表現と衝突するため、
// 残りが数値として解釈できない場合のみ無害化する。
func neutralizeFormula(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '@', '\t', '\r':
		return "'" + value
	case '+', '-':
		if isNumericBody(value[1:]) {
			return value
		}
		return "'" + value
	}
	return value
}

// isNumericBody は符号を除いたセル値が数値表現（桁区切り・小数点・
// パーセント・通貨記号・空白を含む）のみで構成されるかを判定する。
func isNumericBody(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case '.', ',', '%', ' ', '$', '€', '£', '¥', '₹':
			continue
		}
		return false
	}
	return true
}

// SanitizeRows は行列全体の各セルにSanitizeCellを適用する。
func (s *cellSanitizer) SanitizeRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = s.SanitizeCell(cell)
		}
		out[i] = cells
	}
	return out
}
