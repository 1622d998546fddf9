// Package tabular は区切りテキストのトークン化・正規化と金額パースを提供する。
package tabular

import (
	"fmt"
	"strings"
)

// TokenizerOptions はCSVトークナイザの動作設定。
type TokenizerOptions struct {
	// Strict がtrueの場合、終端されていない引用符をエラーとして扱う。
	// デフォルト（false）では引用符モードのまま入力末尾まで読み進める
	// 寛容なパースを行う。これは仕様化された挙動であり、黙って変更しないこと。
	Strict bool
}

// Tokenize は生テキストをフィールドの行列にトークン化する。
// 区切り文字は「,」、行区切りは「\n」（\r\nと\rは事前に\nへ正規化）、
// 引用符は「"」。引用符内の「""」はリテラルの引用符1文字として扱う。
// 入力末尾が改行で終わっていなくても最後のフィールド・行は必ず出力される。
func Tokenize(text string) [][]string {
	rows, _ := TokenizeWithOptions(text, TokenizerOptions{})
	return rows
}

// TokenizeWithOptions はオプション指定付きでトークン化する。
// Strictモードでは終端されていない引用符を検出するとエラーを返す。
func TokenizeWithOptions(text string, opts TokenizerOptions) ([][]string, error) {
	// 改行コードの正規化
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if inQuotes {
			if ch == '"' {
				// 「""」はエスケープされた引用符
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			// 引用符内では区切り文字・改行もフィールド内容として扱う
			field.WriteRune(ch)
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
		case ',':
			row = append(row, field.String())
			field.Reset()
		case '\n':
			row = append(row, field.String())
			field.Reset()
			rows = append(rows, row)
			row = nil
		default:
			field.WriteRune(ch)
		}
	}

	if inQuotes && opts.Strict {
		return nil, fmt.Errorf("unterminated quote at end of input")
	}

	// 末尾のフィールド・行を出力（入力が空の場合は空行として扱わない）
	if field.Len() > 0 || len(row) > 0 || len(runes) > 0 && runes[len(runes)-1] != '\n' {
		row = append(row, field.String())
		rows = append(rows, row)
	}

	return rows, nil
}
