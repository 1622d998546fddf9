package tabular

import (
	"strings"

	"github.com/hitoshi/sheetgate/internal/model"
)

// Normalize はトークン化済みの行をDatasetに正規化する。
// 先頭行をヘッダー（トリム・引用符除去済み）として扱い、
// 以降の行をヘッダーと突き合わせてRecordに変換する。
// ヘッダー行+1データ行に満たない場合はMalformedInputエラーを返す。
// 全セルが空白の行は正規化前に除外される。
func Normalize(rows [][]string) (*model.Dataset, error) {
	// 全ブランク行の除外
	filtered := make([][]string, 0, len(rows))
	for _, row := range rows {
		if !isBlankRow(row) {
			filtered = append(filtered, row)
		}
	}

	if len(filtered) < 2 {
		return nil, model.NewMalformedInputError("ヘッダー行と1行以上のデータ行が必要です")
	}

	headers := make([]string, len(filtered[0]))
	for i, h := range filtered[0] {
		headers[i] = strings.Trim(strings.TrimSpace(h), `"`)
	}

	records := make([]model.Record, 0, len(filtered)-1)
	for _, row := range filtered[1:] {
		record := make(model.Record, len(headers))
		for i, header := range headers {
			// 末尾フィールドの欠落は空文字列で補完する
			if i < len(row) {
				record[header] = row[i]
			} else {
				record[header] = ""
			}
		}
		records = append(records, record)
	}

	return &model.Dataset{Headers: headers, Records: records}, nil
}

// isBlankRow は全セルがトリム後に空となる行かどうかを返す。
func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
