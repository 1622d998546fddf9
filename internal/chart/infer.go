// Package chart はデータセットの列型推論とチャート投影の導出を提供する。
package chart

import (
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
)

// inferenceSampleSize は列型推論で使用するサンプルレコード数の上限。
const inferenceSampleSize = 10

// dateLayouts は日付判定で試行するレイアウトのリスト。
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123,
}

// Classify はデータセットの全列を分類する。
// 先頭 min(10, N) レコードをサンプルとして使用し、列ごとに
// DateLike / Numeric / Categorical のいずれかを決定する。
//
//   - DateLike: サンプル中のいずれかの値が日付としてパース可能で、
//     かつ素の数値としてはパースできない場合。数値文字列を日付と
//     誤分類しないための条件。
//   - Numeric: 全サンプル値が空または有限数値に変換可能な場合。
//   - Categorical: 上記以外。
func Classify(ds *model.Dataset) map[string]model.ColumnKind {
	sampleEnd := min(inferenceSampleSize, len(ds.Records))
	sample := ds.Records[:sampleEnd]

	kinds := make(map[string]model.ColumnKind, len(ds.Headers))
	for _, header := range ds.Headers {
		kinds[header] = classifyColumn(header, sample)
	}
	return kinds
}

// classifyColumn は1列をサンプル値に基づいて分類する。
func classifyColumn(header string, sample []model.Record) model.ColumnKind {
	anyDate := false
	allNumeric := true

	for _, record := range sample {
		value := strings.TrimSpace(record[header])
		if value == "" {
			continue // 空値はどの分類の妨げにもならない
		}

		isNumber := isPlainNumber(value)
		if !isNumber {
			allNumeric = false
			if _, ok := parseDate(value); ok {
				anyDate = true
			}
		}
	}

	if anyDate {
		return model.ColumnDateLike
	}
	if allNumeric {
		return model.ColumnNumeric
	}
	return model.ColumnCategorical
}

// isPlainNumber は値が素の数値としてパース可能かどうかを返す。
func isPlainNumber(value string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	return err == nil
}

// parseDate は値を既知のレイアウトで日付としてパースする。
func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDisplayDate は日付値を表示用のロケール日付文字列に整形する。
// パースできない値はそのまま返す。
func FormatDisplayDate(value string) string {
	if t, ok := parseDate(strings.TrimSpace(value)); ok {
		return t.Format("Jan 2, 2006")
	}
	return value
}
