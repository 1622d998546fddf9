package chart

import (
	"strings"

	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/tabular"
)

// maxSeriesCount はY軸系列数の上限。
const maxSeriesCount = 5

// BuildProjection はデータセットからチャート描画用のProjectionを導出する。
// レコードが空の場合はNoDataAvailableエラーを返す。
//
// 軸選択の優先順位: DateLike列があればX軸に採用し、なければCategorical列、
// それもなければ先頭列にフォールバックする。Y軸候補は元の列順のNumeric列
// （X軸を除く）で、最大5系列。円チャートの場合は1系列に制限される。
// X軸に採用された列は他に候補が存在しない場合を除きY軸から除外される。
//
// 型強制パス: 数値列は数値へ、日付列は表示用文字列へ変換され、
// 強制後にX軸値が空の行は最終結果から除外される。
func BuildProjection(ds *model.Dataset, chartType model.ChartType) (*model.Projection, error) {
	if ds == nil || len(ds.Records) == 0 {
		return nil, model.NewNoDataAvailableError()
	}

	kinds := Classify(ds)

	xKey := selectXKey(ds.Headers, kinds)
	yKeys := selectYKeys(ds.Headers, kinds, xKey, chartType)

	var categoryKeys []string
	for _, h := range ds.Headers {
		if kinds[h] == model.ColumnCategorical {
			categoryKeys = append(categoryKeys, h)
		}
	}

	records := make([]model.ProjectedRecord, 0, len(ds.Records))
	for _, record := range ds.Records {
		projected := coerceRecord(record, ds.Headers, kinds)

		// 強制後にX軸値が空の行は除外する
		if isEmptyValue(projected[xKey]) {
			continue
		}
		records = append(records, projected)
	}

	return &model.Projection{
		Records:      records,
		XKey:         xKey,
		YKeys:        yKeys,
		CategoryKeys: categoryKeys,
		Kinds:        kinds,
	}, nil
}

// selectXKey はX軸に使用する列を選択する。
func selectXKey(headers []string, kinds map[string]model.ColumnKind) string {
	for _, h := range headers {
		if kinds[h] == model.ColumnDateLike {
			return h
		}
	}
	for _, h := range headers {
		if kinds[h] == model.ColumnCategorical {
			return h
		}
	}
	return headers[0]
}

// selectYKeys はY軸に使用するNumeric列を元の列順で選択する。
func selectYKeys(headers []string, kinds map[string]model.ColumnKind, xKey string, chartType model.ChartType) []string {
	limit := maxSeriesCount
	if chartType == model.ChartTypePie {
		limit = 1
	}

	var yKeys []string
	for _, h := range headers {
		if h == xKey || kinds[h] != model.ColumnNumeric {
			continue
		}
		yKeys = append(yKeys, h)
		if len(yKeys) == limit {
			break
		}
	}

	// X軸以外に候補が存在しない場合に限り、X軸列をY軸と兼用する
	if len(yKeys) == 0 && kinds[xKey] == model.ColumnNumeric {
		yKeys = []string{xKey}
	}

	return yKeys
}

// coerceRecord は1レコードの全列を推論された型に強制する。
func coerceRecord(record model.Record, headers []string, kinds map[string]model.ColumnKind) model.ProjectedRecord {
	projected := make(model.ProjectedRecord, len(headers))
	for _, h := range headers {
		raw := record[h]
		switch kinds[h] {
		case model.ColumnNumeric:
			if strings.TrimSpace(raw) == "" {
				projected[h] = nil
			} else {
				projected[h] = tabular.ParseAmount(raw)
			}
		case model.ColumnDateLike:
			if strings.TrimSpace(raw) == "" {
				projected[h] = ""
			} else {
				projected[h] = FormatDisplayDate(raw)
			}
		default:
			projected[h] = raw
		}
	}
	return projected
}

// isEmptyValue は強制後の値が空（nil・空文字列・空白のみ）かどうかを返す。
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
