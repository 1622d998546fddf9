// Package model はドメインモデルを定義する。
package model

// Record は正規化されたデータ行を表す。
// キーはスプレッドシートのヘッダー名。列の順序はDataset.Headersが保持する。
type Record map[string]string

// Dataset は正規化済みレコードの集合を表す。
// Headersは元のヘッダー行の出現順を保持する。
type Dataset struct {
	Headers []string
	Records []Record
}

// ColumnKind は列の推論された型分類を表す。
type ColumnKind string

const (
	// ColumnNumeric は数値列。
	ColumnNumeric ColumnKind = "numeric"
	// ColumnDateLike は日付列。
	ColumnDateLike ColumnKind = "date"
	// ColumnCategorical はカテゴリ列。
	ColumnCategorical ColumnKind = "categorical"
)

// ChartType はチャートの描画種別を表す。
type ChartType string

const (
	// ChartTypeLine は折れ線チャート。
	ChartTypeLine ChartType = "line"
	// ChartTypeBar は棒チャート。
	ChartTypeBar ChartType = "bar"
	// ChartTypePie は円チャート。Y軸は1系列に制限される。
	ChartTypePie ChartType = "pie"
)

// ParseChartType はチャート種別文字列を検証して返す。
// 空文字列の場合は折れ線チャートが採用される。
func ParseChartType(raw string) (ChartType, error) {
	switch ChartType(raw) {
	case ChartTypeLine, ChartTypeBar, ChartTypePie:
		return ChartType(raw), nil
	case "":
		return ChartTypeLine, nil
	default:
		return "", NewInvalidArgumentError("未対応のチャート種別です: " + raw)
	}
}

// ProjectedRecord は型強制後の1行を表す。
// 数値列はfloat64、日付列は表示用文字列、カテゴリ列はstringの値を持つ。
type ProjectedRecord map[string]any

// Projection はチャート描画用に導出されたデータビューを表す。
// 不変条件: XKeyは代替候補が存在する限りYKeysに含まれない。
// 再計算のたびに丸ごと差し替えられ、部分的に書き換えられることはない。
type Projection struct {
	Records      []ProjectedRecord     `json:"records"`
	XKey         string                `json:"xKey"`
	YKeys        []string              `json:"yKeys"`
	CategoryKeys []string              `json:"categoryKeys"`
	Kinds        map[string]ColumnKind `json:"kinds"`
}
