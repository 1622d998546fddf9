// Package sheet はスプレッドシートのデータ取り込み機能を提供する。
// URLからのスプレッドシート識別、公開CSVエクスポートの取得、
// 認証付きvalues APIの呼び出し、およびチャート投影までのパイプラインを含む。
package sheet

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/sheetgate/internal/model"
)

// spreadsheetIDPattern はURLパス中のスプレッドシートIDを抽出するパターン。
// 例: https://docs.google.com/spreadsheets/d/<id>/edit#gid=0
var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// gidFragmentPattern はフラグメント中のgid指定を抽出するパターン。
var gidFragmentPattern = regexp.MustCompile(`gid=(\d+)`)

// Ref はURLから特定されたスプレッドシートへの参照を表す。
type Ref struct {
	SpreadsheetID string
	GID           string // シート識別子。未指定の場合は "0"（先頭シート）
}

// ParseURL はスプレッドシートのURLからRefを抽出する。
// IDはパスセグメント /spreadsheets/d/<id>/ から、gidはクエリパラメータ
// ?gid=<n> またはフラグメント #gid=<n> から取り出す。両方に存在する場合は
// クエリパラメータを優先する。gid未指定は先頭シートを指す "0" になる。
func ParseURL(rawURL string) (*Ref, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	match := spreadsheetIDPattern.FindStringSubmatch(parsed.Path)
	if match == nil {
		return nil, model.NewInvalidURLError("スプレッドシートIDがURLに含まれていません")
	}

	gid := "0"
	if q := parsed.Query().Get("gid"); q != "" {
		gid = q
	} else if m := gidFragmentPattern.FindStringSubmatch(parsed.Fragment); m != nil {
		gid = m[1]
	}

	return &Ref{
		SpreadsheetID: match[1],
		GID:           gid,
	}, nil
}

// CSVExportURL は公開CSVエクスポートエンドポイントのURLを構築する。
// シートが「リンクを知っている全員に公開」設定の場合のみ取得できる。
func (r *Ref) CSVExportURL() string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s",
		url.PathEscape(r.SpreadsheetID), url.QueryEscape(r.GID))
}
