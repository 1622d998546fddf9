package tabular

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// 地域的な桁区切りサフィックスの倍率。
// ラーク（lakh）は10万、クロー（crore）は1000万を表す。
const (
	lakhMultiplier  = 100_000
	croreMultiplier = 10_000_000
)

var (
	// exoticSpaceRe はノーブレークスペース等の特殊空白にマッチする。
	exoticSpaceRe = regexp.MustCompile(`[\x{00A0}\x{2000}-\x{200B}\x{202F}\x{3000}\t]`)
	// currencyTokenRe は通貨トークン（INR表記とルピー記号）にマッチする。
	currencyTokenRe = regexp.MustCompile(`(?i)(₹|inr|rupees|rs\.?)`)
	// slashDashRe は末尾の「/-」マーカーにマッチする。
	slashDashRe = regexp.MustCompile(`/-\s*$`)
	// allowedCharsRe は許可文字集合の外にある文字にマッチする。
	allowedCharsRe = regexp.MustCompile(`[^0-9.,a-zA-Z \-]`)
	// magnitudeSuffixRe は末尾の桁区切りサフィックスにマッチする。
	magnitudeSuffixRe = regexp.MustCompile(`(?i)\s*(lakhs?|crores?|cr|l|c)\s*$`)
)

// ParseAmount は任意の生値からベストエフォートで金額を導出する。
// 通貨記号、桁区切り、括弧による負数表記、地域的な倍率サフィックス
// （ラーク/クロー）を許容する。決定的かつ全域的であり、例外を送出せず、
// パース不能な入力には0を返す。
//
// 既知の制約: カンマとドットが両方含まれる場合はドットを小数点とみなして
// カンマを除去するため、欧州式の「1.234,56」は誤パースされる。
// この米国式の仮定は表示金額の互換性のため意図的に維持されている。
func ParseAmount(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return finiteOrZero(v)
	case float32:
		return finiteOrZero(float64(v))
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		return parseAmountString(v)
	default:
		return 0
	}
}

// parseAmountString は文字列からの金額パース本体。
func parseAmountString(s string) float64 {
	// 特殊空白を通常スペースに正規化してトリム
	s = exoticSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// 括弧表記は負数を表す: (123.45) -> -123.45
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// 通貨トークンと末尾の「/-」マーカーを除去
	s = currencyTokenRe.ReplaceAllString(s, "")
	s = slashDashRe.ReplaceAllString(s, "")

	// 許可文字集合の外の文字を除去
	s = allowedCharsRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	// 桁区切りサフィックスの検出と除去
	multiplier := 1.0
	if m := magnitudeSuffixRe.FindStringSubmatch(s); m != nil {
		switch strings.ToLower(m[1])[0] {
		case 'l':
			multiplier = lakhMultiplier
		case 'c':
			multiplier = croreMultiplier
		}
		s = strings.TrimSpace(s[:len(s)-len(m[0])])
	}

	// サフィックス除去後に英字が残る場合はパース不能として扱う
	if strings.ContainsFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}) {
		return 0
	}

	// 桁区切りカンマの除去。カンマとドットが併存する場合はドットを
	// 小数点とみなし、カンマのみの場合も桁区切りとみなす。
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ",", "")
	}

	// 先頭の負号のみを許可し、それ以外の「-」は除去する
	leadingMinus := strings.HasPrefix(s, "-")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if leadingMinus {
		s = "-" + s
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	n *= multiplier

	// 括弧による負数フラグはパース結果が正の場合にのみ適用する
	if negative && n > 0 {
		n = -n
	}

	return finiteOrZero(n)
}

// finiteOrZero は非有限値を0に丸める。
func finiteOrZero(n float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}
