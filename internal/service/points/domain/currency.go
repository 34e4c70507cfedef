// internal/service/points/domain/currency.go
package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultFormatOptions 等级金额展示时使用的默认格式选项。
var DefaultFormatOptions = FormatOptions{Convert: true, Multiplier: 100}

// Currency 描述店面的展示货币。
// Rate 为店铺基础货币到展示货币的汇率，MoneyFormat 为店铺的金额模板 (例如 "¥{{amount_no_decimals}}")。
type Currency struct {
	Rate        float64 `json:"rate"`
	Code        string  `json:"code"`
	MoneyFormat string  `json:"moneyFormat"`
}

// FormatOptions 控制 Format 的换算方式。
type FormatOptions struct {
	Convert    bool    `json:"convert"`
	Multiplier float64 `json:"multiplier"`
	Format     string  `json:"format"`
}

// GetRate 返回汇率，缺失或非法时为 1。
func (c Currency) GetRate() float64 {
	if c.Rate <= 0 || math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) {
		return 1
	}
	return c.Rate
}

// Format 把最小货币单位的金额换算、取整后按店铺模板渲染。
func (c Currency) Format(amount float64, opts FormatOptions) string {
	rate := 1.0
	if opts.Convert {
		rate = c.GetRate()
	}
	multiplier := opts.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	cents := int64(math.Round(amount * rate * multiplier))

	format := opts.Format
	if format == "" {
		format = c.MoneyFormat
	}
	if format == "" {
		s := fmt.Sprintf("%.2f", float64(cents)/100)
		if c.Code == "" {
			return s
		}
		return s + " " + c.Code
	}
	return renderMoneyFormat(format, cents)
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

func renderMoneyFormat(format string, cents int64) string {
	return placeholderRe.ReplaceAllStringFunc(format, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		switch name {
		case "amount_no_decimals":
			return formatWithDelimiters(cents, 0, ",", ".")
		case "amount_with_comma_separator":
			return formatWithDelimiters(cents, 2, ".", ",")
		case "amount_no_decimals_with_comma_separator":
			return formatWithDelimiters(cents, 0, ".", ",")
		case "amount_with_apostrophe_separator":
			return formatWithDelimiters(cents, 2, "'", ".")
		case "amount_with_space_separator":
			return formatWithDelimiters(cents, 2, " ", ",")
		default:
			return formatWithDelimiters(cents, 2, ",", ".")
		}
	})
}

func formatWithDelimiters(cents int64, precision int, thousands, decimal string) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if precision == 0 {
		b.WriteString(groupDigits((cents+50)/100, thousands))
		return b.String()
	}
	b.WriteString(groupDigits(cents/100, thousands))
	b.WriteString(decimal)
	fmt.Fprintf(&b, "%02d", cents%100)
	return b.String()
}

// GetTaxedCost 返回参与积分计算的含税金额。
// 含税价或免税商品原样返回，否则按税率向下取整。tax 缺失时记录错误并返回原价。
func GetTaxedCost(price int64, tax *TaxInfo) int64 {
	if tax == nil {
		log.Error().Int64("price", price).Msg("[EasyPoints] Tax object not defined.")
		return price
	}
	if tax.Included || tax.Exempt {
		return price
	}
	return int64(math.Floor(float64(price) * tax.Rate))
}
