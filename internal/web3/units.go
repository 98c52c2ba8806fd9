package web3

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatUnits 将最小单位的整数金额格式化为十进制字符串，去掉多余的尾零。
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	negative := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))

	result := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		fraction := strings.Repeat("0", decimals-len(digits)) + digits
		result += "." + strings.TrimRight(fraction, "0")
	}
	if negative {
		result = "-" + result
	}
	return result
}

// ParseUnits 将十进制金额字符串换算为最小单位。
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("金额不能为空")
	}
	if strings.HasPrefix(value, "-") {
		return nil, fmt.Errorf("金额不能为负数: %s", value)
	}

	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("金额 %s 超出 %d 位小数精度", value, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))

	amount, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("无法解析金额: %s", value)
	}
	return amount, nil
}
