package service

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"receipt-server-go/internal/domain/receipt/model"
)

const (
	timestampLayout = "02.01.2006 15:04"
	labelTotal      = "TOTAL"
	labelChange     = "CHANGE"
	thankYouLine    = "Thank you for your purchase!"
)

// Render prints the receipt as fixed-width lines separated by "\n".
func Render(receipt *model.Receipt, merchant string, width int) string {
	var b strings.Builder
	line := func(s string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}

	line(center(merchant, width))
	line(strings.Repeat("=", width))

	var total float64
	for _, p := range receipt.Products {
		subtotal := p.Subtotal()
		total += subtotal
		line(strconv.FormatFloat(p.Quantity, 'f', 2, 64) + " x " + FormatMoney(p.Price))
		line(spread(p.Name, FormatMoney(subtotal), width))
		line(strings.Repeat("-", width))
	}

	line(strings.Repeat("=", width))
	line(spread(labelTotal, FormatMoney(total), width))
	line(spread(capitalize(receipt.Payment.Type), FormatMoney(receipt.Payment.Amount), width))
	line(spread(labelChange, FormatMoney(max(receipt.Payment.Amount-total, 0)), width))
	line(strings.Repeat("=", width))
	line(center(receipt.CreatedAt.Format(timestampLayout), width))
	line(center(thankYouLine, width))
	return b.String()
}

// FormatMoney renders v with two decimals and a space as thousands separator.
func FormatMoney(v float64) string {
	s := strconv.FormatFloat(model.Round2(v), 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(r)
	}
	return sign + grouped.String() + "." + frac
}

// spread puts left flush left and right flush right, keeping at least one
// space between them when the line overflows.
func spread(left, right string, width int) string {
	gap := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func center(s string, width int) string {
	pad := width - utf8.RuneCountInString(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}
