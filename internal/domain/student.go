package domain

import (
	"cmp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Student is the roster view this service reads from the student registry.
type Student struct {
	ID        string
	SchoolID  string
	ClassID   string
	ClassName string
	Name      string
	RollNum   string
}

type InvoiceView struct {
	Invoice
	StudentName string
	RollNum     string
}

type DefaulterRow struct {
	StudentID   string
	StudentName string
	RollNum     string
	TotalDue    decimal.Decimal
}

type SearchResultRow struct {
	StudentID   string
	RollNum     string
	StudentName string
	ClassName   string
	TotalPaid   decimal.Decimal
	TotalDue    decimal.Decimal
}

type FeeHistory struct {
	StudentID   string
	StudentName string
	ClassName   string
	TotalDue    decimal.Decimal
	TotalPaid   decimal.Decimal
	Invoices    []Invoice
}

// CompareRollNum orders numeric roll numbers numerically and everything else lexically.
func CompareRollNum(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
