package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"school-fees/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type GenerateInvoicesRequest struct {
	SchoolID string `json:"school_id" validate:"required"`
	ClassID  string `json:"class_id" validate:"required"`
	Month    int    `json:"month" validate:"required,min=1,max=12"`
	Year     int    `json:"year" validate:"required,min=1"`
}

type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// PaymentDate returns the zero time when no date was sent, which the ledger
// replaces with today.
func (r RecordPaymentRequest) PaymentDate() time.Time {
	if r.Date == "" {
		return time.Time{}
	}
	t, _ := time.Parse(dateLayout, r.Date)
	return t
}

type CreateFeeHeadRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type UpdateFeeHeadRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type FeeStructureHeadRequest struct {
	HeadID string          `json:"head_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type PutFeeStructureRequest struct {
	Heads   []FeeStructureHeadRequest `json:"heads" validate:"dive"`
	LateFee decimal.Decimal           `json:"late_fee"`
	DueDay  int                       `json:"due_day" validate:"required,min=1,max=31"`
}

func (r PutFeeStructureRequest) ToDomain(classID string, year int) domain.FeeStructure {
	fs := domain.FeeStructure{
		ClassID: classID,
		Year:    year,
		LateFee: r.LateFee,
		DueDay:  r.DueDay,
	}
	for _, h := range r.Heads {
		fs.Heads = append(fs.Heads, domain.FeeStructureHead{HeadID: h.HeadID, Amount: h.Amount})
	}
	return fs
}

type ExportDefaultersRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

type ExportInvoicesRequest struct {
	ClassID string   `json:"class_id" validate:"required"`
	Month   int      `json:"month" validate:"required,min=1,max=12"`
	Year    int      `json:"year" validate:"required,min=1"`
	Status  []string `json:"status" validate:"dive,oneof=Pending Partial Paid"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads the body into dst and validates it. An empty body is
// validated as the zero value.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return &ValidationError{Field: "body", Message: "invalid JSON"}
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return &ValidationError{Field: field, Message: validationMessage(field, fe)}
}

func validationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not be empty", field)
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return field + " must be YYYY-MM-DD"
	default:
		return field + " is invalid"
	}
}

func queryString(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", &ValidationError{Field: name, Message: name + " is required"}
	}
	return v, nil
}

func toStringPtr(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(r *http.Request, name string) (int, error) {
	raw, err := queryString(r, name)
	if err != nil {
		return 0, err
	}
	return toInt(name, raw)
}

func toInt(name, raw string) (int, error) {
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{Field: name, Message: name + " must be an integer"}
	}
	return i, nil
}

// parseStatuses accepts repeated values and comma separated lists.
func parseStatuses(values []string) ([]domain.InvoiceStatus, error) {
	var out []domain.InvoiceStatus
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st, ok := domain.ParseInvoiceStatus(part)
			if !ok {
				return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", part)}
			}
			out = append(out, st)
		}
	}
	return out, nil
}
