package validation

import (
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront/internal/applications"
)

var (
	pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	phoneRe   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	panRe     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarRe = regexp.MustCompile(`^[0-9]{12}$`)
)

// New returns a validator with the storefront's custom tags and struct-level
// rules registered. Field names in errors follow the json tags.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	for tag, re := range map[string]*regexp.Regexp{
		"pincode": pincodeRe,
		"phone":   phoneRe,
		"pan":     panRe,
		"aadhaar": aadhaarRe,
	} {
		// only fails on programmer error (duplicate or empty tag)
		if err := v.RegisterValidation(tag, func(fl validatorv10.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}

	v.RegisterStructValidation(applicationStructValidation, applications.SubmitRequest{})

	return v
}

// applicationStructValidation requires a positive monthly income on loans.
func applicationStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(applications.SubmitRequest)

	if req.Type == applications.TypeLoan && req.FinancialInfo.MonthlyIncome <= 0 {
		sl.ReportError(req.FinancialInfo.MonthlyIncome, "financialInfo.monthlyIncome", "MonthlyIncome", "loan_income", "")
	}
}
