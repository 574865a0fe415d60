package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

func validAddress() orders.ShippingAddress {
	return orders.ShippingAddress{
		Name: "Asha", Phone: "9876543210", Street: "1 MG Road",
		City: "Pune", State: "MH", Pincode: "411001",
	}
}

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		Items:           []orders.LineRequest{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: validAddress(),
		PaymentDetails:  orders.PaymentDetails{Method: "cod"},
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_Invalid(t *testing.T) {
	v := New()

	cases := map[string]func(r *CreateOrderRequest){
		"no items":         func(r *CreateOrderRequest) { r.Items = nil },
		"zero quantity":    func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"bad pincode":      func(r *CreateOrderRequest) { r.ShippingAddress.Pincode = "011001" },
		"short pincode":    func(r *CreateOrderRequest) { r.ShippingAddress.Pincode = "41100" },
		"landline phone":   func(r *CreateOrderRequest) { r.ShippingAddress.Phone = "0201234567" },
		"missing method":   func(r *CreateOrderRequest) { r.PaymentDetails.Method = "" },
		"unknown pay stat": func(r *CreateOrderRequest) { r.PaymentDetails.Status = "refunded" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := CreateOrderRequest{
				Items:           []orders.LineRequest{{ProductID: "p1", Quantity: 1}},
				ShippingAddress: validAddress(),
				PaymentDetails:  orders.PaymentDetails{Method: "cod"},
			}
			mutate(&req)
			if err := v.Struct(req); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func validApplication() applications.SubmitRequest {
	return applications.SubmitRequest{
		Type:    applications.TypeLoan,
		SubType: "personal",
		PersonalInfo: applications.PersonalInfo{
			FullName: "Ravi Kumar", Email: "ravi@example.com", Phone: "9123456789",
			DateOfBirth: "1990-04-12",
		},
		FinancialInfo: applications.FinancialInfo{
			MonthlyIncome: 55000, PANNumber: "ABCDE1234F", AadharNumber: "123412341234",
		},
	}
}

func TestSubmitApplication_Rules(t *testing.T) {
	v := New()

	if err := v.Struct(validApplication()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	insurance := validApplication()
	insurance.Type = applications.TypeInsurance
	insurance.FinancialInfo.MonthlyIncome = 0
	if err := v.Struct(insurance); err != nil {
		t.Fatalf("insurance without income should pass, got: %v", err)
	}

	cases := map[string]func(r *applications.SubmitRequest){
		"loan without income": func(r *applications.SubmitRequest) { r.FinancialInfo.MonthlyIncome = 0 },
		"lowercase pan":       func(r *applications.SubmitRequest) { r.FinancialInfo.PANNumber = "abcde1234f" },
		"short aadhaar":       func(r *applications.SubmitRequest) { r.FinancialInfo.AadharNumber = "12341234" },
		"bad email":           func(r *applications.SubmitRequest) { r.PersonalInfo.Email = "ravi" },
		"bad dob":             func(r *applications.SubmitRequest) { r.PersonalInfo.DateOfBirth = "12/04/1990" },
		"unknown type":        func(r *applications.SubmitRequest) { r.Type = "mortgage" },
		"missing subtype":     func(r *applications.SubmitRequest) { r.SubType = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validApplication()
			mutate(&req)
			if err := v.Struct(req); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestFieldErrors_UsesJSONPaths(t *testing.T) {
	v := New()
	req := validApplication()
	req.FinancialInfo.MonthlyIncome = 0
	req.PersonalInfo.Phone = "12345"

	fields := FieldErrors(v.Struct(req))

	if got := fields["financialInfo.monthlyIncome"]; got != "must be greater than 0 for loan applications" {
		t.Fatalf("unexpected monthlyIncome message: %q (all: %v)", got, fields)
	}
	if _, ok := fields["personalInfo.phone"]; !ok {
		t.Fatalf("expected personalInfo.phone error, got %v", fields)
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var req OrderStatusRequest
		if err := BindAndValidate(c, &req, v); err != nil {
			return
		}
		c.String(http.StatusOK, string(req.Status))
	})

	cases := []struct {
		body     string
		wantCode int
		wantBody string
	}{
		{`{"status":"shipped"}`, http.StatusOK, "shipped"},
		{`{"status":"lost"}`, http.StatusBadRequest, `"status":"must be one of`},
		{`{"status":`, http.StatusBadRequest, "invalid request body"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
		if w.Code != tc.wantCode {
			t.Fatalf("body %s: expected %d, got %d", tc.body, tc.wantCode, w.Code)
		}
		if !strings.Contains(w.Body.String(), tc.wantBody) {
			t.Fatalf("body %s: expected %q in %s", tc.body, tc.wantBody, w.Body.String())
		}
	}
}
