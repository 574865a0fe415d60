package applications

import "time"

type Type string

const (
	TypeInsurance Type = "insurance"
	TypeLoan      Type = "loan"
)

func (t Type) Valid() bool { return t == TypeInsurance || t == TypeLoan }

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Valid reports whether s is known. Any status may follow any other.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type PersonalInfo struct {
	FullName      string `json:"fullName" dynamodbav:"full_name" validate:"required,max=100"`
	Email         string `json:"email" dynamodbav:"email" validate:"required,email"`
	Phone         string `json:"phone" dynamodbav:"phone" validate:"required,phone"`
	DateOfBirth   string `json:"dateOfBirth,omitempty" dynamodbav:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender        string `json:"gender,omitempty" dynamodbav:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	MaritalStatus string `json:"maritalStatus,omitempty" dynamodbav:"marital_status,omitempty" validate:"omitempty,oneof=single married divorced widowed"`
	Address       string `json:"address,omitempty" dynamodbav:"address,omitempty" validate:"max=500"`
}

type FinancialInfo struct {
	MonthlyIncome  float64 `json:"monthlyIncome" dynamodbav:"monthly_income" validate:"gte=0"`
	EmploymentType string  `json:"employmentType,omitempty" dynamodbav:"employment_type,omitempty" validate:"omitempty,oneof=salaried self_employed business student retired unemployed"`
	CompanyName    string  `json:"companyName,omitempty" dynamodbav:"company_name,omitempty" validate:"max=200"`
	WorkExperience int     `json:"workExperience,omitempty" dynamodbav:"work_experience,omitempty" validate:"gte=0,lte=70"`
	PANNumber      string  `json:"panNumber,omitempty" dynamodbav:"pan_number,omitempty" validate:"omitempty,pan"`
	AadharNumber   string  `json:"aadharNumber,omitempty" dynamodbav:"aadhar_number,omitempty" validate:"omitempty,aadhaar"`
}

// Application is an item in the applications table. Only Status and
// AdminNotes change after submission.
type Application struct {
	ID              string                 `json:"id" dynamodbav:"application_id"`
	Type            Type                   `json:"type" dynamodbav:"type"`
	SubType         string                 `json:"subType" dynamodbav:"sub_type"`
	UserID          string                 `json:"userId" dynamodbav:"user_id"`
	PersonalInfo    PersonalInfo           `json:"personalInfo" dynamodbav:"personal_info"`
	FinancialInfo   FinancialInfo          `json:"financialInfo" dynamodbav:"financial_info"`
	SpecificDetails map[string]interface{} `json:"specificDetails,omitempty" dynamodbav:"specific_details,omitempty"`
	Status          Status                 `json:"status" dynamodbav:"status"`
	AdminNotes      string                 `json:"adminNotes" dynamodbav:"admin_notes"`
	CreatedAt       time.Time              `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time              `json:"updatedAt" dynamodbav:"updated_at"`
}

// SubmitRequest is the body of POST /api/applications.
type SubmitRequest struct {
	Type            Type                   `json:"type" validate:"required,oneof=insurance loan"`
	SubType         string                 `json:"subType" validate:"required,max=100"`
	PersonalInfo    PersonalInfo           `json:"personalInfo"`
	FinancialInfo   FinancialInfo          `json:"financialInfo"`
	SpecificDetails map[string]interface{} `json:"specificDetails"`
}

type ListFilter struct {
	Status Status
	Type   Type
}
