package orders

import "time"

// Status is the fulfilment status of an order.
type Status string

// Order statuses
const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status. Every status may follow any other.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks whether the gateway confirmed payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentCompleted
}

// maxDistinctProducts bounds one order so its transaction stays well under
// the DynamoDB item limit.
const maxDistinctProducts = 50

// Item is an order line with the price and name captured at purchase.
type Item struct {
	ProductID string  `json:"productId" dynamodbav:"product_id"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
	Price     float64 `json:"price" dynamodbav:"price"`
	Name      string  `json:"name" dynamodbav:"name"`
}

type ShippingAddress struct {
	Name    string `json:"name" dynamodbav:"name" validate:"required,max=100"`
	Phone   string `json:"phone" dynamodbav:"phone" validate:"required,phone"`
	Street  string `json:"street" dynamodbav:"street" validate:"required,max=300"`
	City    string `json:"city" dynamodbav:"city" validate:"required,max=100"`
	State   string `json:"state" dynamodbav:"state" validate:"required,max=100"`
	Pincode string `json:"pincode" dynamodbav:"pincode" validate:"required,pincode"`
}

type PaymentDetails struct {
	Method    string        `json:"method" dynamodbav:"method" validate:"required,max=50"`
	Status    PaymentStatus `json:"status" dynamodbav:"status" validate:"omitempty,oneof=pending completed"`
	PaymentID string        `json:"paymentId,omitempty" dynamodbav:"payment_id,omitempty"`
	OrderID   string        `json:"orderId,omitempty" dynamodbav:"order_id,omitempty"`
	Signature string        `json:"signature,omitempty" dynamodbav:"signature,omitempty"`
}

// Order represents the item stored in the orders DynamoDB table. Items and
// TotalAmount never change after creation.
type Order struct {
	ID              string          `json:"id" dynamodbav:"order_id"` // PK
	UserID          string          `json:"userId" dynamodbav:"user_id"`
	Items           []Item          `json:"items" dynamodbav:"items"`
	TotalAmount     float64         `json:"totalAmount" dynamodbav:"total_amount"`
	ShippingAddress ShippingAddress `json:"shippingAddress" dynamodbav:"shipping_address"`
	PaymentDetails  PaymentDetails  `json:"paymentDetails" dynamodbav:"payment_details"`
	Status          Status          `json:"status" dynamodbav:"status"`
	CreatedAt       time.Time       `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" dynamodbav:"updated_at"`
}

// LineRequest is one requested cart line. Only product and quantity are
// taken from the client.
type LineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// PlaceOrderInput carries everything PlaceOrder needs.
type PlaceOrderInput struct {
	UserID          string
	Items           []LineRequest
	ShippingAddress ShippingAddress
	PaymentDetails  PaymentDetails
	// IdempotencyKey, when set, must name an IN_PROGRESS idempotency record.
	IdempotencyKey string
}

type ListFilter struct {
	Status Status
}
