// README: Feedback and refund request documents.
package support

import "time"

// UnknownRollNo is recorded when feedback comes from someone without a student profile.
const UnknownRollNo = "Unknown"

type Feedback struct {
	ID            string    `json:"id"`
	Text          string    `json:"feedback"`
	StudentRollNo string    `json:"studentRollNo"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Refund struct {
	ID              string    `json:"id"`
	Name            string    `json:"name" validate:"required"`
	Email           string    `json:"email" validate:"required,email"`
	RiderName       string    `json:"riderName" validate:"required"`
	RideNo          string    `json:"rideNo" validate:"required"`
	RefundAmount    string    `json:"refundAmount" validate:"required,numeric"`
	ReceivingNumber string    `json:"receivingNumber" validate:"required"`
	Reason          string    `json:"reason" validate:"required"`
	TransactionID   string    `json:"transactionId" validate:"required"`
	SubmittedBy     string    `json:"submittedBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
