package model

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type OperationalStatus string

const (
	Operational OperationalStatus = "operational"
	Suspended   OperationalStatus = "suspended"
	Deleted     OperationalStatus = "deleted"
)

type FeeType string

const (
	FeeNone       FeeType = ""
	FeeFixed      FeeType = "fixed"
	FeePercentage FeeType = "percentage"
)

// FeePolicy is the host's per-booking fee. Amount is used for fixed fees,
// BasisPoints (1/100 of a percent) of the subtotal for percentage fees.
type FeePolicy struct {
	Type        FeeType `json:"type,omitempty" bson:"type,omitempty" validate:"omitempty,oneof=fixed percentage"`
	Amount      int64   `json:"amount,omitempty" bson:"amount,omitempty" validate:"min=0"`
	BasisPoints int64   `json:"basis_points,omitempty" bson:"basis_points,omitempty" validate:"min=0,max=10000"`
}

type LongStayTier struct {
	MinNights   int   `json:"min_nights" bson:"min_nights" validate:"min=1"`
	BasisPoints int64 `json:"basis_points" bson:"basis_points" validate:"min=0,max=10000"`
}

type DiscountPolicy struct {
	LongStay []LongStayTier `json:"long_stay,omitempty" bson:"long_stay,omitempty" validate:"omitempty,dive"`
}

type Accommodation struct {
	ID                string            `json:"id" bson:"_id" validate:"required,max=64,entity_id"`
	HostID            string            `json:"host_id" bson:"host_id" validate:"required,max=64,entity_id"`
	Name              string            `json:"name" bson:"name" validate:"required,min=2,max=200"`
	NightlyRate       int64             `json:"nightly_rate" bson:"nightly_rate" validate:"min=0"`
	Currency          string            `json:"currency" bson:"currency" validate:"required,len=3,currency"`
	MaxGuests         int               `json:"max_guests" bson:"max_guests" validate:"required,min=1"`
	ApprovalStatus    ApprovalStatus    `json:"approval_status" bson:"approval_status" validate:"required,oneof=pending_approval approved rejected"`
	OperationalStatus OperationalStatus `json:"operational_status" bson:"operational_status" validate:"required,oneof=operational suspended deleted"`
	FeePolicy         FeePolicy         `json:"fee_policy" bson:"fee_policy"`
	DiscountPolicy    DiscountPolicy    `json:"discount_policy" bson:"discount_policy"`
	InstantBook       bool              `json:"instant_book" bson:"instant_book"`
	CreatedAt         time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" bson:"updated_at"`
}

// Bookable reports whether new stays may be booked right now.
func (a *Accommodation) Bookable() bool {
	return a.ApprovalStatus == ApprovalApproved && a.OperationalStatus == Operational
}

// AddOnService is an optional paid extra offered by an accommodation.
type AddOnService struct {
	ID              string `json:"id" bson:"_id" validate:"required,max=64,entity_id"`
	AccommodationID string `json:"accommodation_id" bson:"accommodation_id" validate:"required,max=64,entity_id"`
	Name            string `json:"name" bson:"name" validate:"required,max=200"`
	Price           int64  `json:"price" bson:"price" validate:"min=0"`
}
