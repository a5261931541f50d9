package domain

// VendorStatus is the onboarding state of a vendor.
type VendorStatus string

const (
	VendorPending   VendorStatus = "PENDING"
	VendorApproved  VendorStatus = "APPROVED"
	VendorSuspended VendorStatus = "SUSPENDED"
)

// KYCStatus is the know-your-customer verification state of a vendor.
type KYCStatus string

const (
	KYCPending  KYCStatus = "PENDING"
	KYCApproved KYCStatus = "APPROVED"
	KYCRejected KYCStatus = "REJECTED"
)

// Form1099Threshold is the minimum cumulative annual payment, in minor units,
// above which a US vendor becomes 1099-reportable.
const Form1099Threshold int64 = 60000

// Vendor is the payee side of contracts and invoices. Invoice validation
// requires an APPROVED vendor with APPROVED KYC.
type Vendor struct {
	VendorID       string       `json:"vendorID"`
	Name           string       `json:"name"`
	Status         VendorStatus `json:"status"`
	KYCStatus      KYCStatus    `json:"kycStatus"`
	Eligible1099   bool         `json:"eligible1099"`
	PaidYearToDate int64        `json:"paidYearToDate"`
	AuditFields
}

// Payable reports whether invoices for this vendor may proceed.
func (v *Vendor) Payable() bool {
	return v.Status == VendorApproved && v.KYCStatus == KYCApproved
}

// Reportable1099 reports whether the vendor's cumulative payments cross the
// 1099 reporting threshold.
func (v *Vendor) Reportable1099() bool {
	return v.Eligible1099 && v.PaidYearToDate >= Form1099Threshold
}
