package dto

// RegisterVendorRequest registers or updates a vendor in the registry.
type RegisterVendorRequest struct {
	VendorID     string `json:"vendorID"`
	Name         string `json:"name" binding:"required"`
	Eligible1099 bool   `json:"eligible1099"`
}
