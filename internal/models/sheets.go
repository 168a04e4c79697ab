package models

// Tab names in the backing spreadsheet.
const (
	SheetInventory   = "Kho"
	SheetAccessories = "Phụ kiện"
	SheetOrders      = "Đơn hàng"
	SheetCustomers   = "Khách hàng"
	SheetPackages    = "Gói bảo hành"
	SheetWarranty    = "Bảo hành"
	SheetHistory     = "Lịch sử"
)
