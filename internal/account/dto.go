package account

type CreateRequest struct {
	Code  string `json:"code" validate:"required,max=32"`
	Name  string `json:"name" validate:"required,max=255"`
	Class string `json:"class" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
}

type ImportRow struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Class    string `json:"class" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	IsActive *bool  `json:"isActive"`
}

type ImportRequest struct {
	Rows []ImportRow `json:"rows" validate:"required,min=1,max=5000,dive"`
}

type ListResponse struct {
	Accounts []*Account `json:"accounts"`
}
