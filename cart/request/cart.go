package request

// AddCartItem adds one unit when Quantity is omitted.
type AddCartItem struct {
	ProductID int `validate:"required,gt=0"   json:"productId"`
	Quantity  int `validate:"omitempty,gte=1" json:"quantity"`
}

type UpdateCartItem struct {
	Quantity int `json:"quantity"`
}
