package request

type CheckoutForm struct {
	FirstName  string `validate:"required"                json:"firstName"`
	LastName   string `validate:"required"                json:"lastName"`
	Email      string `validate:"required,email"          json:"email"`
	Phone      string `validate:"required"                json:"phone"`
	Address    string `validate:"required"                json:"address"`
	City       string `validate:"required"                json:"city"`
	PostalCode string `validate:"required"                json:"postalCode"`
	Country    string `validate:"required"                json:"country"`
	CardNumber string `validate:"required,numeric,min=12" json:"cardNumber"`
	CardExpiry string `validate:"required,cardexpiry"     json:"cardExpiry"`
	CardCvc    string `validate:"required,numeric,len=3"  json:"cardCvc"`
}
