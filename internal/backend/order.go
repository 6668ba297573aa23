package backend

// Wire shapes for order submission. Money crosses the wire as plain
// numbers with two-decimal values computed by the checkout orchestrator.

// OrderItem is one cart line as submitted to the backend.
type OrderItem struct {
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	ProductImage string  `json:"productImage,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	TotalPrice   float64 `json:"totalPrice"`
}

// ShippingAddress is the delivery address block of an order.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// OrderRequest is the order payload posted to the backend.
type OrderRequest struct {
	UserID          string          `json:"userId"`
	UserEmail       string          `json:"userEmail"`
	UserName        string          `json:"userName"`
	Items           []OrderItem     `json:"items"`
	Subtotal        float64         `json:"subtotal"`
	Tax             float64         `json:"tax"`
	ShippingCost    float64         `json:"shippingCost"`
	Total           float64         `json:"total"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Notes           string          `json:"notes,omitempty"`
}

// OrderResponse is the backend's reply to a created order.
type OrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}
