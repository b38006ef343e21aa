package clients

// CreateClientRequest registers a new client.
type CreateClientRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Document string `json:"document" validate:"max=40"`
	Phone    string `json:"phone" validate:"max=30"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// UpdateClientRequest changes a client's contact data.
type UpdateClientRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Document string `json:"document" validate:"max=40"`
	Phone    string `json:"phone" validate:"max=30"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// CreateVehicleRequest registers a vehicle under a client.
type CreateVehicleRequest struct {
	Plate string `json:"plate" validate:"required,max=12"`
	Make  string `json:"make" validate:"max=60"`
	Model string `json:"model" validate:"max=60"`
	Year  int    `json:"year" validate:"omitempty,gte=1900,lte=2100"`
}
