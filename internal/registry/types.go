package registry

// vehiclePage models one page of the upstream vehicle listing.
type vehiclePage struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Total   int           `json:"total"`
	Data    []vehicleItem `json:"data"`
	Error   string        `json:"error"`
}

// vehicleItem is a single vehicle record from the upstream API.
type vehicleItem struct {
	ID      int64  `json:"id"`
	Plate   string `json:"placa"`
	Color   string `json:"color"`
	Model   string `json:"modelo"`
	Brand   string `json:"marca"`
	Type    string `json:"tipo"`
	OwnerID *int64 `json:"usuario_id_usuario"`
}
