package forecast

// LocationProduct keys a forecast quantity.
type LocationProduct struct {
	LocationID int64
	ProductID  int64
}

// Quantities maps (location, product) to a forecast on-hand quantity.
type Quantities map[LocationProduct]float64

// Get returns the quantity for the pair, zero when absent.
func (q Quantities) Get(locationID, productID int64) float64 {
	return q[LocationProduct{LocationID: locationID, ProductID: productID}]
}
