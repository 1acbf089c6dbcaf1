// Package train defines the wire types exchanged with the train-schedule
// search endpoint. Field names follow the upstream snake_case contract.
package train

// Request identifies one schedule lookup.
type Request struct {
	From string `json:"from" jsonschema:"description=出发地城市或车站名"`
	To   string `json:"to" jsonschema:"description=目的地城市或车站名"`
	Date string `json:"date" jsonschema:"description=出发日期，格式为YYYY-MM-DD"`
}

// QueryInfo echoes the resolved query back to the caller.
type QueryInfo struct {
	FromStation string `json:"from_station"`
	ToStation   string `json:"to_station"`
	Date        string `json:"date"`
	Timestamp   string `json:"timestamp"`
}

// Seat describes one fare class on a train.
type Seat struct {
	Name      string  `json:"seat_name"`
	Price     float64 `json:"seat_price"`
	Bookable  bool    `json:"seat_bookable"`
	Inventory int     `json:"seat_inventory"`
}

// Info describes one matching train service.
type Info struct {
	Number        string `json:"train_number"`
	DepartStation string `json:"depart_station"`
	ArriveStation string `json:"arrive_station"`
	DepartTime    string `json:"depart_time"`
	ArriveTime    string `json:"arrive_time"`
	Bookable      bool   `json:"is_bookable"`
	Seats         []Seat `json:"seats"`
}

// QueryResult is the structured lookup outcome handed to the model. An empty
// Trains slice is the deterministic "no data" value.
type QueryResult struct {
	QueryInfo QueryInfo `json:"query_info"`
	Trains    []Info    `json:"trains"`
}
