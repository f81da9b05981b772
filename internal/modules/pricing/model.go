// README: Fare rules for each ride category.
package pricing

const (
	NormalBidFloor = 10
	NormalBidStep  = 10
	NormalBidCap   = 40
	VIPFare        = 40
	AdvanceBase    = 10
	AdvancePerHead = 10
	AdvanceLuggage = 10
)

type Rate struct {
	Category   string
	BaseFare   int64
	PerPerson  int64
	PerLuggage int64
	BidFloor   int64
	BidStep    int64
	BidCap     int64
}

// Bidding reports whether the rider chooses the amount within the rate's bid range.
func (r Rate) Bidding() bool { return r.BidStep > 0 }

var rates = map[string]Rate{
	"normal":  {Category: "normal", BidFloor: NormalBidFloor, BidStep: NormalBidStep, BidCap: NormalBidCap},
	"vip":     {Category: "vip", BaseFare: VIPFare},
	"advance": {Category: "advance", BaseFare: AdvanceBase, PerPerson: AdvancePerHead, PerLuggage: AdvanceLuggage},
}

type Request struct {
	Category string
	// Bid is the rider's Normal-ride offer; zero means the floor.
	Bid     int64
	Persons int
	Luggage int
}

type Result struct {
	Total     int64
	Currency  string
	Breakdown map[string]int64
}
