package config

// Conditions are default factoring terms in basis points.
type Conditions struct {
	FeeBps     uint32 `toml:"FeeBps"`
	UpfrontBps uint32 `toml:"UpfrontBps"`
	OwnerBps   uint32 `toml:"OwnerBps"`
}

// Pauses seeds the module pause flags at genesis.
type Pauses struct {
	Factoring bool `toml:"Factoring"`
}

// Allocation credits an account with an initial token balance at genesis.
// Amount is a base-10 integer in the token's smallest unit.
type Allocation struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

// Genesis describes the state written into an empty data directory.
type Genesis struct {
	Allocations []Allocation `toml:"Allocations"`
}
