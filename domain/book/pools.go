package book

import (
	"github.com/eaglecoth/matching-engine/domain/market"
	"github.com/eaglecoth/matching-engine/infra/memory"
)

// Pools bundles the recycling stores for every hot-path object. One set is
// shared by all processors and the distributor; the pools are the only
// structures in the engine touched by more than one goroutine besides the
// message channels.
type Pools struct {
	Orders       *memory.Pool[Order]
	Levels       *memory.Pool[PriceLevel]
	Instructions *memory.Pool[market.Instruction]
	Executions   *memory.Pool[market.Execution]
}

func NewPools() Pools {
	return Pools{
		Orders:       memory.NewPool(func() *Order { return &Order{} }, (*Order).Reset),
		Levels:       memory.NewPool(func() *PriceLevel { return &PriceLevel{} }, (*PriceLevel).Reset),
		Instructions: memory.NewPool(func() *market.Instruction { return &market.Instruction{} }, (*market.Instruction).Reset),
		Executions:   memory.NewPool(func() *market.Execution { return &market.Execution{} }, (*market.Execution).Reset),
	}
}
