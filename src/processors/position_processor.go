package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/holdfolio/backend/src/models"
)

// averageCostPlaces is the precision stored for average cost.
const averageCostPlaces = 4

// Position is the aggregate of every trade of one PositionKey.
type Position struct {
	Quantity    decimal.Decimal
	TotalCost   decimal.Decimal
	AverageCost decimal.Decimal
}

// Open reports whether the position still holds units.
func (p Position) Open() bool {
	return p.Quantity.IsPositive()
}

// MarketValue values the position at price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// PositionProcessor folds a transaction history into a Position using
// straight-line cost averaging.
type PositionProcessor struct{}

func NewPositionProcessor() *PositionProcessor { return &PositionProcessor{} }

// Calculate sums signed quantities and costs. A BUY adds qty*price+fees to the
// cost, a SELL removes qty*price-fees. Average cost is only defined while the
// quantity is positive. The result does not depend on transaction order.
func (p *PositionProcessor) Calculate(txs []models.Transaction) Position {
	pos := Position{Quantity: decimal.Zero, TotalCost: decimal.Zero, AverageCost: decimal.Zero}
	for _, tx := range txs {
		gross := tx.Quantity.Mul(tx.Price)
		switch tx.Side {
		case models.SideBuy:
			pos.Quantity = pos.Quantity.Add(tx.Quantity)
			pos.TotalCost = pos.TotalCost.Add(gross.Add(tx.Fees))
		case models.SideSell:
			pos.Quantity = pos.Quantity.Sub(tx.Quantity)
			pos.TotalCost = pos.TotalCost.Sub(gross.Sub(tx.Fees))
		}
	}
	if pos.Open() {
		pos.AverageCost = pos.TotalCost.Div(pos.Quantity).Round(averageCostPlaces)
	}
	return pos
}
