// Package reporting aggregates raw order, item and feedback rows into the
// figures shown on the admin dashboard. Nothing here touches the database.
package reporting

import (
	"sort"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
)

// ProductSales is one line of the product ranking.
type ProductSales struct {
	ProductID *int64
	Name      string
	Quantity  int64
	Revenue   decimal.Decimal
}

// Summary holds the dashboard figures for a period.
type Summary struct {
	Revenue       decimal.Decimal
	OrderCount    int
	AverageTicket decimal.Decimal
	Ranking       []ProductSales
	NPS           float64
	RatingMedian  float64
	RatingCount   int
}

// ClosedTable groups the closed orders of one table.
type ClosedTable struct {
	TableID     int64
	TableNumber int32
	Total       decimal.Decimal
	Orders      []database.ReportOrderRow
}

// Summarize computes revenue, ticket average, the product ranking and the
// rating figures. Items are ranked by product id when present, otherwise by
// their snapshot name.
func Summarize(orders []database.ReportOrderRow, items []database.OrderItem, feedbacks []database.Feedback) Summary {
	s := Summary{
		Revenue:       decimal.Zero,
		AverageTicket: decimal.Zero,
		OrderCount:    len(orders),
		Ranking:       []ProductSales{},
	}

	for _, o := range orders {
		s.Revenue = s.Revenue.Add(database.DecimalFromNumeric(o.Total))
	}
	if s.OrderCount > 0 {
		s.AverageTicket = s.Revenue.Div(decimal.NewFromInt(int64(s.OrderCount))).Round(2)
	}

	s.Ranking = rank(items)
	s.NPS, s.RatingMedian, s.RatingCount = ratings(feedbacks)
	return s
}

func rank(items []database.OrderItem) []ProductSales {
	byKey := make(map[string]*ProductSales)
	var order []string
	for _, it := range items {
		key := "name:" + it.Name
		if it.ProductID.Valid {
			key = "id:" + strconv.FormatInt(it.ProductID.Int64, 10)
		}
		ps, ok := byKey[key]
		if !ok {
			ps = &ProductSales{Name: it.Name, Revenue: decimal.Zero}
			if it.ProductID.Valid {
				id := it.ProductID.Int64
				ps.ProductID = &id
			}
			byKey[key] = ps
			order = append(order, key)
		}
		qty := int64(it.Quantity)
		ps.Quantity += qty
		ps.Revenue = ps.Revenue.Add(database.DecimalFromNumeric(it.Price).Mul(decimal.NewFromInt(qty)))
	}

	out := make([]ProductSales, len(order))
	for i, k := range order {
		out[i] = *byKey[k]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func ratings(feedbacks []database.Feedback) (mean, median float64, count int) {
	if len(feedbacks) == 0 {
		return 0, 0, 0
	}
	data := make(stats.Float64Data, len(feedbacks))
	for i, f := range feedbacks {
		data[i] = float64(f.Rating)
	}
	mean, _ = stats.Mean(data)
	median, _ = stats.Median(data)
	mean, _ = stats.Round(mean, 2)
	return mean, median, len(data)
}

// ClosedTables groups PAID and DELIVERED orders by table, ordered by table
// number. Other statuses are ignored.
func ClosedTables(orders []database.ReportOrderRow) []ClosedTable {
	byTable := make(map[int64]*ClosedTable)
	for _, o := range orders {
		if o.Status != enum.OrderStatusPaid && o.Status != enum.OrderStatusDelivered {
			continue
		}
		ct, ok := byTable[o.TableID]
		if !ok {
			ct = &ClosedTable{TableID: o.TableID, TableNumber: o.TableNumber, Total: decimal.Zero}
			byTable[o.TableID] = ct
		}
		ct.Total = ct.Total.Add(database.DecimalFromNumeric(o.Total))
		ct.Orders = append(ct.Orders, o)
	}

	out := make([]ClosedTable, 0, len(byTable))
	for _, ct := range byTable {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out
}

// Day returns the start of the day containing t and the start of the next
// day, in t's location.
func Day(t time.Time) (from, to time.Time) {
	from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 0, 1)
}
