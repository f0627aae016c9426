package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/reporting"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	ListOrdersForReport(ctx context.Context, arg database.ReportRangeParams) ([]database.ReportOrderRow, error)
	ListOrderItemsForReport(ctx context.Context, arg database.ReportRangeParams) ([]database.OrderItem, error)
	ListFeedbacks(ctx context.Context) ([]database.Feedback, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	store ReportsStore
	now   func() time.Time
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store, now: time.Now}
}

// RegisterRoutes registers admin report endpoints.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/reports/summary", h.Summary)
	r.Get("/orders/closed-today", h.ClosedToday)
}

// --- Response types ---

type productSalesResponse struct {
	ProductID *int64 `json:"productId"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Revenue   string `json:"revenue"`
}

type summaryResponse struct {
	From          *time.Time             `json:"from"`
	To            *time.Time             `json:"to"`
	Revenue       string                 `json:"revenue"`
	OrderCount    int                    `json:"orderCount"`
	AverageTicket string                 `json:"averageTicket"`
	Ranking       []productSalesResponse `json:"ranking"`
	NPS           float64                `json:"nps"`
	RatingMedian  float64                `json:"ratingMedian"`
	RatingCount   int                    `json:"ratingCount"`
}

type closedOrderResponse struct {
	ID            int64     `json:"id"`
	Status        string    `json:"status"`
	Total         string    `json:"total"`
	PaymentMethod *string   `json:"paymentMethod"`
	Timestamp     time.Time `json:"timestamp"`
}

type closedTableResponse struct {
	TableID     int64                 `json:"tableId"`
	TableNumber int32                 `json:"tableNumber"`
	Total       string                `json:"total"`
	Orders      []closedOrderResponse `json:"orders"`
}

// closedTableCSV is one row of the closed-today CSV export.
type closedTableCSV struct {
	TableNumber int32  `csv:"table_number"`
	Orders      int    `csv:"orders"`
	Total       string `csv:"total"`
}

// --- Handlers ---

// Summary returns revenue, ticket average, product ranking and ratings.
// Optional from/to (YYYY-MM-DD, server local time) bound the period; to is
// inclusive.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseReportRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rng := database.ReportRangeParams{From: timestamptz(from), To: timestamptz(to)}

	var (
		orders    []database.ReportOrderRow
		items     []database.OrderItem
		feedbacks []database.Feedback
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		orders, err = h.store.ListOrdersForReport(ctx, rng)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = h.store.ListOrderItemsForReport(ctx, rng)
		return err
	})
	g.Go(func() error {
		var err error
		feedbacks, err = h.store.ListFeedbacks(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		internalError(w, "load report data", err)
		return
	}

	s := reporting.Summarize(orders, items, feedbacksInRange(feedbacks, from, to))

	resp := summaryResponse{
		From:          from,
		To:            to,
		Revenue:       s.Revenue.StringFixed(2),
		OrderCount:    s.OrderCount,
		AverageTicket: s.AverageTicket.StringFixed(2),
		Ranking:       make([]productSalesResponse, len(s.Ranking)),
		NPS:           s.NPS,
		RatingMedian:  s.RatingMedian,
		RatingCount:   s.RatingCount,
	}
	for i, p := range s.Ranking {
		resp.Ranking[i] = productSalesResponse{
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Revenue:   p.Revenue.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClosedToday groups today's PAID and DELIVERED orders by table.
// ?format=csv returns one CSV row per table.
func (h *ReportsHandler) ClosedToday(w http.ResponseWriter, r *http.Request) {
	from, to := reporting.Day(h.now())

	orders, err := h.store.ListOrdersForReport(r.Context(), database.ReportRangeParams{
		From: timestamptz(&from),
		To:   timestamptz(&to),
	})
	if err != nil {
		internalError(w, "list closed orders", err)
		return
	}
	tables := reporting.ClosedTables(orders)

	if r.URL.Query().Get("format") == "csv" {
		rows := make([]closedTableCSV, len(tables))
		for i, t := range tables {
			rows[i] = closedTableCSV{
				TableNumber: t.TableNumber,
				Orders:      len(t.Orders),
				Total:       t.Total.StringFixed(2),
			}
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=closed-%s.csv", from.Format("2006-01-02")))
		if err := gocsv.Marshal(rows, w); err != nil {
			zap.L().Error("write closed tables csv", zap.Error(err))
		}
		return
	}

	resp := make([]closedTableResponse, len(tables))
	for i, t := range tables {
		ct := closedTableResponse{
			TableID:     t.TableID,
			TableNumber: t.TableNumber,
			Total:       t.Total.StringFixed(2),
			Orders:      make([]closedOrderResponse, len(t.Orders)),
		}
		for j, o := range t.Orders {
			ct.Orders[j] = closedOrderResponse{
				ID:            o.ID,
				Status:        o.Status,
				Total:         numericToString(o.Total),
				PaymentMethod: textPtr(o.PaymentMethod),
				Timestamp:     o.Timestamp,
			}
		}
		resp[i] = ct
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseReportRange reads from/to as dates. Either may be absent; to is made
// exclusive by moving it to the next midnight.
func parseReportRange(r *http.Request) (from, to *time.Time, err error) {
	const layout = "2006-01-02"

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date, expected YYYY-MM-DD")
		}
		from = &t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date, expected YYYY-MM-DD")
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, fmt.Errorf("from must not be after to")
	}
	return from, to, nil
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func feedbacksInRange(feedbacks []database.Feedback, from, to *time.Time) []database.Feedback {
	if from == nil && to == nil {
		return feedbacks
	}
	out := make([]database.Feedback, 0, len(feedbacks))
	for _, f := range feedbacks {
		if from != nil && f.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !f.CreatedAt.Before(*to) {
			continue
		}
		out = append(out, f)
	}
	return out
}
