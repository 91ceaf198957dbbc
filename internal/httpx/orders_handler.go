package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/caskline/distro/internal/inventory"
	kafkax "github.com/caskline/distro/internal/kafka"
	"github.com/caskline/distro/internal/orders"
	"github.com/caskline/distro/internal/redisx"
)

type OrdersHandler struct {
	Service  *orders.Service
	Repo     *orders.Repo
	Producer *kafkax.Producer
	Redis    *redis.Client
	Log      *logrus.Logger
	Validate *validator.Validate
	Name     string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/inventory/check", h.checkInventory)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/skus", h.listSKUs)
}

type priceOverrideReq struct {
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason" validate:"required,min=10"`
}

type itemReq struct {
	SKUID         string            `json:"skuId" validate:"required"`
	Quantity      int               `json:"quantity" validate:"required,gt=0"`
	PriceOverride *priceOverrideReq `json:"priceOverride"`
	UsageType     string            `json:"usageType"`
}

type createOrderReq struct {
	CustomerID          string    `json:"customerId" validate:"required"`
	ExternalID          string    `json:"externalId"`
	DeliveryDate        string    `json:"deliveryDate" validate:"required"`
	DeliveryTimeWindow  string    `json:"deliveryTimeWindow"`
	WarehouseLocation   string    `json:"warehouseLocation" validate:"required"`
	PONumber            string    `json:"poNumber"`
	SpecialInstructions string    `json:"specialInstructions"`
	SalesRepID          string    `json:"salesRepId"`
	Items               []itemReq `json:"items" validate:"required,min=1,dive"`
}

type salesRepResp struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Territory string `json:"territory"`
}

type inventoryStatusResp struct {
	Checks        []inventory.CheckResult `json:"checks"`
	AllSufficient bool                    `json:"allSufficient"`
}

type createOrderResp struct {
	OrderID          string              `json:"orderId"`
	OrderNumber      string              `json:"orderNumber"`
	Status           orders.Status       `json:"status"`
	RequiresApproval bool                `json:"requiresApproval"`
	Total            string              `json:"total"`
	Currency         string              `json:"currency"`
	DeliveryDate     string              `json:"deliveryDate"`
	SalesRepID       string              `json:"salesRepId"`
	SalesRep         *salesRepResp       `json:"salesRep,omitempty"`
	InventoryStatus  inventoryStatusResp `json:"inventoryStatus"`
	Message          string              `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps FlowError / short-stock onto their HTTP statuses;
// anything else is a 500 with no internal detail.
func (h *OrdersHandler) writeDomainError(w http.ResponseWriter, err error) {
	var fe *orders.FlowError
	if errors.As(err, &fe) {
		writeError(w, fe.Status, fe.Message)
		return
	}
	var short *inventory.ErrShortStock
	if errors.As(err, &short) {
		writeError(w, http.StatusConflict, short.Error())
		return
	}
	h.Log.WithFields(logrus.Fields{"module": "httpx"}).Error(err.Error())
	writeError(w, http.StatusInternalServerError, "internal error")
}

func tenantID(r *http.Request) string { return r.Header.Get("X-Tenant-Id") }
func userID(r *http.Request) string   { return r.Header.Get("X-User-Id") }

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deliveryDate, err := time.Parse("2006-01-02", req.DeliveryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deliveryDate must be an ISO date")
		return
	}

	items := make([]orders.LineInput, 0, len(req.Items))
	for _, it := range req.Items {
		line := orders.LineInput{SKUID: it.SKUID, Quantity: it.Quantity, UsageType: it.UsageType}
		if it.PriceOverride != nil {
			if !it.PriceOverride.Price.IsPositive() {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("price override for sku %s must be positive", it.SKUID))
				return
			}
			line.PriceOverride = &orders.PriceOverride{
				Price:  it.PriceOverride.Price,
				Reason: it.PriceOverride.Reason,
			}
		}
		items = append(items, line)
	}

	res, err := h.Service.CreateOrder(r.Context(), orders.CreateOrderInput{
		TenantID:            tenant,
		UserID:              userID(r),
		CustomerID:          req.CustomerID,
		SalesRepID:          req.SalesRepID,
		ExternalID:          req.ExternalID,
		DeliveryDate:        deliveryDate,
		DeliveryTimeWindow:  req.DeliveryTimeWindow,
		WarehouseLocation:   req.WarehouseLocation,
		PONumber:            req.PONumber,
		SpecialInstructions: req.SpecialInstructions,
		Items:               items,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	order := res.Order

	ctx := r.Context()
	if req.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, tenant, req.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, order.ID, redisx.TTLIdempotency).Err()
	}
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, tenant, order.ID)
	statusBody, _ := json.Marshal(map[string]any{"status": order.Status})
	_ = h.Redis.Set(ctx, statusKey, statusBody, redisx.TTLStatusCache).Err()

	if !res.Idempotent {
		h.publishCreated(r, res)
	}

	msg := fmt.Sprintf("order %s created", order.OrderNumber)
	if order.RequiresApproval {
		msg += "; pending manager approval"
	}

	resp := createOrderResp{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		Status:           order.Status,
		RequiresApproval: order.RequiresApproval,
		Total:            order.Total.StringFixed(2),
		Currency:         order.Currency,
		DeliveryDate:     order.DeliveryDate.Format("2006-01-02"),
		SalesRepID:       order.SalesRepID,
		InventoryStatus:  inventoryStatusResp{Checks: res.Checks, AllSufficient: res.AllSufficient},
		Message:          msg,
	}
	if res.SalesRep != nil {
		resp.SalesRep = &salesRepResp{ID: res.SalesRep.ID, Name: res.SalesRep.Name, Territory: res.SalesRep.Territory}
	}
	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, resp)
}

func (h *OrdersHandler) publishCreated(r *http.Request, res *orders.CreateOrderResult) {
	order := res.Order
	lines := make([]orders.LineSummary, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, orders.LineSummary{SKUID: l.SKUID, Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Name,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			TenantID:         order.TenantID,
			CustomerID:       order.CustomerID,
			SalesRepID:       order.SalesRepID,
			Status:           order.Status,
			RequiresApproval: order.RequiresApproval,
			Total:            order.Total.String(),
			Currency:         order.Currency,
			Lines:            lines,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

type checkInventoryReq struct {
	Items             []inventory.RequestedLine `json:"items" validate:"required,min=1,dive"`
	WarehouseLocation string                    `json:"warehouseLocation"`
}

// checkInventory is the read-only preview: same computation as order
// assembly, no transaction, no side effects.
func (h *OrdersHandler) checkInventory(w http.ResponseWriter, r *http.Request) {
	var req checkInventoryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, it := range req.Items {
		if it.Quantity < 0 {
			writeError(w, http.StatusBadRequest, "quantity must not be negative")
			return
		}
	}

	checks, err := h.Service.CheckInventory(r.Context(), req.Items, req.WarehouseLocation)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryStatusResp{
		Checks:        checks,
		AllSufficient: inventory.AllSufficient(checks),
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	orderID := chi.URLParam(r, "id")
	if tenant == "" || orderID == "" {
		writeError(w, http.StatusBadRequest, "missing tenant or order id")
		return
	}

	ctx := r.Context()
	key := fmt.Sprintf(redisx.KeyOrderStatus, tenant, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, err := h.Repo.GetOrderStatus(ctx, tenant, orderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	body, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type skuResp struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	ProductName  string `json:"productName"`
	Brand        string `json:"brand,omitempty"`
	PricePerUnit string `json:"pricePerUnit"`
	Currency     string `json:"currency"`
}

func (h *OrdersHandler) listSKUs(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}
	skus, err := h.Repo.ListSKUs(r.Context(), tenant)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]skuResp, 0, len(skus))
	for _, s := range skus {
		out = append(out, skuResp{
			ID:           s.ID,
			Code:         s.Code,
			ProductName:  s.ProductName,
			Brand:        s.Brand,
			PricePerUnit: s.PricePerUnit.StringFixed(2),
			Currency:     s.Currency,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
