package httppresentation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	appinv "github.com/openmall/marketcore/internal/application/inventory"
	apporder "github.com/openmall/marketcore/internal/application/order"
	apppay "github.com/openmall/marketcore/internal/application/payment"
	"github.com/openmall/marketcore/internal/domain/cart"
	"github.com/openmall/marketcore/internal/domain/catalog"
	dominv "github.com/openmall/marketcore/internal/domain/inventory"
	"github.com/openmall/marketcore/internal/domain/money"
	domorder "github.com/openmall/marketcore/internal/domain/order"
	dompay "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/openmall/marketcore/internal/observability"
)

type Handler struct {
	inventory appinv.Usecase
	orders    apporder.Usecase
	payments  apppay.Usecase
	carts     cart.Store
	tel       observability.Telemetry
}

func NewHandler(
	inventory appinv.Usecase,
	orders apporder.Usecase,
	payments apppay.Usecase,
	carts cart.Store,
	tel observability.Telemetry,
) *Handler {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Handler{
		inventory: inventory,
		orders:    orders,
		payments:  payments,
		carts:     carts,
		tel:       tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Observability(h.tel))

	r.Get("/health", h.handleHealth)

	// gateway callbacks carry their own authentication via signatures
	r.Post("/gateway/notify/{method}", h.handleGatewayNotify)
	r.Post("/shipping/{orderID}/delivered", h.handleDelivered)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Post("/cart/items", h.handleCartAdd)
		r.Get("/cart", h.handleCartList)
		r.Delete("/cart/items", h.handleCartRemove)

		r.Post("/orders/checkout", h.handleCheckout)
		r.Post("/orders/purchase", h.handlePurchase)
		r.Get("/orders/{orderID}", h.handleGetOrder)
		r.Post("/orders/{orderID}/cancel", h.handleCancelOrder)
		r.Post("/orders/{orderID}/receipt", h.handleConfirmReceipt)
		r.Post("/orders/{orderID}/refund", h.handleRequestRefund)
		r.Post("/orders/{orderID}/confirm", h.handleConfirmOrder)
		r.Post("/orders/{orderID}/refuse", h.handleRefuseOrder)
		r.Post("/orders/{orderID}/ship", h.handleShipOrder)

		r.Get("/payments/{paymentID}", h.handleGetPayment)
		r.Post("/payments/{paymentID}/pay", h.handlePay)
		r.Post("/payments/{paymentID}/cancel", h.handleCancelPayment)
		r.Get("/payments/{paymentID}/trade", h.handleQueryTrade)
		r.Get("/payments/{paymentID}/refunds/{orderNo}", h.handleQueryRefund)

		r.Post("/inventory/{productID}", h.handleInitStock)
		r.Get("/inventory/{productID}", h.handleGetStock)
		r.Put("/inventory/{productID}/stock", h.handleSetStock)
		r.Put("/inventory/{productID}/threshold", h.handleSetThreshold)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type cartAddRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartEntryResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func cartEntryFrom(e *cart.Entry) cartEntryResponse {
	return cartEntryResponse{ID: e.ID, ProductID: e.ProductID, Quantity: e.Quantity}
}

func (h *Handler) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req cartAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.ProductID == "" || req.Quantity <= 0 {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "product_id and a positive quantity are required")
		return
	}
	e, err := h.carts.Merge(r.Context(), userID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartEntryFrom(e))
}

func (h *Handler) handleCartList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.carts.List(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]cartEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, cartEntryFrom(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type cartRemoveRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

func (h *Handler) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	var req cartRemoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.carts.Remove(r.Context(), userID(r.Context()), req.EntryIDs); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	CartEntryIDs []string `json:"cart_entry_ids"`
	Remark       string   `json:"remark"`
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Remark    string `json:"remark"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	OrderNo     string              `json:"order_no"`
	StoreID     string              `json:"store_id"`
	Status      domorder.Status     `json:"status"`
	TotalAmount string              `json:"total_amount"`
	PaymentID   string              `json:"payment_id,omitempty"`
	Items       []orderItemResponse `json:"items"`
	Logs        []orderLogResponse  `json:"logs,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderLogResponse struct {
	Event       domorder.Event  `json:"event"`
	AfterStatus domorder.Status `json:"after_status"`
	Message     string          `json:"message,omitempty"`
	ActorID     string          `json:"actor_id,omitempty"`
	At          time.Time       `json:"at"`
}

func orderFrom(o *domorder.Order, withLogs bool) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNo:     o.OrderNo,
		StoreID:     o.StoreID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.StringFixed(2),
		PaymentID:   o.PaymentID,
		CreatedAt:   o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	if withLogs {
		for _, l := range o.Logs {
			resp.Logs = append(resp.Logs, orderLogResponse{
				Event:       l.Event,
				AfterStatus: l.AfterStatus,
				Message:     l.Message,
				ActorID:     l.ActorID,
				At:          l.At,
			})
		}
	}
	return resp
}

type checkoutResponse struct {
	Orders    []orderResponse `json:"orders"`
	PaymentID string          `json:"payment_id"`
	Amount    string          `json:"amount"`
}

func checkoutFrom(res *apporder.CheckoutResult) checkoutResponse {
	resp := checkoutResponse{
		PaymentID: res.Payment.ID,
		Amount:    res.Payment.Amount.StringFixed(2),
	}
	for _, o := range res.Orders {
		resp.Orders = append(resp.Orders, orderFrom(o, false))
	}
	return resp
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	res, err := h.orders.Checkout(r.Context(), apporder.CheckoutInput{
		UserID:       userID(r.Context()),
		CartEntryIDs: req.CartEntryIDs,
		Remark:       req.Remark,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutFrom(res))
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	res, err := h.orders.Purchase(r.Context(), apporder.PurchaseInput{
		UserID:    userID(r.Context()),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Remark:    req.Remark,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutFrom(res))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderFrom(o, true))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.orders.Cancel(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID"), req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.ConfirmReceipt(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRequestRefund(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.orders.RequestRefund(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID"), req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Confirm(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefuseOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.orders.Refuse(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID"), req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type shipRequest struct {
	Carrier    string `json:"carrier"`
	TrackingNo string `json:"tracking_no"`
}

func (h *Handler) handleShipOrder(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.orders.Ship(r.Context(), userID(r.Context()), chi.URLParam(r, "orderID"), req.Carrier, req.TrackingNo); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deliveredRequest struct {
	Location string `json:"location"`
}

func (h *Handler) handleDelivered(w http.ResponseWriter, r *http.Request) {
	var req deliveredRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.orders.Deliver(r.Context(), chi.URLParam(r, "orderID"), req.Location); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentResponse struct {
	ID             string        `json:"id"`
	PaymentNo      string        `json:"payment_no,omitempty"`
	OrderIDs       []string      `json:"order_ids"`
	Amount         string        `json:"amount"`
	Status         dompay.Status `json:"status"`
	Method         dompay.Method `json:"method,omitempty"`
	TradeNo        string        `json:"trade_no,omitempty"`
	RefundedAmount string        `json:"refunded_amount,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func paymentFrom(p *dompay.Payment) paymentResponse {
	resp := paymentResponse{
		ID:        p.ID,
		PaymentNo: p.PaymentNo,
		OrderIDs:  p.OrderIDs,
		Amount:    p.Amount.StringFixed(2),
		Status:    p.Status,
		Method:    p.Method,
		TradeNo:   p.TradeNo,
		CreatedAt: p.CreatedAt,
	}
	if !money.Equal(p.RefundedAmount, money.Zero()) {
		resp.RefundedAmount = p.RefundedAmount.StringFixed(2)
	}
	return resp
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), userID(r.Context()), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentFrom(p))
}

type payRequest struct {
	Method dompay.Method `json:"method"`
}

type payResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	redirect, err := h.payments.Pay(r.Context(), userID(r.Context()), chi.URLParam(r, "paymentID"), req.Method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payResponse{RedirectURL: redirect})
}

func (h *Handler) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.Cancel(r.Context(), userID(r.Context()), chi.URLParam(r, "paymentID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleQueryTrade(w http.ResponseWriter, r *http.Request) {
	status, err := h.payments.QueryTrade(r.Context(), userID(r.Context()), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"trade_status": string(status)})
}

func (h *Handler) handleQueryRefund(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.QueryRefund(r.Context(), userID(r.Context()),
		chi.URLParam(r, "paymentID"), chi.URLParam(r, "orderNo"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"refunded_amount": res.RefundedAmount.StringFixed(2),
		"trade_no":        res.TradeNo,
	})
}

// handleGatewayNotify receives the form-encoded asynchronous callback and
// answers with the plain-text acknowledgement the gateway expects.
func (h *Handler) handleGatewayNotify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, apppay.AckFail, http.StatusBadRequest)
		return
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	method := dompay.Method(chi.URLParam(r, "method"))
	ack, err := h.payments.HandleNotification(r.Context(), method, params)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
	}
	_, _ = w.Write([]byte(ack))
}

type initStockRequest struct {
	Quantity int `json:"quantity"`
}

type stockResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Locked    int    `json:"locked"`
	Available int    `json:"available"`
	Threshold int    `json:"threshold"`
}

func stockFrom(rec *dominv.Record) stockResponse {
	return stockResponse{
		ProductID: rec.ProductID,
		Quantity:  rec.Quantity,
		Locked:    rec.Locked,
		Available: rec.Available(),
		Threshold: rec.Threshold,
	}
}

func (h *Handler) handleInitStock(w http.ResponseWriter, r *http.Request) {
	var req initStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	rec, err := h.inventory.Init(r.Context(), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stockFrom(rec))
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	rec, err := h.inventory.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockFrom(rec))
}

type setStockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.inventory.SetStock(r.Context(), chi.URLParam(r, "productID"), req.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setThresholdRequest struct {
	Threshold int `json:"threshold"`
}

func (h *Handler) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req setThresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := h.inventory.SetThreshold(r.Context(), chi.URLParam(r, "productID"), req.Threshold); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeJSONOptional tolerates an empty body.
func decodeJSONOptional(r *http.Request, dst any) error {
	err := decodeJSON(r, dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dompay.ErrNotFound),
		errors.Is(err, dominv.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domorder.ErrPermissionDenied),
		errors.Is(err, dompay.ErrPermissionDenied):
		writeErrorCode(w, http.StatusForbidden, "PERMISSION_DENIED", err.Error())
	case errors.Is(err, domorder.ErrInvalidTransition),
		errors.Is(err, dompay.ErrNotPending):
		writeErrorCode(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, appinv.ErrConcurrencyConflict):
		writeErrorCode(w, http.StatusConflict, "CONCURRENCY_CONFLICT", err.Error())
	case errors.Is(err, dominv.ErrInsufficientStock):
		writeErrorCode(w, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, domorder.ErrInvalidItem),
		errors.Is(err, dominv.ErrInvalidOperation),
		errors.Is(err, apporder.ErrProductNotSellable):
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, dompay.ErrPaymentFail),
		errors.Is(err, dompay.ErrRefundFail):
		writeErrorCode(w, http.StatusBadGateway, "GATEWAY_ERROR", err.Error())
	default:
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}
