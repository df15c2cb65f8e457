package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/service"
)

// storeScope resolves the store a request acts on. Admins may name any store;
// everyone else is pinned to the store in their token.
func storeScope(r *http.Request, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleAdmin {
		return requested, nil
	}
	if requested == "" {
		return actor.StoreID, nil
	}
	if requested != actor.StoreID {
		return "", errForbidden
	}
	return requested, nil
}

// The scoped loaders fetch a row by id and reject it when it belongs to a store
// the caller is not bound to. Rows without a store are visible to everyone.

func (a *API) scopedProduct(r *http.Request, id string) (domain.Product, error) {
	product, err := a.service.GetProduct(r.Context(), id)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := storeScope(r, product.StoreID); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (a *API) scopedCustomer(r *http.Request, id string) (domain.Customer, error) {
	customer, err := a.service.GetCustomer(r.Context(), id)
	if err != nil {
		return domain.Customer{}, err
	}
	if _, err := storeScope(r, customer.StoreID); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (a *API) scopedTransaction(r *http.Request, id string) (domain.Transaction, error) {
	tx, err := a.service.GetTransaction(r.Context(), id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err := storeScope(r, tx.StoreID); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

func (a *API) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := a.service.ListStores(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (a *API) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := a.service.CreateStore(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"store": created})
}

func (a *API) handleGetStore(w http.ResponseWriter, r *http.Request) {
	shop, err := a.service.GetStore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": shop})
}

func (a *API) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.StoreUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := a.service.UpdateStore(r.Context(), storeID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": updated})
}

func (a *API) handleStoreStats(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	stats, err := a.service.StoreStats(r.Context(), storeID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	employees, err := a.auth.ListEmployees(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	created, err := a.auth.CreateEmployee(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee": created})
}

func (a *API) handleEmployeeActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, errors.New("active is required"))
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	updated, err := a.auth.SetEmployeeActive(r.Context(), actor, r.PathValue("id"), *req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": updated})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	products, err := a.service.SearchProducts(r.Context(), storeID, r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	storeID, err := storeScope(r, req.StoreID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	req.StoreID = storeID
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	products, err := a.service.ListLowStockProducts(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProductByBarcode(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	product, err := a.service.GetProductByBarcode(r.Context(), storeID, r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.scopedProduct(r, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedProduct(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedProduct(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.service.DeactivateProduct(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedProduct(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.StockUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateStock(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedProduct(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	adjustments, err := a.service.ListInventoryAdjustments(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.SearchCustomers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	storeID, err := storeScope(r, req.StoreID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	req.StoreID = storeID
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedCustomer(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.CustomerUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleLoyaltyPoints(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedCustomer(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.LoyaltyPointsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.UpdateLoyaltyPoints(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ListLoyaltyLedger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledger": entries})
}

func (a *API) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	check, err := a.service.VerifyLoyaltyLedger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (a *API) handleRecomputeTier(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedCustomer(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := a.service.UpdateCustomerTier(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := a.service.ListTiers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

func (a *API) handleUpsertTier(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerTier
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tiers, err := a.service.UpsertTier(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	storeID, err := storeScope(r, req.StoreID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	req.StoreID = storeID

	actor, _ := service.ActorFromContext(r.Context())
	if req.CashierID == "" {
		req.CashierID = actor.UserID
	}
	if actor.Role == domain.RoleCashier && req.CashierID != actor.UserID {
		writeServiceError(w, errForbidden)
		return
	}

	tx, err := a.service.CreateTransaction(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	storeID, err := storeScope(r, query.Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cashierID := strings.TrimSpace(query.Get("cashier_id")); cashierID != "" {
		day, err := parseTimeParam(query.Get("day"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		var on time.Time
		if day != nil {
			on = *day
		}
		txs, err := a.service.ListTransactionsByCashier(r.Context(), storeID, cashierID, on)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
		return
	}

	from, to, err := dateRange(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if from != nil && to != nil {
		txs, err := a.service.ListTransactionsByDateRange(r.Context(), storeID, *from, *to)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
		return
	}

	limit := parsePositiveLimit(query.Get("limit"), 50, 500)
	txs, err := a.service.ListTransactions(r.Context(), storeID, query.Get("status"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleTransactionStats(w http.ResponseWriter, r *http.Request) {
	storeID, err := storeScope(r, r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	stats, err := a.service.TransactionStats(r.Context(), storeID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.scopedTransaction(r, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedTransaction(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	tx, err := a.service.ApproveTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleVoid(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedTransaction(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.TransactionActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.VoidTransaction(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleRefund(w http.ResponseWriter, r *http.Request) {
	if _, err := a.scopedTransaction(r, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.TransactionActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.RefundTransaction(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func dateRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		return nil, nil, err
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
