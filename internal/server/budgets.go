package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/budgets"
	"github.com/pennywise-dev/pennywise/internal/model"
)

type budgetJSON struct {
	ID        uuid.UUID  `json:"id"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	Amount    string     `json:"amount"`
	Spent     string     `json:"spent"`
	Remaining string     `json:"remaining"`
	StartDate string     `json:"start_date,omitempty"`
	EndDate   string     `json:"end_date,omitempty"`
}

func toBudgetJSON(b model.Budget) budgetJSON {
	return budgetJSON{
		ID:        b.ID,
		AccountID: b.AccountID,
		Name:      b.Name,
		Category:  b.Category,
		Amount:    b.Amount.StringFixed(2),
		Spent:     b.Spent.StringFixed(2),
		Remaining: b.Remaining().StringFixed(2),
		StartDate: model.FormatDate(b.StartDate),
		EndDate:   model.FormatDate(b.EndDate),
	}
}

// errBadInput marks a payload value that failed to parse.
var errBadInput = errors.New("invalid input")

func budgetStatus(err error) int {
	switch {
	case errors.Is(err, budgets.ErrEmptyName),
		errors.Is(err, budgets.ErrNegativeAmount),
		errors.Is(err, budgets.ErrDateRange),
		errors.Is(err, errBadInput):
		return http.StatusBadRequest
	default:
		return ingestStatus(err)
	}
}

func parseOptionalDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadInput, field)
	}
	return d, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal", errBadInput, field)
	}
	return d, nil
}

// CreateBudget handles POST /api/budgets.
func (h *Handler) CreateBudget(c *gin.Context) {
	var payload struct {
		AccountID *uuid.UUID `json:"account_id"`
		Name      string     `json:"name"`
		Category  string     `json:"category"`
		Amount    string     `json:"amount"`
		StartDate string     `json:"start_date"`
		EndDate   string     `json:"end_date"`
	}
	if err := c.BindJSON(&payload); err != nil {
		return
	}

	b := model.Budget{AccountID: payload.AccountID, Name: payload.Name, Category: payload.Category}
	var err error
	if payload.Amount != "" {
		if b.Amount, err = parseAmount("amount", payload.Amount); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if b.StartDate, err = parseOptionalDate("start_date", payload.StartDate); err == nil {
		b.EndDate, err = parseOptionalDate("end_date", payload.EndDate)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.app.Budgets.Create(c.Request.Context(), userID(c), b)
	if err != nil {
		c.JSON(budgetStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "budget created", "budget": toBudgetJSON(created)})
}

// ListBudgets handles GET /api/budgets with an optional account_id filter.
func (h *Handler) ListBudgets(c *gin.Context) {
	var accountID *uuid.UUID
	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		accountID = &id
	}

	list, err := h.app.Budgets.List(c.Request.Context(), userID(c), accountID)
	if err != nil {
		notFoundOr500(c, err, "budgets not found")
		return
	}
	items := make([]budgetJSON, len(list))
	for i, b := range list {
		items[i] = toBudgetJSON(b)
	}
	c.JSON(http.StatusOK, gin.H{"budgets": items, "count": len(items)})
}

// GetBudget handles GET /api/budgets/:id.
func (h *Handler) GetBudget(c *gin.Context) {
	id, ok := pathID(c, "budget")
	if !ok {
		return
	}
	b, err := h.app.Budgets.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		notFoundOr500(c, err, "budget not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"budget": toBudgetJSON(b)})
}

// UpdateBudget handles PATCH /api/budgets/:id. Every key is optional. A null
// or empty account_id, start_date or end_date clears it; contribute is added
// to spent.
func (h *Handler) UpdateBudget(c *gin.Context) {
	id, ok := pathID(c, "budget")
	if !ok {
		return
	}
	var payload map[string]*string
	if err := c.BindJSON(&payload); err != nil {
		return
	}

	u, err := budgetUpdate(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.app.Budgets.Update(c.Request.Context(), userID(c), id, u)
	if err != nil {
		if status := budgetStatus(err); status != http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		notFoundOr500(c, err, "budget not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "budget updated", "budget": toBudgetJSON(b)})
}

func budgetUpdate(payload map[string]*string) (budgets.Update, error) {
	var u budgets.Update
	str := func(key string) (string, bool) {
		v, ok := payload[key]
		if !ok {
			return "", false
		}
		if v == nil {
			return "", true
		}
		return *v, true
	}

	if v, ok := str("account_id"); ok {
		if v == "" {
			u.ClearAccount = true
		} else {
			id, err := uuid.Parse(v)
			if err != nil {
				return u, fmt.Errorf("%w: account_id must be a UUID", errBadInput)
			}
			u.AccountID = &id
		}
	}
	if v, ok := str("name"); ok {
		u.Name = &v
	}
	if v, ok := str("category"); ok {
		u.Category = &v
	}
	for key, dst := range map[string]**decimal.Decimal{"amount": &u.Amount, "contribute": &u.Contribute} {
		if v, ok := str(key); ok {
			d, err := parseAmount(key, v)
			if err != nil {
				return u, err
			}
			*dst = &d
		}
	}
	for key, dst := range map[string]**time.Time{"start_date": &u.StartDate, "end_date": &u.EndDate} {
		if v, ok := str(key); ok {
			d, err := parseOptionalDate(key, v)
			if err != nil {
				return u, err
			}
			*dst = &d
		}
	}
	return u, nil
}

// DeleteBudget handles DELETE /api/budgets/:id.
func (h *Handler) DeleteBudget(c *gin.Context) {
	id, ok := pathID(c, "budget")
	if !ok {
		return
	}
	if err := h.app.Budgets.Delete(c.Request.Context(), userID(c), id); err != nil {
		notFoundOr500(c, err, "budget not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "budget deleted"})
}
