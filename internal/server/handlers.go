package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/app"
	"github.com/pennywise-dev/pennywise/internal/importer"
	"github.com/pennywise-dev/pennywise/internal/ingest"
	"github.com/pennywise-dev/pennywise/internal/logger"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/store"
)

// Handler serves the /api routes.
type Handler struct {
	app *app.App
}

type transactionJSON struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   *uuid.UUID `json:"account_id,omitempty"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Amount      string     `json:"amount"`
	Category    string     `json:"category"`
	Type        string     `json:"type"`
	Notes       string     `json:"notes,omitempty"`
}

func toTransactionJSON(t model.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Date:        t.DateString(),
		Description: t.Description,
		Amount:      t.Amount.StringFixed(2),
		Category:    t.Category,
		Type:        string(t.Type),
		Notes:       t.Notes,
	}
}

type accountJSON struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Balance string    `json:"balance"`
}

func toAccountJSON(a model.Account) accountJSON {
	return accountJSON{ID: a.ID, Name: a.Name, Type: string(a.Type), Balance: a.Balance.StringFixed(2)}
}

type rowJSON struct {
	Row           int       `json:"row"`
	Date          string    `json:"date"`
	Outcome       string    `json:"outcome"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Balance       string    `json:"balance,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type reportJSON struct {
	BatchID        uuid.UUID                  `json:"batch_id"`
	Format         string                     `json:"format"`
	Summary        string                     `json:"summary"`
	Inserted       int                        `json:"inserted"`
	Duplicates     int                        `json:"duplicates"`
	Failed         int                        `json:"failed"`
	Dropped        int                        `json:"dropped"`
	BalanceApplied int                        `json:"balance_applied"`
	BalancePending int                        `json:"balance_pending"`
	Anomalies      []importer.RowParseAnomaly `json:"anomalies"`
	Rows           []rowJSON                  `json:"rows"`
}

func toReportJSON(rep *ingest.Report) reportJSON {
	out := reportJSON{
		BatchID:        rep.BatchID,
		Format:         rep.Format,
		Summary:        rep.Summary(),
		Inserted:       rep.Inserted,
		Duplicates:     rep.Duplicates,
		Failed:         rep.Failed,
		Dropped:        rep.Dropped,
		BalanceApplied: rep.BalanceApplied,
		BalancePending: rep.BalancePending,
		Anomalies:      rep.Anomalies,
		Rows:           make([]rowJSON, len(rep.Rows)),
	}
	if out.Anomalies == nil {
		out.Anomalies = []importer.RowParseAnomaly{}
	}
	for i, r := range rep.Rows {
		out.Rows[i] = rowJSON{
			Row:           r.Row,
			Date:          r.Date,
			Outcome:       string(r.Outcome),
			TransactionID: r.TransactionID,
			Balance:       string(r.Balance),
		}
		if r.Err != nil {
			out.Rows[i].Error = r.Err.Error()
		}
	}
	return out
}

// Upload handles POST /api/transactions/upload with the heuristic parser.
func (h *Handler) Upload(c *gin.Context) {
	h.ingest(c, h.app.Parsers.Get("heuristic"))
}

// UploadMapped handles POST /api/transactions/upload/mapped. The mapping
// form field is a JSON object of field name to column index.
func (h *Handler) UploadMapped(c *gin.Context) {
	var mapping importer.ColumnMapping
	if err := json.Unmarshal([]byte(c.PostForm("mapping")), &mapping); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mapping must be a JSON object of field to column index"})
		return
	}
	if err := mapping.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	skipHeader, ok := formBool(c, "skip_header")
	if !ok {
		return
	}
	h.ingest(c, &importer.MappedParser{
		Mapping:    mapping,
		SkipHeader: skipHeader,
		Category:   h.app.Config.Import.DefaultCategory,
	})
}

func (h *Handler) ingest(c *gin.Context, parser importer.Parser) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	var ok bool
	u := ingest.Upload{
		UserID:   userID(c),
		Filename: header.Filename,
		Source:   file,
		Parser:   parser,
	}
	if raw := c.PostForm("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		u.AccountID = &id
	}
	if u.ApplyBalance, ok = formBool(c, "apply_balance"); !ok {
		return
	}

	rep, err := h.app.Ingestor.Ingest(c.Request.Context(), u)
	if err != nil && rep == nil {
		c.JSON(ingestStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		reqLog := logger.FromContext(c.Request.Context())
		reqLog.Warn().Err(err).Msg("upload interrupted")
	}
	c.JSON(http.StatusOK, toReportJSON(rep))
}

func ingestStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrBalanceAccount),
		errors.Is(err, importer.ErrNoRows),
		errors.Is(err, importer.ErrMalformedCSV),
		errors.Is(err, importer.ErrUnknownField),
		errors.Is(err, importer.ErrDuplicateColumn),
		errors.Is(err, importer.ErrIncompleteMapping):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Preview handles POST /api/transactions/preview.
func (h *Handler) Preview(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	cols, err := importer.Preview(file)
	if err != nil {
		c.JSON(ingestStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols, "fields": importer.Fields})
}

// ListTransactions handles GET /api/transactions. Optional query
// parameters: account_id, balance_status.
func (h *Handler) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	var filter store.TransactionFilter
	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		filter.AccountID = &id
	}
	filter.BalanceStatus = store.BalanceStatus(c.Query("balance_status"))

	recs, err := h.app.Store.ListTransactions(ctx, userID(c), filter)
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Err(err).Msg("listing transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}

	items := make([]transactionJSON, 0, len(recs))
	for i := range recs {
		t, err := h.app.Sealer.OpenTransaction(&recs[i])
		if err != nil {
			reqLog := logger.FromContext(ctx)
			reqLog.Error().Str("transaction_id", recs[i].ID.String()).Err(err).Msg("decrypting transaction")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decrypt transactions"})
			return
		}
		items = append(items, toTransactionJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items, "count": len(items)})
}

// UpdateTransaction handles PATCH /api/transactions/:id. A null or empty
// notes value clears the notes.
func (h *Handler) UpdateTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}
	var payload map[string]*string
	if err := c.BindJSON(&payload); err != nil {
		return
	}

	var patch store.TransactionPatch
	if cat, ok := payload["category"]; ok {
		if cat == nil || strings.TrimSpace(*cat) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category cannot be empty"})
			return
		}
		tok, err := h.app.Sealer.SealText(strings.TrimSpace(*cat))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		patch.Category = &tok
	}
	if notes, ok := payload["notes"]; ok {
		if notes == nil || *notes == "" {
			patch.ClearNotes = true
		} else {
			tok, err := h.app.Sealer.SealOptional(*notes)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			patch.Notes = tok
		}
	}

	if err := h.app.Store.UpdateTransaction(c.Request.Context(), userID(c), id, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction updated"})
}

// GetTransaction handles GET /api/transactions/:id.
func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c, "transaction")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := h.app.Store.GetTransaction(ctx, userID(c), id)
	if err != nil {
		notFoundOr500(c, err, "transaction not found")
		return
	}
	t, err := h.app.Sealer.OpenTransaction(rec)
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Str("transaction_id", id.String()).Err(err).Msg("decrypting transaction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decrypt transaction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": toTransactionJSON(t)})
}

// DeleteTransaction handles DELETE /api/transactions/:id. The account
// balance is left as it is.
func (h *Handler) DeleteTransaction(c *gin.Context) {
	id, ok := pathID(c, "transaction")
	if !ok {
		return
	}
	if err := h.app.Store.DeleteTransaction(c.Request.Context(), userID(c), id); err != nil {
		notFoundOr500(c, err, "transaction not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted"})
}

// CreateAccount handles POST /api/accounts.
func (h *Handler) CreateAccount(c *gin.Context) {
	var payload struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		Balance string `json:"balance"`
	}
	if err := c.BindJSON(&payload); err != nil {
		return
	}

	opening := decimal.Zero
	if payload.Balance != "" {
		d, err := decimal.NewFromString(payload.Balance)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid balance"})
			return
		}
		opening = d
	}

	acct, err := h.app.Accounts.Create(c.Request.Context(), userID(c), payload.Name, model.AccountType(strings.ToLower(payload.Type)), opening)
	if err != nil {
		if errors.Is(err, accounts.ErrEmptyName) || errors.Is(err, accounts.ErrInvalidType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "account created", "account": toAccountJSON(acct)})
}

// ListAccounts handles GET /api/accounts. An optional type query parameter
// limits the list to one account type.
func (h *Handler) ListAccounts(c *gin.Context) {
	ctx := c.Request.Context()
	var all []model.Account
	var err error
	if raw := c.Query("type"); raw != "" {
		typ := model.AccountType(strings.ToLower(raw))
		if !typ.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": accounts.ErrInvalidType.Error()})
			return
		}
		all, err = h.app.Accounts.ByType(ctx, userID(c), typ)
	} else {
		all, err = h.app.Accounts.All(ctx, userID(c))
	}
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Error().Err(err).Msg("listing accounts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
		return
	}
	items := make([]accountJSON, len(all))
	for i, a := range all {
		items[i] = toAccountJSON(a)
	}
	c.JSON(http.StatusOK, gin.H{"accounts": items, "count": len(items)})
}

// GetAccount handles GET /api/accounts/:id.
func (h *Handler) GetAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}
	acct, err := h.app.Accounts.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": toAccountJSON(acct)})
}

// UpdateAccount handles PATCH /api/accounts/:id with optional name, type
// and balance.
func (h *Handler) UpdateAccount(c *gin.Context) {
	id, ok := pathID(c, "account")
	if !ok {
		return
	}
	var payload struct {
		Name    *string `json:"name"`
		Type    *string `json:"type"`
		Balance *string `json:"balance"`
	}
	if err := c.BindJSON(&payload); err != nil {
		return
	}

	u := accounts.Update{Name: payload.Name}
	if payload.Type != nil {
		typ := model.AccountType(strings.ToLower(*payload.Type))
		u.Type = &typ
	}
	if payload.Balance != nil {
		d, err := decimal.NewFromString(*payload.Balance)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid balance"})
			return
		}
		u.Balance = &d
	}

	acct, err := h.app.Accounts.Update(c.Request.Context(), userID(c), id, u)
	if err != nil {
		if errors.Is(err, accounts.ErrEmptyName) || errors.Is(err, accounts.ErrInvalidType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		notFoundOr500(c, err, "account not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account updated", "account": toAccountJSON(acct)})
}

// DeleteAccount handles DELETE /api/accounts/:id.
func (h *Handler) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c, "account")
	if !ok {
		return
	}
	if err := h.app.Accounts.Delete(c.Request.Context(), userID(c), id); err != nil {
		if errors.Is(err, accounts.ErrPendingBalance) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		notFoundOr500(c, err, "account not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

// Reconcile handles POST /api/reconcile.
func (h *Handler) Reconcile(c *gin.Context) {
	rep, err := h.app.Ingestor.Reconcile(c.Request.Context(), userID(c))
	if err != nil && rep == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	errs := make([]string, len(rep.Errors))
	for i, e := range rep.Errors {
		errs[i] = e.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"pending": rep.Pending,
		"applied": rep.Applied,
		"failed":  rep.Failed,
		"errors":  errs,
	})
}

// pathID parses the :id parameter, answering 400 when it is not a UUID.
func pathID(c *gin.Context, kind string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + kind + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

func notFoundOr500(c *gin.Context, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	reqLog := logger.FromContext(c.Request.Context())
	reqLog.Error().Err(err).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func formBool(c *gin.Context, key string) (bool, bool) {
	v, err := strconv.ParseBool(orFalse(c.PostForm(key)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a boolean"})
		return false, false
	}
	return v, true
}

func orFalse(s string) string {
	if s == "" {
		return "false"
	}
	return s
}
