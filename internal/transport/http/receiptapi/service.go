package receiptapi

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"receipt-server-go/internal/domain/receipt/model"
	receiptservice "receipt-server-go/internal/domain/receipt/service"
	"receipt-server-go/internal/platform/errors"
	"receipt-server-go/internal/platform/logging"
	httptransport "receipt-server-go/internal/transport/http"
	"receipt-server-go/internal/transport/http/authapi"
)

// Service exposes receipt creation, lookup and text rendering over HTTP.
type Service struct {
	receipts *receiptservice.ReceiptService
	logger   *logging.Logger
	guard    gin.HandlerFunc
}

type productRequest struct {
	Name     string  `json:"name" binding:"required,max=200"`
	Price    float64 `json:"price" binding:"required,gt=0"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

type paymentRequest struct {
	Type   string  `json:"type" binding:"required,oneof=cash credit_card"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type createReceiptRequest struct {
	Products []productRequest `json:"products" binding:"max=10000,dive"`
	Payment  paymentRequest   `json:"payment" binding:"required"`
}

// NewService creates the receipt HTTP service. guard must admit the caller
// before any receipt route that needs an owner.
func NewService(receipts *receiptservice.ReceiptService, guard gin.HandlerFunc, logger *logging.Logger) (*Service, error) {
	if receipts == nil {
		return nil, errors.New(errors.KindConfig, "receiptapi.new", "receipt service is required")
	}
	if guard == nil {
		return nil, errors.New(errors.KindConfig, "receiptapi.new", "session guard is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "receiptapi.new", "logger is required")
	}
	return &Service{receipts: receipts, logger: logger, guard: guard}, nil
}

// Register mounts the receipt routes on router.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	secured := router.Group("")
	secured.Use(s.guard)
	{
		secured.POST("/create-receipt", s.handleCreate)
		secured.GET("/get-receipt/:id", s.handleGet)
		secured.GET("/get-receipts", s.handleList)
	}

	router.GET("/get-receipt-text/:id", s.handleText)

	s.logger.InfoTag("RECEIPT", "receipt routes registered")
	return nil
}

func (s *Service) handleCreate(c *gin.Context) {
	identity, ok := authapi.IdentityFrom(c)
	if !ok {
		httptransport.RespondError(c, http.StatusUnauthorized, "not authenticated", nil)
		return
	}

	var req createReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, "invalid receipt: "+err.Error(), nil)
		return
	}

	products := make([]model.Product, len(req.Products))
	for i, p := range req.Products {
		products[i] = model.Product{Name: p.Name, Price: p.Price, Quantity: p.Quantity}
	}
	receipt, err := s.receipts.Create(c.Request.Context(), identity.ID, products, model.Payment{
		Type:   req.Payment.Type,
		Amount: req.Payment.Amount,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, receipt, "")
}

func (s *Service) handleGet(c *gin.Context) {
	identity, ok := authapi.IdentityFrom(c)
	if !ok {
		httptransport.RespondError(c, http.StatusUnauthorized, "not authenticated", nil)
		return
	}
	id, ok := s.receiptID(c)
	if !ok {
		return
	}

	receipt, err := s.receipts.Get(c.Request.Context(), identity.ID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, receipt, "")
}

func (s *Service) handleList(c *gin.Context) {
	identity, ok := authapi.IdentityFrom(c)
	if !ok {
		httptransport.RespondError(c, http.StatusUnauthorized, "not authenticated", nil)
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	receipts, err := s.receipts.List(c.Request.Context(), identity.ID, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, receipts, "")
}

func (s *Service) handleText(c *gin.Context) {
	id, ok := s.receiptID(c)
	if !ok {
		return
	}
	width := 0
	if raw := c.Query("line_width"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httptransport.RespondError(c, http.StatusUnprocessableEntity, "line_width must be an integer", nil)
			return
		}
		width = v
	}

	text, err := s.receipts.Text(c.Request.Context(), id, width)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

func (s *Service) receiptID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, "receipt id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func parseFilter(c *gin.Context) (model.Filter, error) {
	filter := model.Filter{
		PaymentType: c.Query("payment_type"),
		Limit:       10,
	}

	if raw := c.Query("date_from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return filter, errors.New(errors.KindTransport, "receiptapi.filter", "date_from must be an ISO 8601 date or datetime")
		}
		filter.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return filter, errors.New(errors.KindTransport, "receiptapi.filter", "date_to must be an ISO 8601 date or datetime")
		}
		filter.DateTo = &t
	}
	if raw := c.Query("min_total"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, errors.New(errors.KindTransport, "receiptapi.filter", "min_total must be a number")
		}
		filter.MinTotal = &v
	}
	for name, dst := range map[string]*int{"offset": &filter.Offset, "limit": &filter.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.New(errors.KindTransport, "receiptapi.filter", name+" must be an integer")
		}
		*dst = v
	}
	return filter, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (s *Service) fail(c *gin.Context, err error) {
	var pe *errors.Error
	switch {
	case stderrors.Is(err, model.ErrReceiptNotFound):
		httptransport.RespondError(c, http.StatusNotFound, "Receipt not found", nil)
	case stderrors.Is(err, model.ErrInsufficientPayment):
		httptransport.RespondError(c, http.StatusBadRequest, "Insufficient payment amount", nil)
	case stderrors.Is(err, model.ErrUnknownPaymentType):
		httptransport.RespondError(c, http.StatusBadRequest, "Unknown payment type", nil)
	case stderrors.Is(err, model.ErrInvalidReceipt) && stderrors.As(err, &pe):
		httptransport.RespondError(c, http.StatusUnprocessableEntity, pe.Message, nil)
	default:
		s.logger.ErrorTag("RECEIPT", "%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		httptransport.RespondError(c, http.StatusInternalServerError, "internal server error", nil)
	}
}
