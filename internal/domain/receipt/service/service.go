package service

import (
	"context"
	"fmt"
	"strings"

	"receipt-server-go/internal/domain/receipt/model"
	"receipt-server-go/internal/platform/errors"
)

const (
	maxProducts       = 10000
	maxProductNameLen = 200
	defaultListLimit  = 10
	maxListLimit      = 100
	defaultLineWidth  = 32
	minLineWidth      = 20
	maxLineWidth      = 100
)

// Repository is the persistence contract for receipts.
type Repository interface {
	Create(ctx context.Context, receipt *model.Receipt) error
	// FindByID and FindForUser return nil, nil when the receipt is absent.
	FindByID(ctx context.Context, id int64) (*model.Receipt, error)
	FindForUser(ctx context.Context, id, userID int64) (*model.Receipt, error)
	List(ctx context.Context, userID int64, filter model.Filter) ([]model.Receipt, error)
}

// Options configures the receipt service.
type Options struct {
	Repository       Repository
	Logger           model.Logger
	Merchant         string
	DefaultLineWidth int
	MinLineWidth     int
	MaxLineWidth     int
}

// ReceiptService validates, stores and renders receipts.
type ReceiptService struct {
	repo     Repository
	logger   model.Logger
	merchant string
	width    int
	minWidth int
	maxWidth int
}

// NewReceiptService creates the receipt service.
func NewReceiptService(opts Options) (*ReceiptService, error) {
	if opts.Repository == nil {
		return nil, errors.New(errors.KindDomain, "receipt.new", "repository is required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindDomain, "receipt.new", "logger is required")
	}
	if opts.MinLineWidth <= 0 {
		opts.MinLineWidth = minLineWidth
	}
	if opts.MaxLineWidth <= 0 {
		opts.MaxLineWidth = maxLineWidth
	}
	if opts.MinLineWidth > opts.MaxLineWidth {
		return nil, errors.New(errors.KindDomain, "receipt.new", "min line width exceeds max line width")
	}
	if opts.DefaultLineWidth <= 0 {
		opts.DefaultLineWidth = defaultLineWidth
	}
	return &ReceiptService{
		repo:     opts.Repository,
		logger:   opts.Logger,
		merchant: opts.Merchant,
		width:    opts.DefaultLineWidth,
		minWidth: opts.MinLineWidth,
		maxWidth: opts.MaxLineWidth,
	}, nil
}

// Create validates the request, computes totals and stores the receipt for
// the given user.
func (s *ReceiptService) Create(ctx context.Context, userID int64, products []model.Product, payment model.Payment) (*model.Receipt, error) {
	if err := validatePayment(payment); err != nil {
		return nil, err
	}
	if len(products) > maxProducts {
		return nil, invalid("receipt.create", fmt.Sprintf("at most %d products are allowed", maxProducts))
	}

	lines := make([]model.Product, len(products))
	var total float64
	for i, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		if err := validateProduct(i, p); err != nil {
			return nil, err
		}
		total += p.Subtotal()
		p.Total = model.Round2(p.Subtotal())
		lines[i] = p
	}

	if payment.Amount < total {
		return nil, model.ErrInsufficientPayment
	}

	receipt := &model.Receipt{
		UserID:   userID,
		Products: lines,
		Payment:  payment,
		Total:    total,
	}
	if err := s.repo.Create(ctx, receipt); err != nil {
		return nil, err
	}
	receipt.Total = model.Round2(total)
	receipt.Rest = model.Round2(payment.Amount - total)

	s.logger.Debug("user %d created receipt %d (%d products)", userID, receipt.ID, len(lines))
	return receipt, nil
}

// Get returns a receipt owned by userID.
func (s *ReceiptService) Get(ctx context.Context, userID, id int64) (*model.Receipt, error) {
	receipt, err := s.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, model.ErrReceiptNotFound
	}
	return receipt, nil
}

// List returns the user's receipts matching filter. A zero limit means the
// default page size.
func (s *ReceiptService) List(ctx context.Context, userID int64, filter model.Filter) ([]model.Receipt, error) {
	if filter.Offset < 0 {
		return nil, invalid("receipt.list", "offset must not be negative")
	}
	if filter.Limit < 0 || filter.Limit > maxListLimit {
		return nil, invalid("receipt.list", fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.PaymentType != "" && !validPaymentType(filter.PaymentType) {
		return nil, invalid("receipt.list", "unknown payment type")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, invalid("receipt.list", "date_to is before date_from")
	}

	receipts, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = []model.Receipt{}
	}
	return receipts, nil
}

// Text renders any receipt as a fixed-width printout. It is public by id.
// A zero width selects the configured default.
func (s *ReceiptService) Text(ctx context.Context, id int64, width int) (string, error) {
	if width == 0 {
		width = s.width
	}
	if width < s.minWidth || width > s.maxWidth {
		return "", invalid("receipt.text", fmt.Sprintf("line_width must be between %d and %d", s.minWidth, s.maxWidth))
	}

	receipt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if receipt == nil {
		return "", model.ErrReceiptNotFound
	}
	return Render(receipt, s.merchant, width), nil
}

func validatePayment(payment model.Payment) error {
	if !validPaymentType(payment.Type) {
		return invalid("receipt.create", fmt.Sprintf("payment type must be %q or %q", model.PaymentCash, model.PaymentCreditCard))
	}
	if payment.Amount <= 0 {
		return invalid("receipt.create", "payment amount must be positive")
	}
	return nil
}

func validateProduct(index int, p model.Product) error {
	switch {
	case p.Name == "":
		return invalid("receipt.create", fmt.Sprintf("product %d: name is required", index))
	case len([]rune(p.Name)) > maxProductNameLen:
		return invalid("receipt.create", fmt.Sprintf("product %d: name exceeds %d characters", index, maxProductNameLen))
	case p.Price <= 0:
		return invalid("receipt.create", fmt.Sprintf("product %d: price must be positive", index))
	case p.Quantity <= 0:
		return invalid("receipt.create", fmt.Sprintf("product %d: quantity must be positive", index))
	}
	return nil
}

func validPaymentType(t string) bool {
	return t == model.PaymentCash || t == model.PaymentCreditCard
}

func invalid(op, message string) error {
	return errors.Wrap(errors.KindDomain, op, message, model.ErrInvalidReceipt)
}
