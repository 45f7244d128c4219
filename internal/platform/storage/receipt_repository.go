package storage

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receipt-server-go/internal/domain/receipt/model"
	"receipt-server-go/internal/platform/errors"
)

const productBatchSize = 100

// ReceiptRepository persists receipts, their products and payment types.
type ReceiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a receipt repository instance.
func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create stores the receipt and its products in one transaction and fills
// in the generated ID and creation time.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *model.Receipt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paymentType PaymentType
		if err := tx.Where("name = ?", receipt.Payment.Type).First(&paymentType).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrUnknownPaymentType
			}
			return errors.Wrap(errors.KindStorage, "receipt.create", "failed to load payment type", err)
		}

		row := &Receipt{
			UserID:        receipt.UserID,
			PaymentTypeID: paymentType.ID,
			Amount:        receipt.Payment.Amount,
			Total:         receipt.Total,
		}
		if err := tx.Omit(clause.Associations).Create(row).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "receipt.create", "failed to save receipt", err)
		}

		if len(receipt.Products) > 0 {
			products := make([]Product, len(receipt.Products))
			for i, p := range receipt.Products {
				products[i] = Product{
					ReceiptID: row.ID,
					Name:      p.Name,
					Price:     p.Price,
					Quantity:  p.Quantity,
				}
			}
			if err := tx.CreateInBatches(products, productBatchSize).Error; err != nil {
				return errors.Wrap(errors.KindStorage, "receipt.create", "failed to save products", err)
			}
		}

		receipt.ID = row.ID
		receipt.CreatedAt = row.CreatedAt
		return nil
	})
}

// FindByID loads any receipt regardless of owner. Returns nil, nil when absent.
func (r *ReceiptRepository) FindByID(ctx context.Context, id int64) (*model.Receipt, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("receipts.id = ?", id), "receipt.find_by_id")
}

// FindForUser loads a receipt only if it belongs to userID. Returns nil, nil otherwise.
func (r *ReceiptRepository) FindForUser(ctx context.Context, id, userID int64) (*model.Receipt, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("receipts.id = ? AND receipts.user_id = ?", id, userID), "receipt.find_for_user")
}

// List returns the user's receipts matching filter, ordered by id.
func (r *ReceiptRepository) List(ctx context.Context, userID int64, filter model.Filter) ([]model.Receipt, error) {
	query := r.db.WithContext(ctx).
		Preload("Products").
		Preload("PaymentType").
		Where("receipts.user_id = ?", userID)

	if filter.DateFrom != nil {
		query = query.Where("receipts.created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("receipts.created_at <= ?", *filter.DateTo)
	}
	if filter.MinTotal != nil {
		query = query.Where("receipts.total >= ?", *filter.MinTotal)
	}
	if filter.PaymentType != "" {
		query = query.
			Joins("JOIN payment_types ON payment_types.id = receipts.payment_type_id").
			Where("payment_types.name = ?", filter.PaymentType)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []Receipt
	if err := query.Order("receipts.id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "receipt.list", "failed to list receipts", err)
	}

	receipts := make([]model.Receipt, len(rows))
	for i := range rows {
		receipts[i] = *r.fromModel(&rows[i])
	}
	return receipts, nil
}

func (r *ReceiptRepository) findOne(ctx context.Context, query *gorm.DB, op string) (*model.Receipt, error) {
	var row Receipt
	err := query.
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("products.id ASC") }).
		Preload("PaymentType").
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, op, "failed to load receipt", err)
	}
	return r.fromModel(&row), nil
}

func (r *ReceiptRepository) fromModel(row *Receipt) *model.Receipt {
	products := make([]model.Product, len(row.Products))
	for i, p := range row.Products {
		products[i] = model.Product{
			Name:     p.Name,
			Price:    p.Price,
			Quantity: p.Quantity,
			Total:    model.Round2(p.Price * p.Quantity),
		}
	}
	return &model.Receipt{
		ID:       row.ID,
		UserID:   row.UserID,
		Products: products,
		Payment: model.Payment{
			Type:   row.PaymentType.Name,
			Amount: row.Amount,
		},
		Total:     model.Round2(row.Total),
		Rest:      model.Round2(max(row.Amount-row.Total, 0)),
		CreatedAt: row.CreatedAt,
	}
}
