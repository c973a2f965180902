package repository

import (
	"context"
	"time"

	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Receipt struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"type:varchar(64);uniqueIndex"`
	UserID    int64           `gorm:"index"`
	Email     string          `gorm:"type:varchar(255)"`
	Total     decimal.Decimal `gorm:"type:decimal(14,2)"`
	CreatedAt time.Time       `gorm:"index"`

	Lines []ReceiptLine `gorm:"foreignKey:ReceiptID"`
}

func (Receipt) TableName() string { return "receipts" }

type ReceiptLine struct {
	ID              uint            `gorm:"primaryKey"`
	ReceiptID       uint            `gorm:"index"`
	ProductID       int64           `gorm:"index"`
	Name            string          `gorm:"type:varchar(255)"`
	ImageRef        string          `gorm:"type:varchar(512)"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(14,2)"`
	DiscountPercent int
	Quantity        int
}

func (ReceiptLine) TableName() string { return "receipt_lines" }

type ReceiptRepo interface {
	Record(ctx context.Context, r model.Receipt) error
	List(ctx context.Context, limit int) ([]model.Receipt, error)
	Get(ctx context.Context, orderID string) (model.Receipt, error)
}

type gormReceiptRepo struct {
	db *gorm.DB
}

func NewReceiptRepo(db *gorm.DB) ReceiptRepo {
	return &gormReceiptRepo{db: db}
}

// Record stores a receipt with its lines in one insert.
func (r *gormReceiptRepo) Record(ctx context.Context, rc model.Receipt) error {
	row := Receipt{
		OrderID:   rc.OrderID,
		UserID:    rc.UserID,
		Email:     rc.Email,
		Total:     rc.Total,
		CreatedAt: rc.CreatedAt,
	}
	for _, it := range rc.Items {
		row.Lines = append(row.Lines, ReceiptLine{
			ProductID:       it.ProductID,
			Name:            it.Name,
			ImageRef:        it.ImageRef,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
			Quantity:        it.Quantity,
		})
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// List returns the newest receipts first.
func (r *gormReceiptRepo) List(ctx context.Context, limit int) ([]model.Receipt, error) {
	var rows []Receipt
	q := r.db.WithContext(ctx).Preload("Lines").Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *gormReceiptRepo) Get(ctx context.Context, orderID string) (model.Receipt, error) {
	var row Receipt
	if err := r.db.WithContext(ctx).Preload("Lines").Where("order_id = ?", orderID).First(&row).Error; err != nil {
		return model.Receipt{}, err
	}
	return row.toModel(), nil
}

func (row Receipt) toModel() model.Receipt {
	out := model.Receipt{
		OrderID:   row.OrderID,
		UserID:    row.UserID,
		Email:     row.Email,
		Total:     row.Total,
		CreatedAt: row.CreatedAt,
	}
	for _, l := range row.Lines {
		out.Items = append(out.Items, model.CartLineItem{
			ProductID:       l.ProductID,
			Name:            l.Name,
			ImageRef:        l.ImageRef,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			Quantity:        l.Quantity,
		})
	}
	return out
}
