package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/line-agent-relay/internal/model"
)

type NameCardRepository interface {
	FindByID(ctx context.Context, id string) (*model.StoredNameCard, error)
	FindByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]model.StoredNameCard, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.StoredNameCard, error)
	CountByOwnerID(ctx context.Context, ownerID string) (int, error)
	CountAll(ctx context.Context) (int, error)
	Create(ctx context.Context, params model.CreateNameCardParams) (*model.StoredNameCard, error)
}

type nameCardRepo struct {
	db *sqlx.DB
}

func NewNameCardRepository(db *sqlx.DB) NameCardRepository {
	return &nameCardRepo{db: db}
}

func (r *nameCardRepo) FindByID(ctx context.Context, id string) (*model.StoredNameCard, error) {
	var card model.StoredNameCard
	err := r.db.GetContext(ctx, &card, `SELECT * FROM namecards WHERE id = $1`, id)
	return HandleNotFound(&card, err)
}

func (r *nameCardRepo) FindByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]model.StoredNameCard, error) {
	var cards []model.StoredNameCard
	err := r.db.SelectContext(ctx, &cards, `
		SELECT * FROM namecards
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	return cards, err
}

func (r *nameCardRepo) FindAll(ctx context.Context, limit, offset int) ([]model.StoredNameCard, error) {
	var cards []model.StoredNameCard
	err := r.db.SelectContext(ctx, &cards, `
		SELECT * FROM namecards
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return cards, err
}

func (r *nameCardRepo) CountByOwnerID(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM namecards WHERE owner_id = $1`, ownerID)
	return count, err
}

func (r *nameCardRepo) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM namecards`)
	return count, err
}

func (r *nameCardRepo) Create(ctx context.Context, params model.CreateNameCardParams) (*model.StoredNameCard, error) {
	var card model.StoredNameCard
	err := r.db.GetContext(ctx, &card, `
		INSERT INTO namecards (owner_id, message_id, name, title, company, address, phone, email, line_id, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING *
	`, params.OwnerID, params.MessageID,
		params.Card.Name, params.Card.Title, params.Card.Company, params.Card.Address,
		params.Card.Phone, params.Card.Email, params.Card.LineID, params.Card.Memo)
	if err != nil {
		return nil, err
	}
	return &card, nil
}
