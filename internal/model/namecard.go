package model

import "time"

// NameCard is the structured content of a business card. The JSON form is
// what the vision parser produces and what the agent receives.
type NameCard struct {
	Name    string `db:"name" json:"name"`
	Title   string `db:"title" json:"title"`
	Company string `db:"company" json:"company"`
	Address string `db:"address" json:"address"`
	Phone   string `db:"phone" json:"phone"`
	Email   string `db:"email" json:"email"`
	LineID  string `db:"line_id" json:"line_id"`
	Memo    string `db:"memo" json:"memo"`
}

// Empty reports whether no identifying field was recognized.
func (c *NameCard) Empty() bool {
	return c.Name == "" && c.Company == "" && c.Email == "" && c.Phone == ""
}

type StoredNameCard struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	MessageID string    `db:"message_id" json:"messageId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	NameCard
}

type CreateNameCardParams struct {
	OwnerID   string
	MessageID string
	Card      NameCard
}
