package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createRestaurant = `
INSERT INTO restaurants (name, email, hashed_password, verify_token)
VALUES ($1, $2, $3, $4)
RETURNING id, name, email, hashed_password, public_token, verify_token, verified, created_at
`

type CreateRestaurantParams struct {
	Name           string
	Email          string
	HashedPassword string
	VerifyToken    pgtype.Text
}

func (q *Queries) CreateRestaurant(ctx context.Context, arg CreateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, createRestaurant, arg.Name, arg.Email, arg.HashedPassword, arg.VerifyToken)
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.HashedPassword, &r.PublicToken, &r.VerifyToken, &r.Verified, &r.CreatedAt)
	return r, err
}

const getRestaurantByEmail = `
SELECT id, name, email, hashed_password, public_token, verify_token, verified, created_at
FROM restaurants
WHERE email = $1
`

func (q *Queries) GetRestaurantByEmail(ctx context.Context, email string) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurantByEmail, email)
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.HashedPassword, &r.PublicToken, &r.VerifyToken, &r.Verified, &r.CreatedAt)
	return r, err
}

const getRestaurantByID = `
SELECT id, name, email, hashed_password, public_token, verify_token, verified, created_at
FROM restaurants
WHERE id = $1
`

func (q *Queries) GetRestaurantByID(ctx context.Context, id uuid.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurantByID, id)
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.HashedPassword, &r.PublicToken, &r.VerifyToken, &r.Verified, &r.CreatedAt)
	return r, err
}

const getRestaurantByPublicToken = `
SELECT id, name, email, hashed_password, public_token, verify_token, verified, created_at
FROM restaurants
WHERE public_token = $1
`

func (q *Queries) GetRestaurantByPublicToken(ctx context.Context, token uuid.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurantByPublicToken, token)
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.HashedPassword, &r.PublicToken, &r.VerifyToken, &r.Verified, &r.CreatedAt)
	return r, err
}

const verifyRestaurant = `
UPDATE restaurants
SET verified = TRUE, verify_token = NULL
WHERE verify_token = $1
`

// VerifyRestaurant marks the restaurant holding the given verification token
// as verified. Returns the number of rows updated (0 for an unknown token).
func (q *Queries) VerifyRestaurant(ctx context.Context, token string) (int64, error) {
	tag, err := q.db.Exec(ctx, verifyRestaurant, token)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
