// Package store defines the persistence contract for student records.
//
// Implementations store what they are given: sealing and hashing happen
// before a record reaches the store.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"student-records-backend/entity"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate email")
)

// Fields maps entity.Field* names to new values.
type Fields map[string]interface{}

type Students interface {
	Create(ctx context.Context, s *entity.Student) error
	Get(ctx context.Context, id primitive.ObjectID) (*entity.Student, error)
	FindByEmailIndex(ctx context.Context, index string) (*entity.Student, error)
	List(ctx context.Context) ([]*entity.Student, error)
	// Update applies fields and returns the record as stored afterwards.
	Update(ctx context.Context, id primitive.ObjectID, fields Fields) (*entity.Student, error)
	SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Updatable lists the fields Update accepts. Passwords go through
// SetPassword.
var Updatable = map[string]bool{
	entity.FieldFullName:   true,
	entity.FieldEmail:      true,
	entity.FieldEmailIndex: true,
	entity.FieldPhone:      true,
	entity.FieldDob:        true,
	entity.FieldGender:     true,
	entity.FieldAddress:    true,
	entity.FieldCourse:     true,
	entity.FieldUpdatedAt:  true,
}
