package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Storage field names, shared by every store implementation.
const (
	FieldFullName   = "fullName"
	FieldEmail      = "email"
	FieldEmailIndex = "email_index"
	FieldPhone      = "phone"
	FieldDob        = "dob"
	FieldGender     = "gender"
	FieldAddress    = "address"
	FieldCourse     = "course"
	FieldPassword   = "password"
	FieldUpdatedAt  = "updated_at"
)

// Student is stored with every string field sealed except EmailIndex and
// Password, which hold a keyed digest and a bcrypt hash.
type Student struct {
	ID         primitive.ObjectID `bson:"_id" json:"_id"`
	FullName   string             `bson:"fullName" json:"fullName"`
	Email      string             `bson:"email" json:"email"`
	EmailIndex string             `bson:"email_index" json:"-" codec:"-"`
	Phone      string             `bson:"phone" json:"phone"`
	Dob        string             `bson:"dob" json:"dob"`
	Gender     string             `bson:"gender" json:"gender"`
	Address    string             `bson:"address" json:"address"`
	Course     string             `bson:"course" json:"course"`
	Password   string             `bson:"password" json:"-" codec:"-"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}
