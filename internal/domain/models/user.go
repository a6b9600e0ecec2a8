// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an application account. UID is the identity issued by the SPA's
// sign-in provider and is the key every other collection refers to.
//
// NOTE:
//   - Communities and CreatedCommunities are sets; writers use $addToSet.
//   - Payments is append-only.
type User struct {
	ID                 primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UID                string               `bson:"uid" json:"uid"`
	Email              string               `bson:"email" json:"email"`
	Name               string               `bson:"name" json:"name"`
	NameCI             string               `bson:"name_ci" json:"-"` // lowercase, diacritics-stripped
	PhotoURL           string               `bson:"photo_url,omitempty" json:"photoURL,omitempty"`
	Username           string               `bson:"username,omitempty" json:"username,omitempty"`
	Communities        []primitive.ObjectID `bson:"communities,omitempty" json:"communities"`
	CreatedCommunities []primitive.ObjectID `bson:"created_communities,omitempty" json:"createdCommunities"`
	DiscourseUsers     []DiscourseIdentity  `bson:"discourse_users,omitempty" json:"discourseUsers"`

	Plan               string    `bson:"plan,omitempty" json:"plan,omitempty"`
	SubscriptionID     string    `bson:"subscription_id,omitempty" json:"subscriptionId,omitempty"`
	SubscriptionStatus string    `bson:"subscription_status,omitempty" json:"subscriptionStatus,omitempty"`
	Payments           []Payment `bson:"payments,omitempty" json:"payments"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DiscourseIdentity is the per-community forum account embedded on a user.
// DiscourseUserID is nil while the forum id is still pending.
type DiscourseIdentity struct {
	CommunityID       primitive.ObjectID `bson:"community_id" json:"communityId"`
	DiscourseUserID   *int64             `bson:"discourse_user_id" json:"discourseUserId"`
	DiscourseUsername string             `bson:"discourse_username" json:"discourseUsername"`
}

// Subscription status values.
const (
	SubscriptionCreated   = "created"
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

// Payment is one entry in a user's payment history.
type Payment struct {
	PaymentID      string    `bson:"payment_id" json:"paymentId"`
	SubscriptionID string    `bson:"subscription_id" json:"subscriptionId"`
	Plan           string    `bson:"plan" json:"plan"`
	Status         string    `bson:"status" json:"status"`
	PaidAt         time.Time `bson:"paid_at" json:"paidAt"`
}
