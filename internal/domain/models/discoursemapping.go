// internal/domain/models/discoursemapping.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DiscourseUserMapping links an application user to the forum account that
// was provisioned for them in one community. (UserID, CommunityID) is unique.
//
// While IDPending is true the forum's numeric id could not be resolved at
// provisioning time; DiscourseUserID stays nil until reconciliation fills it.
type DiscourseUserMapping struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	UserID            string             `bson:"user_id" json:"userId"`
	CommunityID       primitive.ObjectID `bson:"community_id" json:"communityId"`
	DiscourseUserID   *int64             `bson:"discourse_user_id" json:"discourseUserId"`
	IDPending         bool               `bson:"id_pending" json:"idPending"`
	DiscourseUsername string             `bson:"discourse_username" json:"discourseUsername"`
	DiscoursePassword string             `bson:"discourse_password" json:"-"` // sealed, see sealer
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Identity returns the embedded form stored on the user document.
func (m DiscourseUserMapping) Identity() DiscourseIdentity {
	return DiscourseIdentity{
		CommunityID:       m.CommunityID,
		DiscourseUserID:   m.DiscourseUserID,
		DiscourseUsername: m.DiscourseUsername,
	}
}
