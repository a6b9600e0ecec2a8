// internal/domain/models/community.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Community status values. Only active communities are listed.
const (
	CommunityActive   = "active"
	CommunityArchived = "archived"
)

// Community is a group of users backed by one Discourse forum.
type Community struct {
	ID            primitive.ObjectID `bson:"_id" json:"_id"`
	Name          string             `bson:"name" json:"name" validate:"required,max=120" label:"Name"`
	NameCI        string             `bson:"name_ci" json:"-"`
	Description   string             `bson:"description" json:"description" validate:"max=5000" label:"Description"`
	Category      string             `bson:"category" json:"category" validate:"required,max=60" label:"Category"`
	DiscourseURL  string             `bson:"discourse_url" json:"discourse_url" validate:"required,url" label:"Discourse URL"`
	DiscourseHost string             `bson:"discourse_host" json:"-"` // lowercase host of DiscourseURL
	Creator       CommunityCreator   `bson:"creator" json:"creator"`
	MembersCount  int64              `bson:"members_count" json:"members_count"`
	Status        string             `bson:"status" json:"status"`
	Slug          string             `bson:"slug" json:"slug"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// CommunityCreator is the denormalized owner of a community.
type CommunityCreator struct {
	UID   string `bson:"uid" json:"uid" validate:"required" label:"Creator uid"`
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty" validate:"omitempty,email" label:"Creator email"`
}
