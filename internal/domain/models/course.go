// internal/domain/models/course.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Course belongs to a community and is managed by the community creator.
type Course struct {
	ID          primitive.ObjectID `bson:"_id" json:"_id"`
	CommunityID primitive.ObjectID `bson:"community_id" json:"communityId"`
	Title       string             `bson:"title" json:"title"`
	TitleCI     string             `bson:"title_ci" json:"-"`
	Description string             `bson:"description" json:"description"`
	Thumbnail   string             `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	CreatedBy   string             `bson:"created_by" json:"createdBy"`
	Sections    []CourseSection    `bson:"sections" json:"sections"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

type CourseSection struct {
	Title  string        `bson:"title" json:"title" validate:"required,max=200" label:"Section title"`
	Videos []CourseVideo `bson:"videos" json:"videos" validate:"dive"`
}

type CourseVideo struct {
	Title    string `bson:"title" json:"title" validate:"required,max=200" label:"Video title"`
	URL      string `bson:"url" json:"url" validate:"required,url" label:"Video URL"`
	Duration string `bson:"duration,omitempty" json:"duration,omitempty" validate:"max=20" label:"Duration"`
}
