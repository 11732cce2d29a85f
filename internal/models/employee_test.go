package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestChildPath(t *testing.T) {
	root := primitive.NewObjectID()
	child := primitive.NewObjectID()

	assert.Equal(t, root.Hex(), ChildPath("", root))
	assert.Equal(t, root.Hex()+"."+child.Hex(), ChildPath(root.Hex(), child))
}

func TestPathContains(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	c := primitive.NewObjectID()

	path := ChildPath(ChildPath("", a), b)

	assert.True(t, PathContains(path, a))
	assert.True(t, PathContains(path, b))
	assert.False(t, PathContains(path, c))
}
