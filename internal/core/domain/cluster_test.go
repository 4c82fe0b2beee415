package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipHash_OrderIndependent(t *testing.T) {
	a := MembershipHash([]string{"p1", "p2", "p3"})
	b := MembershipHash([]string{"p3", "p1", "p2"})
	c := MembershipHash([]string{"p1", "p2"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestMembershipHash_DoesNotMutateInput(t *testing.T) {
	ids := []string{"b", "a"}
	MembershipHash(ids)
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestCluster_IsTagged(t *testing.T) {
	assert.False(t, Cluster{}.IsTagged())
	assert.True(t, Cluster{Tags: []TagCandidate{}}.IsTagged())
}
