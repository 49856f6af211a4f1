package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestDefaultCameraLooksAtTarget(t *testing.T) {
	c := NewCamera()
	view := c.GetView()

	// the target ends up straight ahead, on the negative view Z axis
	target := view.Mul4x1(c.Target.Vec4(1))
	assert.InDelta(t, 0, target.X(), 1e-5)
	assert.InDelta(t, 0, target.Y(), 1e-5)
	assert.Less(t, target.Z(), float32(0))

	eye := view.Mul4x1(c.Eye.Vec4(1))
	assert.InDelta(t, 0, eye.Vec3().Len(), 1e-5)
}

func TestCameraRebuildsWhenMoved(t *testing.T) {
	c := NewCamera()
	before := c.GetView()
	assert.False(t, c.IsDirty)

	c.MoveForward(0.5)
	assert.True(t, c.IsDirty)
	assert.NotEqual(t, before, c.GetView())
	assert.Equal(t, mgl32.Perspective(mgl32.DegToRad(105), 16.0/9.0, 0.01, 100), c.GetProjection())
}

func TestCameraMovesAlongUp(t *testing.T) {
	c := NewCamera()
	eye := c.Eye
	c.MoveUp(0.25)
	assert.InDelta(t, eye.Z()+0.25, c.Eye.Z(), 1e-6)
	c.MoveDown(0.25)
	assert.InDelta(t, eye.Z(), c.Eye.Z(), 1e-6)
	c.Reset()
	assert.Equal(t, eye, c.Eye)
}
