package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	DEFAULT_CAMERA_FOV_Y  float32 = 105
	DEFAULT_CAMERA_ASPECT float32 = 16.0 / 9.0
	DEFAULT_CAMERA_NEAR   float32 = 0.01
	DEFAULT_CAMERA_FAR    float32 = 100
)

/**
 * @brief A look-at camera with a perspective projection. The view and
 * projection matrices are rebuilt lazily when a parameter changed.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3

	/** @brief Vertical field of view in degrees. */
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32

	/** @brief Internal flag used to determine when the matrices need to be rebuilt. */
	IsDirty    bool
	view       mgl32.Mat4
	projection mgl32.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

// Reset puts the camera back to the demo viewpoint, looking down at the origin with +Z up.
func (c *Camera) Reset() {
	c.Eye = mgl32.Vec3{-0.8, -0.5, 0.333}
	c.Target = mgl32.Vec3{0, 0, -0.15}
	c.Up = mgl32.Vec3{0, 0, 1}
	c.FovY = DEFAULT_CAMERA_FOV_Y
	c.Aspect = DEFAULT_CAMERA_ASPECT
	c.Near = DEFAULT_CAMERA_NEAR
	c.Far = DEFAULT_CAMERA_FAR
	c.IsDirty = true
}

func (c *Camera) SetPosition(eye mgl32.Vec3) {
	c.Eye = eye
	c.IsDirty = true
}

func (c *Camera) LookAt(target, up mgl32.Vec3) {
	c.Target = target
	c.Up = up
	c.IsDirty = true
}

func (c *Camera) SetPerspective(fovY, aspect, near, far float32) {
	c.FovY = fovY
	c.Aspect = aspect
	c.Near = near
	c.Far = far
	c.IsDirty = true
}

func (c *Camera) rebuild() {
	if !c.IsDirty {
		return
	}
	c.view = mgl32.LookAtV(c.Eye, c.Target, c.Up)
	c.projection = mgl32.Perspective(mgl32.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
	c.IsDirty = false
}

func (c *Camera) GetView() mgl32.Mat4 {
	c.rebuild()
	return c.view
}

func (c *Camera) GetProjection() mgl32.Mat4 {
	c.rebuild()
	return c.projection
}

// Forward is the normalised direction from the eye to the target.
func (c *Camera) Forward() mgl32.Vec3 {
	return c.Target.Sub(c.Eye).Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(c.Up).Normalize()
}

// MoveForward moves eye and target together.
func (c *Camera) MoveForward(amount float32) {
	c.translate(c.Forward().Mul(amount))
}

func (c *Camera) MoveBackward(amount float32) {
	c.translate(c.Forward().Mul(-amount))
}

func (c *Camera) MoveLeft(amount float32) {
	c.translate(c.Right().Mul(-amount))
}

func (c *Camera) MoveRight(amount float32) {
	c.translate(c.Right().Mul(amount))
}

// MoveUp moves along the up axis.
func (c *Camera) MoveUp(amount float32) {
	c.translate(c.Up.Normalize().Mul(amount))
}

func (c *Camera) MoveDown(amount float32) {
	c.translate(c.Up.Normalize().Mul(-amount))
}

func (c *Camera) translate(delta mgl32.Vec3) {
	c.Eye = c.Eye.Add(delta)
	c.Target = c.Target.Add(delta)
	c.IsDirty = true
}
