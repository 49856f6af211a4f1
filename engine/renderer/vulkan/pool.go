package vulkan

import "sync"

type LockGroup string

const (
	QueueManagement      LockGroup = "queue_management"
	DescriptorManagement LockGroup = "descriptor_management"
	UploadManagement     LockGroup = "upload_management"
	ReleaseManagement    LockGroup = "release_management"
)

/**
 * @brief One mutex per group of Vulkan objects that must be externally
 * synchronised, such as a queue or a descriptor pool.
 */
type VulkanLockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, exists := vs.locks[group]
	if !exists {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

// SafeCall runs fn while holding the group's lock.
func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
