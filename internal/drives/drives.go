// Package drives classifies paths as residing on local fixed storage or on
// removable/network volumes. Import copies files from external volumes into
// managed storage so they stay readable after the card or share is gone.
package drives

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/mountinfo"
)

type Classifier interface {
	// IsExternal reports whether the path lives on removable or network
	// storage.
	IsExternal(path string) (bool, error)
}

var networkFSTypes = map[string]bool{
	"nfs":        true,
	"nfs4":       true,
	"cifs":       true,
	"smbfs":      true,
	"smb3":       true,
	"afpfs":      true,
	"fuse.sshfs": true,
	"9p":         true,
}

var removableMountPrefixes = []string{
	"/media/", "/run/media/", "/mnt/", "/Volumes/",
}

// MountClassifier inspects the mount table.
type MountClassifier struct{}

func NewMountClassifier() *MountClassifier {
	return &MountClassifier{}
}

func (c *MountClassifier) IsExternal(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		// No mount table (e.g. non-linux dev box): fall back to prefixes.
		return hasRemovablePrefix(abs), nil
	}

	// Longest mountpoint prefix wins.
	var best *mountinfo.Info
	for _, m := range mounts {
		if pathWithin(abs, m.Mountpoint) {
			if best == nil || len(m.Mountpoint) > len(best.Mountpoint) {
				best = m
			}
		}
	}
	if best == nil {
		return hasRemovablePrefix(abs), nil
	}

	if networkFSTypes[best.FSType] || strings.HasPrefix(best.Source, "//") {
		return true, nil
	}
	if hasRemovablePrefix(best.Mountpoint + "/") {
		return true, nil
	}
	return deviceRemovable(best.Source), nil
}

func pathWithin(path, root string) bool {
	if root == "/" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func hasRemovablePrefix(path string) bool {
	for _, p := range removableMountPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// deviceRemovable checks the kernel's removable flag for block devices.
func deviceRemovable(source string) bool {
	dev := filepath.Base(source)
	if dev == "" || !strings.HasPrefix(source, "/dev/") {
		return false
	}
	// Partition names end in a digit; the flag lives on the parent disk.
	base := strings.TrimRight(dev, "0123456789")
	if strings.HasPrefix(base, "nvme") || strings.HasPrefix(base, "mmcblk") {
		base = strings.TrimSuffix(base, "p")
	}
	for _, candidate := range []string{dev, base} {
		data, err := os.ReadFile(filepath.Join("/sys/block", candidate, "removable"))
		if err == nil {
			return strings.TrimSpace(string(data)) == "1"
		}
	}
	return false
}

type cacheEntry struct {
	external bool
	expires  time.Time
}

// Cached wraps a Classifier with a per-path TTL cache so a large import does
// not re-read the mount table for every file.
type Cached struct {
	inner Classifier
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCached(inner Classifier, ttl time.Duration) *Cached {
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) IsExternal(path string) (bool, error) {
	// Cache per directory: files in one folder share a volume.
	key := filepath.Dir(path)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.external, nil
	}
	c.mu.Unlock()

	external, err := c.inner.IsExternal(path)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{external: external, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return external, nil
}
