package spawner

import "sync"

// osLiveChecker implements process.LiveChecker against a real OS pid. It
// memoizes a negative observation so a later pid reuse is never mistaken
// for the original process (spec §4.1 os_process_exists), grounded on the
// teacher's detector.pidAlive (internal/detector/pid_file_detector.go).
type osLiveChecker struct {
	mu   sync.Mutex
	pid  int
	dead bool
}

func newOSLiveChecker(pid int) *osLiveChecker {
	return &osLiveChecker{pid: pid}
}

func (c *osLiveChecker) Exists(pid int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead || pid != c.pid {
		return false
	}
	if pidAlive(pid) {
		return true
	}
	c.dead = true
	return false
}
