// Package rendezvous implements the filesystem stamp protocol by which
// the service, the helper, and external boot machinery coordinate
// without shared memory: presence/absence of files under /run.
package rendezvous

const (
	// RunDirPath is the directory all stamps live under.
	RunDirPath = "/run"

	// HaliumMountedStamp is created by external boot machinery once the
	// real root filesystem is mounted at the helper's --rootmnt
	// target, and removed by the helper child immediately after
	// chrooting into it.
	HaliumMountedStamp = "halium-mounted"

	// BootDoneStamp is created by external boot machinery once the
	// system has finished booting far enough for in-place
	// reencryption to be safe to run.
	BootDoneStamp = "boot-done"

	// HelperPidfile holds the ASCII-decimal PID of the long-lived
	// helper child, written by the helper parent and removed by the
	// child on clean exit.
	HelperPidfile = "droidian-encryption-helper.pid"

	// HelperFailureStamp is created by the helper child when
	// reencryption fails irrecoverably, and consulted by
	// RefreshStatus on the service side.
	HelperFailureStamp = "droidian-encryption-helper-failed"
)
