package storage

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
)

// qemuConfPath is where libvirt configures the user QEMU runs as.
const qemuConfPath = "/etc/libvirt/qemu.conf"

var (
	qemuUID  string
	qemuGID  string
	qemuOnce sync.Once
	qemuErr  error
)

// GetQEMUUserGroup returns the UID and GID new pools and volumes are owned
// by, so QEMU can open uploaded images. It tries the user and group
// configured in qemu.conf, then the common qemu and libvirt-qemu users, and
// finally falls back to 107.
//
// The result is cached after the first call.
func GetQEMUUserGroup() (uid, gid string, err error) {
	qemuOnce.Do(func() {
		qemuUID, qemuGID, qemuErr = lookupQEMUUserGroup(qemuConfPath)
	})
	return qemuUID, qemuGID, qemuErr
}

func lookupQEMUUserGroup(confPath string) (string, string, error) {
	username, groupname := readQEMUConfiguredUser(confPath)

	if username != "" {
		if u, err := user.Lookup(username); err == nil {
			gid := u.Gid
			if groupname != "" {
				if g, err := user.LookupGroup(groupname); err == nil {
					gid = g.Gid
				}
			}
			return u.Uid, gid, nil
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := user.Lookup(name); err == nil {
			return u.Uid, u.Gid, nil
		}
	}

	return "107", "107", fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID 107")
}

// readQEMUConfiguredUser extracts the user and group settings from a
// qemu.conf. Missing files or settings yield empty strings.
func readQEMUConfiguredUser(path string) (username, groupname string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}
