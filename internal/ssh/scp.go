package ssh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// scpSend drives the source side of the scp protocol: w is the remote
// sink's stdin and r its stdout, which carries one status byte per message.
func scpSend(w io.Writer, r io.Reader, src string) error {
	acks := bufio.NewReader(r)
	if err := readAck(acks); err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return scpSendDir(w, acks, src, info)
	}
	return scpSendFile(w, acks, src, info)
}

func scpSendFile(w io.Writer, acks *bufio.Reader, path string, info os.FileInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(w, "C%04o %d %s\n", info.Mode().Perm(), info.Size(), filepath.Base(path)); err != nil {
		return err
	}
	if err := readAck(acks); err != nil {
		return err
	}
	if _, err := io.CopyN(w, f, info.Size()); err != nil {
		return fmt.Errorf("failed to send %s: %w", path, err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	return readAck(acks)
}

func scpSendDir(w io.Writer, acks *bufio.Reader, path string, info os.FileInfo) error {
	if _, err := fmt.Fprintf(w, "D%04o 0 %s\n", info.Mode().Perm(), filepath.Base(path)); err != nil {
		return err
	}
	if err := readAck(acks); err != nil {
		return err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		childInfo, err := os.Stat(child)
		if err != nil {
			return err
		}
		switch {
		case childInfo.IsDir():
			err = scpSendDir(w, acks, child, childInfo)
		case childInfo.Mode().IsRegular():
			err = scpSendFile(w, acks, child, childInfo)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "E\n"); err != nil {
		return err
	}
	return readAck(acks)
}

// readAck consumes one status byte. 1 is a warning and 2 a fatal error,
// both followed by a message line.
func readAck(r *bufio.Reader) error {
	code, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read scp status: %w", err)
	}
	if code == 0 {
		return nil
	}
	msg, _ := r.ReadString('\n')
	return fmt.Errorf("scp: %s", strings.TrimSpace(msg))
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
