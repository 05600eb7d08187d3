package log

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	mu      sync.Mutex
	logFile *os.File
	buffer  *bufio.Writer
)

// NewLogger writes to stdout and to a per-session file under logDir. Logs left behind by
// previous sessions are compressed first.
func NewLogger(debug bool, logDir, name string) (*slog.Logger, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}
	if _, err := CompressOldLogs(logDir); err != nil {
		// Not fatal, the raw files are still there.
		fmt.Fprintf(os.Stderr, "error compressing old logs: %v\n", err)
	}

	fileName := "beemacro"
	if name != "" {
		fileName += "-" + name
	}
	fileName += "-" + time.Now().Format("2006-01-02-15-04-05") + ".log"

	f, err := os.OpenFile(filepath.Join(logDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	mu.Lock()
	closeLocked()
	logFile = f
	buffer = bufio.NewWriterSize(f, 32*1024)
	mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	w := io.MultiWriter(os.Stdout, lockedWriter{})
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

type lockedWriter struct{}

func (lockedWriter) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	if buffer == nil {
		return len(p), nil
	}
	return buffer.Write(p)
}

// CompressOldLogs replaces every plain .log file in dir with a .log.zst copy.
func CompressOldLogs(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var errs []error
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := compressFile(path); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		dst.Close()
		return err
	}
	if _, err = io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		os.Remove(path + ".zst")
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err = enc.Close(); err != nil {
		dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	src.Close()
	return os.Remove(path)
}

func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	if buffer != nil {
		_ = buffer.Flush()
	}
	if logFile != nil {
		_ = logFile.Sync()
	}
}

func FlushAndClose() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if buffer != nil {
		_ = buffer.Flush()
		buffer = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
